package chat

import "context"

// State is the coarse connection state reported by a chat client.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Content is one outbound chat payload. Exactly one of Text or Media is set.
type Content struct {
	Text  string
	Media *MediaContent
}

// MediaContent carries outbound binary content with its MIME type and an
// optional caption. The attachment kind presented to the recipient is
// chosen from the MIME prefix (image/* renders inline, anything else is
// delivered as a document).
type MediaContent struct {
	Data    []byte
	MIME    string
	Caption string
}

// Handler processes one classified inbound chat event.
type Handler func(ctx context.Context, ev Event)

// Client is the chat-protocol capability. Connection management, session
// persistence and pairing are the implementation's concern; consumers see
// classified events, sends and media downloads.
type Client interface {
	// Connect opens the chat connection. Event and state handlers must be
	// registered before calling it.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down.
	Disconnect()

	// Send delivers one content payload to a conversation.
	Send(ctx context.Context, chatID string, content Content) error

	// Download fetches the binary payload referenced by a media event.
	Download(ctx context.Context, ev Event) ([]byte, error)

	// OnEvent registers the inbound message handler.
	OnEvent(handler Handler)

	// OnConnectionChange registers a connection state observer.
	OnConnectionChange(observer func(State))
}
