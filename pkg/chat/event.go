package chat

// Kind tags the resolved content of an inbound event.
type Kind string

const (
	KindNone     Kind = "none"
	KindText     Kind = "text"
	KindExtended Kind = "extended"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

const defaultMIME = "application/octet-stream"

// IsMedia reports whether the kind carries a binary attachment.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindDocument:
		return true
	default:
		return false
	}
}

// Attachment is one optional binary body on a raw protocol message.
type Attachment struct {
	Caption string
	MIME    string
}

// RawMessage mirrors the overlapping optional body fields a protocol event
// can carry. Adapters fill it verbatim from the wire shape; Classify
// resolves the precedence between the fields exactly once.
type RawMessage struct {
	ChatID string
	Sender string
	FromMe bool

	Conversation string
	ExtendedText string
	Image        *Attachment
	Video        *Attachment
	Document     *Attachment
}

// Event is one classified inbound chat event: a RawMessage with its content
// precedence resolved into a single kind, text and MIME type.
type Event struct {
	ChatID string
	Sender string
	FromMe bool

	Kind Kind
	Text string
	MIME string

	// MissingMIME is set when a document attachment declared no MIME type
	// and the default was substituted; callers surface this instead of
	// guessing silently.
	MissingMIME bool

	// Raw retains the protocol-level handle an adapter needs to download
	// the attachment bytes. Opaque outside the adapter that produced it.
	Raw any
}

// Classify resolves a raw message's overlapping body fields into one event.
//
// Precedence: plain text, then extended text over plain, then any
// attachment caption over both. Attachment kind is image before video
// before document. An event with no body at all classifies as KindNone.
func Classify(raw RawMessage) Event {
	ev := Event{
		ChatID: raw.ChatID,
		Sender: raw.Sender,
		FromMe: raw.FromMe,
		Kind:   KindNone,
	}

	if raw.Conversation != "" {
		ev.Kind = KindText
		ev.Text = raw.Conversation
	}
	if raw.ExtendedText != "" {
		ev.Kind = KindExtended
		ev.Text = raw.ExtendedText
	}

	var attachment *Attachment
	switch {
	case raw.Image != nil:
		ev.Kind = KindImage
		attachment = raw.Image
	case raw.Video != nil:
		ev.Kind = KindVideo
		attachment = raw.Video
	case raw.Document != nil:
		ev.Kind = KindDocument
		attachment = raw.Document
	}

	if attachment == nil {
		return ev
	}

	if attachment.Caption != "" {
		ev.Text = attachment.Caption
	}

	ev.MIME = attachment.MIME
	if ev.MIME == "" {
		ev.MIME = defaultMIME
		ev.MissingMIME = ev.Kind == KindDocument
	}

	return ev
}
