package whatsmeow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	// sqlstore session persistence.
	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	wa "go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"wabridge/pkg/chat"
	"wabridge/pkg/config"
)

// Client adapts a whatsmeow WhatsApp connection to the chat.Client
// capability. Session state lives in a local sqlite database; first-run
// pairing renders a QR code on the terminal.
type Client struct {
	cfg config.ChatConfig
	log *slog.Logger

	mu        sync.RWMutex
	client    *wa.Client
	handler   chat.Handler
	observers []func(chat.State)

	runCtx context.Context
}

// NewClient constructs the adapter; no connection is opened yet.
func NewClient(cfg config.ChatConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg: cfg,
		log: log.With("component", "chat.whatsmeow"),
	}
}

// OnEvent registers the inbound message handler. Must be called before Connect.
func (c *Client) OnEvent(handler chat.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// OnConnectionChange registers a connection state observer. Must be called
// before Connect.
func (c *Client) OnConnectionChange(observer func(chat.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, observer)
}

// Connect opens the session store and the WhatsApp connection. When the
// device is not paired yet, the pairing QR code is printed to stdout and
// Connect returns while pairing completes in the background.
func (c *Client) Connect(ctx context.Context) error {
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+c.cfg.SessionDB+"?_foreign_keys=on", newWALogger(c.log))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device session: %w", err)
	}

	client := wa.NewClient(device, newWALogger(c.log))
	client.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.client = client
	c.runCtx = ctx
	c.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("request pairing channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		go func() {
			for item := range qrChan {
				if item.Event == "code" {
					c.log.Info("Scan QR code to pair WhatsApp")
					qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
					continue
				}
				c.log.Info("Pairing update", "event", item.Event)
			}
		}()

		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return nil
}

// Disconnect tears the connection down.
func (c *Client) Disconnect() {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client != nil {
		client.Disconnect()
	}
}

// Send delivers one payload to a conversation. Media content is uploaded
// to WhatsApp servers first; image MIME types render inline, everything
// else is sent as a document.
func (c *Client) Send(ctx context.Context, chatID string, content chat.Content) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return errors.New("not connected")
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}

	msg, err := c.buildMessage(ctx, client, content)
	if err != nil {
		return err
	}

	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send to %s: %w", chatID, err)
	}

	return nil
}

func (c *Client) buildMessage(ctx context.Context, client *wa.Client, content chat.Content) (*waE2E.Message, error) {
	if content.Media == nil {
		return &waE2E.Message{Conversation: proto.String(content.Text)}, nil
	}

	media := content.Media
	if strings.HasPrefix(media.MIME, "image") {
		upload, err := client.Upload(ctx, media.Data, wa.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}

		image := &waE2E.ImageMessage{
			Mimetype:      proto.String(media.MIME),
			URL:           proto.String(upload.URL),
			DirectPath:    proto.String(upload.DirectPath),
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(media.Data))),
		}
		if media.Caption != "" {
			image.Caption = proto.String(media.Caption)
		}

		return &waE2E.Message{ImageMessage: image}, nil
	}

	upload, err := client.Upload(ctx, media.Data, wa.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	document := &waE2E.DocumentMessage{
		Mimetype:      proto.String(media.MIME),
		URL:           proto.String(upload.URL),
		DirectPath:    proto.String(upload.DirectPath),
		MediaKey:      upload.MediaKey,
		FileEncSHA256: upload.FileEncSHA256,
		FileSHA256:    upload.FileSHA256,
		FileLength:    proto.Uint64(uint64(len(media.Data))),
	}
	if media.Caption != "" {
		document.Caption = proto.String(media.Caption)
	}

	return &waE2E.Message{DocumentMessage: document}, nil
}

// Download fetches the attachment bytes referenced by a classified event.
func (c *Client) Download(ctx context.Context, ev chat.Event) ([]byte, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return nil, errors.New("not connected")
	}

	downloadable, ok := ev.Raw.(wa.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("event from chat %s carries no downloadable media", ev.ChatID)
	}

	data, err := client.Download(ctx, downloadable)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}

	return data, nil
}

// handleEvent maps whatsmeow events onto the chat capability surface.
func (c *Client) handleEvent(evt any) {
	switch typed := evt.(type) {
	case *events.Connected:
		c.log.Info("WhatsApp connected")
		c.notify(chat.StateOpen)
	case *events.Disconnected:
		c.log.Warn("WhatsApp disconnected")
		c.notify(chat.StateClosed)
	case *events.LoggedOut:
		c.log.Error("WhatsApp session logged out; re-pairing required")
		c.notify(chat.StateClosed)
	case *events.Message:
		c.handleMessage(typed)
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	c.mu.RLock()
	handler := c.handler
	ctx := c.runCtx
	c.mu.RUnlock()

	if handler == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	raw, downloadable := mapMessage(evt)
	ev := chat.Classify(raw)
	if ev.Kind == chat.KindNone {
		return
	}
	ev.Raw = downloadable

	handler(ctx, ev)
}

// mapMessage flattens a whatsmeow message event into the adapter-neutral
// raw shape, returning the protocol handle needed for media download.
func mapMessage(evt *events.Message) (chat.RawMessage, wa.DownloadableMessage) {
	raw := chat.RawMessage{
		ChatID: evt.Info.Chat.String(),
		Sender: evt.Info.Sender.String(),
		FromMe: evt.Info.IsFromMe,
	}

	msg := evt.Message
	if msg == nil {
		return raw, nil
	}

	raw.Conversation = msg.GetConversation()
	raw.ExtendedText = msg.GetExtendedTextMessage().GetText()

	var downloadable wa.DownloadableMessage
	if image := msg.GetImageMessage(); image != nil {
		raw.Image = &chat.Attachment{Caption: image.GetCaption(), MIME: image.GetMimetype()}
		downloadable = image
	}
	if video := msg.GetVideoMessage(); video != nil {
		raw.Video = &chat.Attachment{Caption: video.GetCaption(), MIME: video.GetMimetype()}
		if downloadable == nil {
			downloadable = video
		}
	}
	if document := msg.GetDocumentMessage(); document != nil {
		raw.Document = &chat.Attachment{Caption: document.GetCaption(), MIME: document.GetMimetype()}
		if downloadable == nil {
			downloadable = document
		}
	}

	return raw, downloadable
}

func (c *Client) notify(state chat.State) {
	c.mu.RLock()
	observers := append([]func(chat.State){}, c.observers...)
	c.mu.RUnlock()

	for _, observer := range observers {
		observer(state)
	}
}
