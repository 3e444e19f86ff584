package relay

import (
	"context"
	"log/slog"
	"time"

	"wabridge/pkg/chat"
	"wabridge/pkg/envelope"
)

// Downloader fetches the binary payload behind a media event. Satisfied by
// chat.Client.
type Downloader interface {
	Download(ctx context.Context, ev chat.Event) ([]byte, error)
}

// Externalizer moves binary payloads to object storage. Satisfied by
// media.Externalizer.
type Externalizer interface {
	Externalize(ctx context.Context, data []byte, mime string) (string, error)
}

// Normalizer maps classified chat events to canonical envelopes,
// externalizing media payloads along the way.
type Normalizer struct {
	downloader Downloader
	media      Externalizer
	log        *slog.Logger

	now func() time.Time
}

// NewNormalizer constructs a normalizer over the chat download and media
// externalization capabilities.
func NewNormalizer(downloader Downloader, media Externalizer, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}

	return &Normalizer{
		downloader: downloader,
		media:      media,
		log:        log.With("component", "relay.normalizer"),
		now:        time.Now,
	}
}

// Normalize produces the envelope for one event, or nil for events that
// carry nothing worth enqueueing.
//
// Media faults degrade rather than abort: when the download or the upload
// fails, the envelope keeps its metadata and ships without a media URL.
func (n *Normalizer) Normalize(ctx context.Context, ev chat.Event) *envelope.Envelope {
	if ev.Kind == chat.KindNone {
		return nil
	}

	env := &envelope.Envelope{
		ChatID:    ev.ChatID,
		Sender:    ev.Sender,
		Timestamp: n.now().UnixMilli(),
		Type:      envelope.TypeText,
		Text:      ev.Text,
		FromMe:    ev.FromMe,
	}

	if ev.Kind.IsMedia() {
		env.Type = envelope.TypeMedia
		env.MIME = ev.MIME

		if ev.MissingMIME {
			n.log.Warn("Document attachment declared no MIME type, defaulting", "chat_id", ev.ChatID, "mime", ev.MIME)
		}

		env.MediaURL = n.externalize(ctx, ev)
	}

	if !env.HasContent() {
		return nil
	}

	return env
}

// externalize downloads and uploads the attachment, returning "" on any
// fault so the envelope degrades instead of being dropped.
func (n *Normalizer) externalize(ctx context.Context, ev chat.Event) string {
	data, err := n.downloader.Download(ctx, ev)
	if err != nil {
		n.log.Error("Failed to download media, envelope degrades to metadata only", "chat_id", ev.ChatID, "kind", ev.Kind, "error", err)
		return ""
	}

	url, err := n.media.Externalize(ctx, data, ev.MIME)
	if err != nil {
		n.log.Error("Failed to externalize media, envelope degrades to metadata only", "chat_id", ev.ChatID, "kind", ev.Kind, "error", err)
		return ""
	}

	return url
}
