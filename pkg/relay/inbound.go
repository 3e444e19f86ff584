package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"wabridge/pkg/chat"
	"wabridge/pkg/queue"
)

const defaultMaxInFlight = 4

// Sender delivers outbound content to a chat conversation. Satisfied by
// chat.Client.
type Sender interface {
	Send(ctx context.Context, chatID string, content chat.Content) error
}

// Inbound normalizes chat events and enqueues the resulting envelopes onto
// the inbound queue. Each event is processed on its own supervised task;
// the number of in-flight normalizations is bounded so slow media work
// cannot pile up unboundedly.
type Inbound struct {
	normalizer *Normalizer
	queue      queue.Queue
	sender     Sender
	pingPong   bool
	log        *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewInbound constructs the inbound relay. sender is only used by the
// optional ping auto-reply and may be nil when that is disabled.
func NewInbound(normalizer *Normalizer, q queue.Queue, sender Sender, pingPong bool, log *slog.Logger) *Inbound {
	if log == nil {
		log = slog.Default()
	}

	return &Inbound{
		normalizer: normalizer,
		queue:      q,
		sender:     sender,
		pingPong:   pingPong,
		log:        log.With("component", "relay.inbound"),
		slots:      make(chan struct{}, defaultMaxInFlight),
	}
}

// Handle processes one chat event. It blocks only while all in-flight
// slots are taken, then hands the work to a supervised task so media
// downloads never stall the protocol client's event delivery.
func (r *Inbound) Handle(ctx context.Context, ev chat.Event) {
	select {
	case <-ctx.Done():
		return
	case r.slots <- struct{}{}:
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		r.process(ctx, ev)
	}()
}

// Wait blocks until all in-flight event tasks have finished.
func (r *Inbound) Wait() {
	r.wg.Wait()
}

func (r *Inbound) process(ctx context.Context, ev chat.Event) {
	r.maybePong(ctx, ev)

	env := r.normalizer.Normalize(ctx, ev)
	if env == nil {
		r.log.Debug("Skipping event without content", "chat_id", ev.ChatID, "kind", ev.Kind)
		return
	}

	payload, err := env.Encode()
	if err != nil {
		r.log.Error("Failed to encode envelope, dropping event", "chat_id", ev.ChatID, "error", err)
		return
	}

	// No local retry: the protocol client does not block on enqueue
	// outcome, so a failed enqueue drops this event.
	if err := r.queue.Enqueue(ctx, payload); err != nil {
		r.log.Error("Failed to enqueue envelope, dropping event", "chat_id", ev.ChatID, "error", err)
		return
	}

	r.log.Info("Enqueued inbound envelope", "chat_id", ev.ChatID, "type", env.Type, "has_media_url", env.MediaURL != "")
}

// maybePong answers "ping" with "pong" when the auto-reply is enabled.
func (r *Inbound) maybePong(ctx context.Context, ev chat.Event) {
	if !r.pingPong || r.sender == nil || ev.FromMe {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(ev.Text), "ping") {
		return
	}

	if err := r.sender.Send(ctx, ev.ChatID, chat.Content{Text: "pong"}); err != nil {
		r.log.Error("Failed to answer ping", "chat_id", ev.ChatID, "error", err)
		return
	}

	r.log.Info("Answered ping", "chat_id", ev.ChatID)
}
