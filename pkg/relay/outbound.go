package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wabridge/pkg/chat"
	"wabridge/pkg/envelope"
	"wabridge/pkg/queue"
)

// LoopState labels what the outbound loop is currently doing.
type LoopState string

const (
	StateIdle        LoopState = "idle"
	StateDispatching LoopState = "dispatching"
	StateErroring    LoopState = "erroring"
)

const (
	defaultIdleBackoff  = 1 * time.Second
	defaultErrorBackoff = 2 * time.Second

	// defaultMaxDeliveries bounds redelivery of one message. Beyond it the
	// message is treated as poison and discarded instead of blocking the
	// queue with endless retries.
	defaultMaxDeliveries int64 = 5
)

// MediaFetcher retrieves the bytes behind an externalized media URL.
type MediaFetcher func(ctx context.Context, url string) ([]byte, error)

// Outbound polls the outbound queue and dispatches decoded envelopes to the
// chat connection, deleting each queue entry only after the send is
// confirmed. One loop instance processes strictly one message at a time.
type Outbound struct {
	queue  queue.Queue
	sender Sender
	fetch  MediaFetcher
	log    *slog.Logger

	idleBackoff   time.Duration
	errorBackoff  time.Duration
	maxDeliveries int64

	mu       sync.RWMutex
	state    LoopState
	inFlight *queue.Message
}

// NewOutbound constructs the outbound relay loop. fetch defaults to an
// HTTP fetcher when nil.
func NewOutbound(q queue.Queue, sender Sender, fetch MediaFetcher, log *slog.Logger) *Outbound {
	if fetch == nil {
		fetch = FetchHTTP(nil)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Outbound{
		queue:         q,
		sender:        sender,
		fetch:         fetch,
		log:           log.With("component", "relay.outbound"),
		idleBackoff:   defaultIdleBackoff,
		errorBackoff:  defaultErrorBackoff,
		maxDeliveries: defaultMaxDeliveries,
		state:         StateIdle,
	}
}

// State reports the loop state and the id of the message being processed.
func (o *Outbound) State() (LoopState, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	id := ""
	if o.inFlight != nil {
		id = o.inFlight.ID
	}

	return o.state, id
}

// Run polls until ctx is cancelled. Transient faults abort only the
// current iteration; the loop itself never stops on its own.
func (o *Outbound) Run(ctx context.Context) error {
	o.log.Info("Outbound relay loop started")

	for {
		if err := ctx.Err(); err != nil {
			o.log.Info("Outbound relay loop stopped")
			return err
		}

		o.iterate(ctx)
	}
}

// iterate performs one receive/dispatch/acknowledge cycle.
func (o *Outbound) iterate(ctx context.Context) {
	msg, err := o.queue.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.enterErroring(ctx, "Failed to receive from outbound queue", err)
		return
	}

	if msg == nil {
		o.setState(StateIdle, nil)
		o.sleep(ctx, o.idleBackoff)
		return
	}

	// Track the delivery token until this iteration resolves, so shutdown
	// never loses sight of a dequeued-but-unacknowledged message.
	o.setState(StateDispatching, msg)
	defer o.setState(StateIdle, nil)

	env, err := envelope.Decode(msg.Payload)
	if err != nil {
		o.discard(ctx, msg, fmt.Sprintf("undecodable payload: %v", err))
		return
	}

	if msg.Deliveries > o.maxDeliveries {
		o.discard(ctx, msg, fmt.Sprintf("delivery count %d exceeds limit %d", msg.Deliveries, o.maxDeliveries))
		return
	}

	if err := o.dispatch(ctx, env); err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient: the message stays in the queue and becomes visible
		// again once its visibility timeout expires.
		o.enterErroring(ctx, "Failed to dispatch envelope, message retained", err)
		return
	}

	if err := o.queue.Delete(ctx, msg.ID, msg.PopReceipt); err != nil {
		if ctx.Err() != nil {
			return
		}
		// The send went through; a failed acknowledge means the message
		// will be redelivered and sent again. At-least-once by design.
		o.enterErroring(ctx, "Failed to delete dispatched message, redelivery expected", err)
		return
	}

	o.log.Info("Dispatched and acknowledged outbound message", "message_id", msg.ID, "chat_id", env.ChatID, "type", env.Type)
}

// dispatch sends one envelope to the chat connection.
func (o *Outbound) dispatch(ctx context.Context, env envelope.Envelope) error {
	switch env.Type {
	case envelope.TypeText:
		return o.sender.Send(ctx, env.ChatID, chat.Content{Text: env.Text})

	case envelope.TypeMedia:
		if env.MediaURL == "" {
			// Degraded envelope: media was never externalized. Deliver the
			// caption when there is one rather than dropping silently.
			if env.Text == "" {
				o.log.Warn("Media envelope without URL or caption, nothing to send", "chat_id", env.ChatID)
				return nil
			}
			return o.sender.Send(ctx, env.ChatID, chat.Content{Text: env.Text})
		}

		data, err := o.fetch(ctx, env.MediaURL)
		if err != nil {
			return fmt.Errorf("fetch media %q: %w", env.MediaURL, err)
		}

		return o.sender.Send(ctx, env.ChatID, chat.Content{
			Media: &chat.MediaContent{Data: data, MIME: env.MIME, Caption: env.Text},
		})

	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
}

// discard deletes a poison message so it cannot block the queue forever.
func (o *Outbound) discard(ctx context.Context, msg *queue.Message, reason string) {
	o.log.Error("Discarding poison message", "message_id", msg.ID, "reason", reason)

	if err := o.queue.Delete(ctx, msg.ID, msg.PopReceipt); err != nil {
		if ctx.Err() != nil {
			return
		}
		o.enterErroring(ctx, "Failed to delete poison message", err)
	}
}

func (o *Outbound) enterErroring(ctx context.Context, msg string, err error) {
	o.log.Error(msg, "error", err)
	o.mu.Lock()
	o.state = StateErroring
	o.mu.Unlock()
	o.sleep(ctx, o.errorBackoff)
}

func (o *Outbound) setState(state LoopState, msg *queue.Message) {
	o.mu.Lock()
	o.state = state
	o.inFlight = msg
	o.mu.Unlock()
}

// sleep waits for the backoff interval or until ctx is cancelled.
func (o *Outbound) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// FetchHTTP builds the default MediaFetcher over an HTTP client.
func FetchHTTP(client *http.Client) MediaFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}

		return io.ReadAll(resp.Body)
	}
}
