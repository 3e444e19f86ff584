package relay

import (
	"context"
	"errors"
	"testing"

	"wabridge/pkg/chat"
	"wabridge/pkg/envelope"
)

func TestInboundEnqueuesNormalizedEnvelope(t *testing.T) {
	q := &scriptedQueue{}
	n := fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{})
	r := NewInbound(n, q, nil, false, nil)

	r.Handle(context.Background(), chat.Event{
		ChatID: "123@s.whatsapp.net",
		Sender: "123@s.whatsapp.net",
		Kind:   chat.KindText,
		Text:   "hello",
	})
	r.Wait()

	enqueued, _, _ := q.snapshot()
	if len(enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(enqueued))
	}

	env, err := envelope.Decode(enqueued[0])
	if err != nil {
		t.Fatalf("decode enqueued payload: %v", err)
	}
	if env.ChatID != "123@s.whatsapp.net" || env.Type != envelope.TypeText || env.Text != "hello" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.MediaURL != "" || env.MIME != "" {
		t.Fatalf("text envelope carries media fields: %+v", env)
	}
}

func TestInboundSkipsNoContentEvent(t *testing.T) {
	q := &scriptedQueue{}
	r := NewInbound(fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{}), q, nil, false, nil)

	r.Handle(context.Background(), chat.Event{ChatID: "1", Kind: chat.KindNone})
	r.Wait()

	enqueued, _, _ := q.snapshot()
	if len(enqueued) != 0 {
		t.Fatalf("expected no enqueue, got %d", len(enqueued))
	}
}

func TestInboundEnqueueFailureDropsEvent(t *testing.T) {
	q := &scriptedQueue{enqueueErr: errors.New("queue down")}
	r := NewInbound(fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{}), q, nil, false, nil)

	// Must not panic and must not retry.
	r.Handle(context.Background(), chat.Event{ChatID: "1", Kind: chat.KindText, Text: "lost"})
	r.Wait()

	enqueued, _, _ := q.snapshot()
	if len(enqueued) != 0 {
		t.Fatalf("expected drop, got %d enqueued", len(enqueued))
	}
}

func TestInboundPingPong(t *testing.T) {
	sender := &scriptedSender{}
	q := &scriptedQueue{}
	r := NewInbound(fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{}), q, sender, true, nil)

	r.Handle(context.Background(), chat.Event{ChatID: "123", Kind: chat.KindText, Text: " Ping "})
	r.Wait()

	sends := sender.snapshot()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if sends[0].chatID != "123" || sends[0].content.Text != "pong" {
		t.Fatalf("send = %+v", sends[0])
	}

	// The ping itself still flows to the queue.
	enqueued, _, _ := q.snapshot()
	if len(enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(enqueued))
	}
}

func TestInboundPingPongIgnoresOwnMessages(t *testing.T) {
	sender := &scriptedSender{}
	r := NewInbound(fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{}), &scriptedQueue{}, sender, true, nil)

	r.Handle(context.Background(), chat.Event{ChatID: "123", Kind: chat.KindText, Text: "ping", FromMe: true})
	r.Wait()

	if len(sender.snapshot()) != 0 {
		t.Fatal("own ping must not be answered")
	}
}

func TestInboundPingPongDisabledByDefault(t *testing.T) {
	sender := &scriptedSender{}
	r := NewInbound(fixedNormalizer(&scriptedDownloader{}, &scriptedExternalizer{}), &scriptedQueue{}, sender, false, nil)

	r.Handle(context.Background(), chat.Event{ChatID: "123", Kind: chat.KindText, Text: "ping"})
	r.Wait()

	if len(sender.snapshot()) != 0 {
		t.Fatal("ping answered while auto-reply disabled")
	}
}
