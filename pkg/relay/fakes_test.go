package relay

import (
	"context"
	"sync"

	"wabridge/pkg/chat"
	"wabridge/pkg/queue"
)

// scriptedQueue hands out pre-loaded messages and records every call.
type scriptedQueue struct {
	mu sync.Mutex

	messages    []*queue.Message
	receiveErrs []error
	deleteErrs  []error
	enqueueErr  error

	ensured  bool
	enqueued []string
	deleted  []string
}

func (q *scriptedQueue) EnsureExists(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensured = true
	return nil
}

func (q *scriptedQueue) Enqueue(_ context.Context, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func (q *scriptedQueue) Receive(context.Context) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.receiveErrs) > 0 {
		err := q.receiveErrs[0]
		q.receiveErrs = q.receiveErrs[1:]
		return nil, err
	}
	if len(q.messages) == 0 {
		return nil, nil
	}

	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, nil
}

func (q *scriptedQueue) Delete(_ context.Context, id, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.deleteErrs) > 0 {
		err := q.deleteErrs[0]
		q.deleteErrs = q.deleteErrs[1:]
		if err != nil {
			return err
		}
	}

	q.deleted = append(q.deleted, id)
	return nil
}

func (q *scriptedQueue) push(msg *queue.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
}

func (q *scriptedQueue) snapshot() (enqueued, deleted []string, pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.enqueued...), append([]string{}, q.deleted...), len(q.messages)
}

type sentItem struct {
	chatID  string
	content chat.Content
}

// scriptedSender records sends, optionally failing scripted calls first.
type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	sends []sentItem
}

func (s *scriptedSender) Send(_ context.Context, chatID string, content chat.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}

	s.sends = append(s.sends, sentItem{chatID: chatID, content: content})
	return nil
}

func (s *scriptedSender) snapshot() []sentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentItem{}, s.sends...)
}

// scriptedDownloader returns fixed bytes or an error for media events.
type scriptedDownloader struct {
	data []byte
	err  error
}

func (d *scriptedDownloader) Download(context.Context, chat.Event) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.data, nil
}

// scriptedExternalizer records uploads and returns a canned URL.
type scriptedExternalizer struct {
	mu    sync.Mutex
	url   string
	err   error
	mimes []string
	data  [][]byte
}

func (e *scriptedExternalizer) Externalize(_ context.Context, data []byte, mime string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return "", e.err
	}
	e.data = append(e.data, data)
	e.mimes = append(e.mimes, mime)
	return e.url, nil
}

// scriptedChat is a controllable chat.Client for supervisor tests.
type scriptedChat struct {
	mu sync.Mutex

	handler    chat.Handler
	observers  []func(chat.State)
	sender     scriptedSender
	downloader scriptedDownloader

	connectErr   error
	connected    bool
	disconnected bool
	onConnect    func()
}

func (c *scriptedChat) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

func (c *scriptedChat) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *scriptedChat) Send(ctx context.Context, chatID string, content chat.Content) error {
	return c.sender.Send(ctx, chatID, content)
}

func (c *scriptedChat) Download(ctx context.Context, ev chat.Event) ([]byte, error) {
	return c.downloader.Download(ctx, ev)
}

func (c *scriptedChat) OnEvent(handler chat.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *scriptedChat) OnConnectionChange(observer func(chat.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, observer)
}

func (c *scriptedChat) emitState(state chat.State) {
	c.mu.Lock()
	observers := append([]func(chat.State){}, c.observers...)
	c.mu.Unlock()

	for _, observer := range observers {
		observer(state)
	}
}

func (c *scriptedChat) emitEvent(ctx context.Context, ev chat.Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(ctx, ev)
	}
}
