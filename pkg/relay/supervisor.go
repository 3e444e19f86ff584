package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"wabridge/pkg/chat"
	"wabridge/pkg/config"
	"wabridge/pkg/envelope"
	"wabridge/pkg/queue"
	"wabridge/pkg/storage"
)

const (
	livenessBody    = "WhatsApp bridge is running."
	defaultSendText = "pong"

	// sendSender identifies envelopes produced by the /send surface.
	sendSender = "bridge@wabridge"

	httpShutdownTimeout = 5 * time.Second
)

// Supervisor owns the bridge lifecycle: it prepares external resources,
// wires the inbound relay to chat events, keeps exactly one outbound loop
// running per open connection, and serves the HTTP surface.
type Supervisor struct {
	cfg           *config.Config
	chat          chat.Client
	inboundQueue  queue.Queue
	outboundQueue queue.Queue
	store         storage.BlobStore
	inbound       *Inbound
	fetch         MediaFetcher
	log           *slog.Logger

	mu         sync.Mutex
	startedAt  time.Time
	chatState  chat.State
	loop       *Outbound
	loopCancel context.CancelFunc
	restarts   int
}

// Status is the operational snapshot served at /status.
type Status struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	ChatState     string    `json:"chat_state"`
	LoopRunning   bool      `json:"loop_running"`
	LoopState     LoopState `json:"loop_state,omitempty"`
	InFlightID    string    `json:"in_flight_id,omitempty"`
	LoopRestarts  int       `json:"loop_restarts"`
}

// NewSupervisor wires the bridge components together. All capabilities are
// injected so tests can substitute in-memory fakes.
func NewSupervisor(cfg *config.Config, chatClient chat.Client, inboundQueue, outboundQueue queue.Queue, store storage.BlobStore, externalizer Externalizer, fetch MediaFetcher, log *slog.Logger) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if chatClient == nil {
		return nil, errors.New("chat client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	normalizer := NewNormalizer(chatClient, externalizer, log)
	inbound := NewInbound(normalizer, inboundQueue, chatClient, cfg.Chat.PingPong, log)

	return &Supervisor{
		cfg:           cfg,
		chat:          chatClient,
		inboundQueue:  inboundQueue,
		outboundQueue: outboundQueue,
		store:         store,
		inbound:       inbound,
		fetch:         fetch,
		log:           log.With("component", "relay.supervisor"),
		chatState:     chat.StateClosed,
	}, nil
}

// Run starts the bridge and blocks until ctx is cancelled or the HTTP
// server fails. External resources are prepared before the chat connection
// opens, so no event can arrive ahead of a usable queue.
func (s *Supervisor) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.ensureResources(ctx); err != nil {
		return err
	}

	s.chat.OnEvent(s.inbound.Handle)
	s.chat.OnConnectionChange(func(state chat.State) {
		s.handleConnectionChange(ctx, state)
	})

	serverErrors := make(chan error, 1)
	server := s.startHTTPServer(ctx, serverErrors)

	if err := s.chat.Connect(ctx); err != nil {
		s.shutdownHTTPServer(server)
		return fmt.Errorf("connect chat: %w", err)
	}

	select {
	case <-ctx.Done():
		s.stopLoop()
		s.chat.Disconnect()
		s.inbound.Wait()
		s.shutdownHTTPServer(server)
		return nil
	case err := <-serverErrors:
		s.stopLoop()
		s.chat.Disconnect()
		s.inbound.Wait()
		return err
	}
}

// Status reports the current operational snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Status:       "ok",
		ChatState:    string(s.chatState),
		LoopRunning:  s.loopCancel != nil,
		LoopRestarts: s.restarts,
	}
	if !s.startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.loop != nil {
		status.LoopState, status.InFlightID = s.loop.State()
	}

	return status
}

// ensureResources creates both queues and the blob container when absent.
func (s *Supervisor) ensureResources(ctx context.Context) error {
	s.log.Info("Preparing external resources")

	if err := s.inboundQueue.EnsureExists(ctx); err != nil {
		return fmt.Errorf("ensure inbound queue: %w", err)
	}
	if err := s.outboundQueue.EnsureExists(ctx); err != nil {
		return fmt.Errorf("ensure outbound queue: %w", err)
	}
	if err := s.store.EnsureContainer(ctx); err != nil {
		return fmt.Errorf("ensure blob container: %w", err)
	}

	return nil
}

// handleConnectionChange restarts the outbound loop on every reconnect.
// The old loop is cancelled before a new one starts, so there is never
// more than one dispatcher sending against the connection.
func (s *Supervisor) handleConnectionChange(runCtx context.Context, state chat.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chatState = state

	if state != chat.StateOpen {
		s.stopLoopLocked()
		return
	}

	s.stopLoopLocked()

	loop := NewOutbound(s.outboundQueue, s.chat, s.fetch, s.log)
	loopCtx, cancel := context.WithCancel(runCtx)
	s.loop = loop
	s.loopCancel = cancel
	s.restarts++

	go func() {
		err := loop.Run(loopCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Outbound loop exited", "error", err)
		}
	}()
}

func (s *Supervisor) stopLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLoopLocked()
}

func (s *Supervisor) stopLoopLocked() {
	if s.loopCancel == nil {
		return
	}

	s.loopCancel()
	s.loopCancel = nil
	s.loop = nil
}

// startHTTPServer serves the liveness route, the status snapshot and the
// /send producer on the configured port.
func (s *Supervisor) startHTTPServer(ctx context.Context, serverErrors chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleLiveness)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/send", s.handleSend)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		s.log.Info("HTTP server listening", "port", s.cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("http server: %w", err)
		}
	}()

	return server
}

func (s *Supervisor) shutdownHTTPServer(server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *Supervisor) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, livenessBody)
}

func (s *Supervisor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Status())
}

// handleSend enqueues one text envelope onto the outbound queue, mirroring
// the queue producer the bridge normally pairs with.
func (s *Supervisor) handleSend(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(r.URL.Query().Get("chatId"))
	if chatID == "" {
		http.Error(w, "missing chatId parameter", http.StatusBadRequest)
		return
	}

	text := r.URL.Query().Get("text")
	if text == "" {
		text = defaultSendText
	}

	env := envelope.NewText(chatID, sendSender, text, true)
	payload, err := env.Encode()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.outboundQueue.Enqueue(r.Context(), payload); err != nil {
		s.log.Error("Failed to enqueue /send envelope", "chat_id", chatID, "error", err)
		http.Error(w, "enqueue failed", http.StatusBadGateway)
		return
	}

	s.log.Info("Enqueued outbound envelope via /send", "chat_id", chatID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}
