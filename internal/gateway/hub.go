package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/internal/session"
)

// Runner starts a transcription pipeline run. The pipeline
// orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, audioPath, sessionID string) error
}

// Hub maintains the set of connected observers and broadcasts session
// events to all of them. Delivery is best-effort: an observer that is
// absent, or whose buffer is full, misses events and recovers full
// state from the session store on reconnect.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessions *session.Service
	runner   Runner

	logger *zap.Logger
}

// NewHub creates a new gateway hub.
func NewHub(sessions *session.Service, runner Runner, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   sessions,
		runner:     runner,
		logger:     logger,
	}
}

// SetRunner wires the pipeline after construction. The hub and the
// pipeline reference each other, so one side is attached late. Must be
// called before the hub serves connections.
func (h *Hub) SetRunner(runner Runner) {
	h.runner = runner
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Observer connected", zap.Int("observers", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Observer disconnected", zap.Int("observers", h.ClientCount()))
		}
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastStatus sends a status event to all observers.
func (h *Hub) BroadcastStatus(sessionID, message string) {
	h.broadcast(OutboundMessage{Type: MessageTypeStatus, SessionID: sessionID, Message: message})
}

// BroadcastSegment sends a newly finalized segment to all observers.
func (h *Hub) BroadcastSegment(sessionID string, segment entities.Segment) {
	h.broadcast(OutboundMessage{Type: MessageTypeSegment, SessionID: sessionID, Segment: &segment})
}

// BroadcastError sends an error event to all observers.
func (h *Hub) BroadcastError(sessionID, message string) {
	h.broadcast(OutboundMessage{Type: MessageTypeError, SessionID: sessionID, Message: message})
}

func (h *Hub) broadcast(msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow observer: drop rather than block the pipeline.
			h.logger.Warn("Dropping event for slow observer")
		}
	}
}

// handleTranscribe processes an inbound transcription request. The
// run happens on its own goroutine; results arrive as broadcasts.
func (h *Hub) handleTranscribe(msg InboundMessage) {
	if msg.AudioPath == "" {
		h.logger.Warn("Transcribe request without audio path")
		return
	}

	ctx := context.Background()
	sessionID := msg.SessionID
	if sessionID == "" {
		sess, err := h.sessions.Create(ctx, "")
		if err != nil {
			h.logger.Error("Failed to create session for transcribe request", zap.Error(err))
			return
		}
		sessionID = sess.ID
	}

	go func() {
		if err := h.runner.Run(ctx, msg.AudioPath, sessionID); err != nil {
			h.logger.Error("Transcription run failed",
				zap.String("sessionID", sessionID),
				zap.Error(err))
		}
	}()
}
