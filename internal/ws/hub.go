package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/group"
	"github.com/neurobot/backend/internal/metrics"
)

var ErrHubClosed = errors.New("ws: hub closed")

// Hub owns every live session in the process and fans published events out
// to the members of a group. Group membership lives in the Registry; the hub
// only maps session ids to the sessions it can write to.
type Hub struct {
	registry group.Registry
	opts     config.LiveConfig
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(registry group.Registry, opts config.LiveConfig, log *zap.Logger, m *metrics.Metrics) *Hub {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 1
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 54 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	return &Hub{
		registry: registry,
		opts:     opts,
		log:      log,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Connect turns an accepted connection into an open session joined to
// groupName and queues the welcome frame. If the group join fails the
// connection is closed and the error returned; the session is never
// visible to publishers in that case.
func (h *Hub) Connect(ctx context.Context, conn Conn, groupName string) (*Session, error) {
	id := uuid.NewString()
	s := &Session{
		id:    id,
		group: groupName,
		conn:  conn,
		hub:   h,
		log:   h.log.With(zap.String("session", id)),
		state: StateConnecting,
		send:  make(chan []byte, h.opts.SendBuffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close(websocket.CloseGoingAway, "server shutting down")
		return nil, ErrHubClosed
	}
	h.sessions[id] = s
	h.mu.Unlock()

	if err := h.registry.Add(ctx, groupName, id); err != nil {
		s.log.Error("group join failed", zap.String("group", groupName), zap.Error(err))
		s.close(websocket.CloseInternalServerErr, "group join failed")
		return nil, fmt.Errorf("join %s: %w", groupName, err)
	}

	welcome, err := Encode(NewWelcome())
	if err != nil {
		s.close(websocket.CloseInternalServerErr, "")
		return nil, err
	}
	if err := s.open(welcome); err != nil {
		// Closed while joining; the join may have landed after close left
		// the group, so leave again.
		h.leave(s)
		return nil, err
	}
	h.metrics.SessionOpened()

	go s.writePump()

	s.log.Info("session open", zap.String("group", groupName))
	return s, nil
}

// leave removes s from its group and from the hub. It never fails; a
// registry error is logged.
func (h *Hub) leave(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()
	if err := h.registry.Remove(ctx, s.group, s.id); err != nil {
		s.log.Warn("group leave failed", zap.String("group", s.group), zap.Error(err))
	}

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

// Publish encodes ev once and delivers it to every current member of
// groupName. It does not report per-session failures.
func (h *Hub) Publish(ctx context.Context, groupName string, ev Event) {
	data, err := Encode(ev)
	if err != nil {
		h.log.Error("publish encode failed", zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
		return
	}
	h.Broadcast(ctx, groupName, data)
}

// Broadcast queues an already encoded frame for every member of groupName
// hosted by this hub and returns how many sessions accepted it. Members the
// hub does not host are skipped.
func (h *Hub) Broadcast(ctx context.Context, groupName string, data []byte) int {
	ids, err := h.registry.Members(ctx, groupName)
	if err != nil {
		h.log.Error("group members lookup failed", zap.String("group", groupName), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := h.sessions[id]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.deliver(data); err != nil {
			h.metrics.DeliveryFailed()
			s.log.Warn("delivery dropped", zap.Error(err))
			continue
		}
		delivered++
	}
	h.metrics.EventPublished()

	h.log.Debug("published",
		zap.String("group", groupName),
		zap.Int("members", len(ids)),
		zap.Int("delivered", delivered))
	return delivered
}

// Session returns the hosted session with the given id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close closes every session with a going-away code and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}
	h.log.Info("hub closed", zap.Int("sessions", len(sessions)))
}
