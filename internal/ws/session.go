package ws

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrSessionClosed  = errors.New("ws: session not open")
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// Conn is the subset of *websocket.Conn a Session drives. Close and
// WriteControl may be called concurrently with the other methods.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is the server side of one live-feed connection. Outbound frames
// go through a bounded queue drained by a single writer goroutine, so frames
// reach the client in the order they were queued.
type Session struct {
	id    string
	group string
	conn  Conn
	hub   *Hub
	log   *zap.Logger

	mu    sync.RWMutex
	state State
	send  chan []byte
	done  chan struct{}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Group() string { return s.group }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed once the session has entered StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// open moves a connecting session to StateOpen and queues the welcome frame
// under the same lock, so no published frame can precede it.
func (s *Session) open(welcome []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return ErrSessionClosed
	}
	s.state = StateOpen
	s.send <- welcome
	return nil
}

// deliver queues data without blocking.
func (s *Session) deliver(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Send encodes ev and queues it for this session only.
func (s *Session) Send(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return s.deliver(data)
}

// Serve runs the read loop until the peer goes away or the session is
// closed, then closes the session. Text frames are echoed back.
func (s *Session) Serve() {
	defer s.Close()

	opts := s.hub.opts
	s.conn.SetReadLimit(opts.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(opts.PongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				s.log.Warn("read failed", zap.Error(err))
			} else {
				s.log.Debug("peer closed", zap.Error(err))
			}
			return
		}
		if s.State() != StateOpen {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(opts.PongWait)) //nolint:errcheck

		if mt != websocket.TextMessage {
			continue
		}
		text := string(data)
		if err := s.Send(Echo{Message: text}); err != nil {
			s.log.Warn("echo failed", zap.Error(err))
			continue
		}
		s.log.Debug("echoed message", zap.String("text", truncate(text, 100)))
	}
}

// Close ends the session with a normal closure.
func (s *Session) Close() {
	s.close(websocket.CloseNormalClosure, "")
}

// close enters StateClosed, leaves the group and releases the transport.
// Only the first call has any effect. Group removal errors are logged.
func (s *Session) close(code int, text string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasOpen := s.state == StateOpen
	s.state = StateClosed
	close(s.done)
	s.mu.Unlock()

	s.hub.leave(s)

	deadline := time.Now().Add(s.hub.opts.WriteTimeout)
	if err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		s.log.Debug("close frame not sent", zap.Error(err))
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("transport close", zap.Error(err))
	}

	if wasOpen {
		s.hub.metrics.SessionClosed()
	}
	s.log.Info("session closed", zap.Int("code", code))
}

// writePump drains the send queue and keeps the peer alive with pings.
// A failed write is logged and does not end the session; a dead peer is
// detected by the read deadline instead.
func (s *Session) writePump() {
	opts := s.hub.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.metrics.DeliveryFailed()
				s.log.Warn("write failed", zap.Error(err))
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteTimeout)); err != nil {
				s.log.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
