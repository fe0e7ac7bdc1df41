package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/group"
	"github.com/neurobot/backend/internal/metrics"
)

type inboundFrame struct {
	mt   int
	data []byte
}

// fakeConn is an in-memory Conn. Written text frames land on writes; frames
// pushed to inbound are returned by ReadMessage until Close is called.
type fakeConn struct {
	writes  chan []byte
	inbound chan inboundFrame
	closed  chan struct{}

	failWrites bool
	block      chan struct{}

	closeOnce sync.Once
	closeCode atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes:  make(chan []byte, 64),
		inbound: make(chan inboundFrame, 8),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.mt, f.data, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-c.closed:
		}
	}
	if c.failWrites {
		return errors.New("write: broken pipe")
	}
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.writes <- data:
		return nil
	case <-c.closed:
		return websocket.ErrCloseSent
	}
}

func (c *fakeConn) WriteControl(mt int, data []byte, _ time.Time) error {
	if mt == websocket.CloseMessage && len(data) >= 2 {
		c.closeCode.Store(int32(binary.BigEndian.Uint16(data)))
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next returns the next written frame decoded as a JSON object.
func (c *fakeConn) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.writes:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("frame is not JSON: %s", data)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// expectSilence fails if a frame is written within d.
func (c *fakeConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-c.writes:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(d):
	}
}

// faultyRegistry wraps MemoryRegistry with injectable failures.
type faultyRegistry struct {
	*group.MemoryRegistry
	addErr    error
	removeErr error
	removes   atomic.Int32
}

func newFaultyRegistry() *faultyRegistry {
	return &faultyRegistry{MemoryRegistry: group.NewMemoryRegistry()}
}

func (r *faultyRegistry) Add(ctx context.Context, g, id string) error {
	if r.addErr != nil {
		return r.addErr
	}
	return r.MemoryRegistry.Add(ctx, g, id)
}

func (r *faultyRegistry) Remove(ctx context.Context, g, id string) error {
	r.removes.Add(1)
	if r.removeErr != nil {
		return r.removeErr
	}
	return r.MemoryRegistry.Remove(ctx, g, id)
}

// gatedRegistry holds the first Add until release is closed.
type gatedRegistry struct {
	*group.MemoryRegistry
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRegistry() *gatedRegistry {
	return &gatedRegistry{
		MemoryRegistry: group.NewMemoryRegistry(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (r *gatedRegistry) Add(ctx context.Context, g, id string) error {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.MemoryRegistry.Add(ctx, g, id)
}

func testLiveConfig() config.LiveConfig {
	return config.LiveConfig{
		SendBuffer:      16,
		MaxMessageBytes: 4096,
		PingInterval:    time.Hour,
		PongWait:        time.Hour,
		WriteTimeout:    time.Second,
	}
}

func newTestHub(t *testing.T, reg group.Registry) *Hub {
	t.Helper()
	h, _ := newObservedHub(t, reg, testLiveConfig())
	return h
}

// newObservedHub records log entries in memory. Session goroutines may log
// after a test returns, which a testing.T backed logger does not allow.
func newObservedHub(t *testing.T, reg group.Registry, opts config.LiveConfig) (*Hub, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHub(reg, opts, zap.New(core), metrics.New())
	t.Cleanup(h.Close)
	return h, logs
}

// serve runs s.Serve in the background and waits for it on cleanup.
func serve(t *testing.T, s *Session) <-chan struct{} {
	t.Helper()
	served := make(chan struct{})
	go func() {
		s.Serve()
		close(served)
	}()
	t.Cleanup(func() {
		s.Close()
		<-served
	})
	return served
}

// connect opens a session on a fresh fakeConn and consumes its welcome frame.
func connect(t *testing.T, h *Hub) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s, err := h.Connect(context.Background(), conn, group.Live)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if m := conn.next(t); m["type"] != "welcome" {
		t.Fatalf("first frame type = %v, want welcome", m["type"])
	}
	return s, conn
}

func members(t *testing.T, reg group.Registry) []string {
	t.Helper()
	ids, err := reg.Members(context.Background(), group.Live)
	if err != nil {
		t.Fatalf("Members() error: %v", err)
	}
	return ids
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
