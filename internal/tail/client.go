package tail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Sink receives every frame the live feed sends.
type Sink interface {
	Print(f Frame) error
}

// ConnSink is a Sink that also wants connection changes.
type ConnSink interface {
	Sink
	Connected(up bool)
}

// Client follows the live feed and hands every frame to a Sink,
// reconnecting when the connection drops.
type Client struct {
	url    string
	sink   Sink
	dialer *websocket.Dialer
	log     *zap.Logger

	// Overridable in tests.
	baseDelay time.Duration
	maxDelay  time.Duration

	writeMu sync.Mutex
}

func NewClient(url string, sink Sink, log *zap.Logger) *Client {
	return &Client{
		url:       url,
		sink:      sink,
		dialer:    websocket.DefaultDialer,
		log:       log,
		baseDelay: reconnectBaseDelay,
		maxDelay:  reconnectMaxDelay,
	}
}

// Run blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	delay := c.baseDelay
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("dial failed", zap.String("url", c.url), zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxDelay)
			continue
		}
		delay = c.baseDelay
		c.log.Info("connected", zap.String("url", c.url))
		c.connected(true)

		err = c.follow(ctx, conn)
		c.connected(false)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("disconnected", zap.Error(err))
	}
}

// follow reads frames from conn until it fails or ctx ends.
func (c *Client) follow(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	go func() {
		<-connCtx.Done()
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		conn.Close()
	}()
	go c.pingLoop(connCtx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck

		frame, err := ParseFrame(data)
		if err != nil {
			c.log.Debug("skipping frame", zap.Error(err))
			continue
		}
		if err := c.sink.Print(frame); err != nil {
			return fmt.Errorf("print: %w", err)
		}
	}
}

func (c *Client) connected(up bool) {
	if cs, ok := c.sink.(ConnSink); ok {
		cs.Connected(up)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
