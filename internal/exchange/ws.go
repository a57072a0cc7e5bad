// ws.go implements the streaming client for Binance USD-M futures market
// data (§4.3). A single long-lived framed connection carries aggTrade,
// depthUpdate and continuous_kline frames for whatever streams the caller
// has subscribed; the client auto-reconnects on error or close, rotates the
// connection proactively every 24 hours, and replies to venue pings so the
// connection survives past the idle timeout the venue enforces.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxStreams            = 200
	subscribeTokenRate    = 10 // subscribe frames per second, per the venue's limit
	rotationPeriod        = 24 * time.Hour
	reconnectBackoffFloor = 3 * time.Second
	writeTimeout          = 10 * time.Second
)

// ErrTooManyStreams is returned by Connect or Subscribe when the combined
// stream count would exceed the venue's per-connection limit.
var ErrTooManyStreams = errors.New("exchange: stream count exceeds venue limit of 200")

// ErrNotConnected is returned by the internal subscribe-frame write path when
// it is handed no connection. Subscribe itself does not return it: without a
// connection it only remembers the streams.
var ErrNotConnected = errors.New("exchange: not connected")

// Conn is the subset of *websocket.Conn the streaming client depends on.
// Abstracted so ListenLoop can be exercised against a fake connection in
// tests without opening a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to url. The default wraps gorilla/websocket; tests
// substitute a fake that never touches the network.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DefaultDialer dials a real WebSocket connection with gorilla/websocket.
func DefaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MessageCallback receives the text payload of every data frame read off
// the connection. Installed once via SetMessageCallback.
type MessageCallback func(data []byte)

// StreamClient manages a single long-lived streaming connection. The zero
// value is not usable; construct with NewStreamClient.
type StreamClient struct {
	baseURL string
	dial    Dialer
	logger  *slog.Logger

	limiter *TokenBucket
	sleep   func(time.Duration)
	now     func() time.Time

	mu          sync.Mutex
	conn        Conn
	connectedAt time.Time
	streams     []string // remembered, in subscribe order, lower-cased, deduped

	onMessage MessageCallback
}

// NewStreamClient creates a client for the given streaming base URL (e.g.
// "wss://fstream.binance.com").
func NewStreamClient(baseURL string, dial Dialer, logger *slog.Logger) *StreamClient {
	if dial == nil {
		dial = DefaultDialer
	}
	return &StreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		dial:    dial,
		logger:  logger.With("component", "stream_client"),
		limiter: NewTokenBucket(1, subscribeTokenRate),
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// SetMessageCallback installs the single callback invoked with the text
// payload of each data frame. Must be called before ListenLoop.
func (c *StreamClient) SetMessageCallback(fn MessageCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Connect opens the connection for the given streams and records the
// connection-start time. Fails if len(streams) exceeds the venue limit.
func (c *StreamClient) Connect(ctx context.Context, streams []string) error {
	if len(streams) > maxStreams {
		return fmt.Errorf("exchange: connect with %d streams: %w", len(streams), ErrTooManyStreams)
	}

	normalized := normalizeStreams(streams)
	url, err := buildURL(c.baseURL, normalized)
	if err != nil {
		return fmt.Errorf("exchange: build url: %w", err)
	}

	conn, err := c.dial(ctx, url)
	if err != nil {
		return fmt.Errorf("exchange: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connectedAt = c.now()
	c.streams = normalized
	c.mu.Unlock()

	return nil
}

// Subscribe remembers streams and, if connected, emits a SUBSCRIBE control
// frame listing just the new streams. Fails if the number of remembered
// streams plus len(streams) would exceed the venue limit. Rate-limited to at
// most ten subscribe frames per second across the client's lifetime.
func (c *StreamClient) Subscribe(ctx context.Context, streams []string) error {
	add := normalizeStreams(streams)

	c.mu.Lock()
	if len(c.streams)+len(streams) > maxStreams {
		c.mu.Unlock()
		return fmt.Errorf("exchange: subscribe %d more on top of %d remembered: %w", len(streams), len(c.streams), ErrTooManyStreams)
	}
	c.streams = mergeStreams(c.streams, add)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.writeSubscribeFrame(conn, add)
}

func (c *StreamClient) writeSubscribeFrame(conn Conn, streams []string) error {
	frame := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int      `json:"id"`
	}{Method: "SUBSCRIBE", Params: streams, ID: 1}

	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("exchange: marshal subscribe frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}

// rememberedStreams returns a copy of the client's current subscription set.
func (c *StreamClient) rememberedStreams() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.streams))
	copy(out, c.streams)
	return out
}

// ListenLoop runs the main read loop until a fatal error (no remembered
// streams to reconnect with, or ctx cancellation). It reconnects internally
// on read errors, close frames, and the 24-hour forced rotation, replying to
// venue pings and re-subscribing the remembered stream set after every
// reconnect. Not resumable: once it returns, the caller must build a new
// StreamClient to listen again.
func (c *StreamClient) ListenLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, connectedAt := c.currentConn()
		if conn == nil {
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if c.now().Sub(connectedAt) >= rotationPeriod {
			c.logger.Info("rotating connection past 24h limit")
			c.closeConn()
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if err := c.readOne(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("streaming read failed, reconnecting", "error", err)
			c.closeConn()
			if err := c.reconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *StreamClient) currentConn() (Conn, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.connectedAt
}

func (c *StreamClient) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// readOne blocks for a single frame and handles it per §4.3's per-frame
// rules. Cancelling ctx closes conn, which ends a pending read with an error;
// there is no per-read timeout, matching the venue's reliance on the 24h
// rotation as the only proactive liveness check.
func (c *StreamClient) readOne(ctx context.Context, conn Conn) error {
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	switch msgType {
	case websocket.TextMessage:
		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	case websocket.PingMessage:
		_ = conn.WriteControl(websocket.PongMessage, data, time.Now().Add(writeTimeout))
	case websocket.PongMessage, websocket.BinaryMessage:
		// accepted silently
	}
	return nil
}

// reconnect implements the Reconnecting state: sleep at least the back-off
// floor, fail if there's nothing to resubscribe to, otherwise dial a fresh
// connection and emit one subscribe frame covering the whole remembered set.
func (c *StreamClient) reconnect(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.sleep(reconnectBackoffFloor)

		streams := c.rememberedStreams()
		if len(streams) == 0 {
			return fmt.Errorf("exchange: reconnect: no remembered streams to resubscribe")
		}

		url, err := buildURL(c.baseURL, streams)
		if err != nil {
			return fmt.Errorf("exchange: reconnect: build url: %w", err)
		}

		conn, err := c.dial(ctx, url)
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
			continue
		}

		if err := c.writeSubscribeFrame(conn, streams); err != nil {
			c.logger.Warn("reconnect resubscribe failed", "error", err)
			conn.Close()
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connectedAt = c.now()
		c.mu.Unlock()

		return nil
	}
}

// buildURL assembles the streaming endpoint URL per §6: a single stream
// uses the `/ws/<name>` form, two or more use the combined `/stream?streams=`
// form joined by "/".
func buildURL(baseURL string, streams []string) (string, error) {
	if len(streams) == 0 {
		return "", fmt.Errorf("exchange: at least one stream is required")
	}
	if len(streams) == 1 {
		return fmt.Sprintf("%s/ws/%s", baseURL, streams[0]), nil
	}
	return fmt.Sprintf("%s/stream?streams=/%s", baseURL, strings.Join(streams, "/")), nil
}

func normalizeStreams(streams []string) []string {
	return mergeStreams(nil, streams)
}

// mergeStreams appends add to base, lower-casing each entry and skipping any
// already present in base, preserving first-seen order.
func mergeStreams(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, s := range base {
		s = strings.ToLower(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range add {
		s = strings.ToLower(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
