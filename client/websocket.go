package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// EventStream is a reconnecting websocket subscription to a push channel of StreamEvents.
type EventStream struct {
	URL      string
	Handlers *EventHandlers
	Dialer   *websocket.Dialer

	// MaxRetry is the number of consecutive failed dials tolerated; -1 retries forever
	MaxRetry int

	// Exponential backoff configuration
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute

	retryCount int
	connected  atomic.Bool
	mu         sync.Mutex // guards conn
	conn       *websocket.Conn
}

// NewEventStream creates a stream for rawURL with default reconnect settings.
func NewEventStream(rawURL string, handlers *EventHandlers) *EventStream {
	return &EventStream{
		URL:       rawURL,
		Handlers:  handlers,
		MaxRetry:  -1,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// IsConnected returns true while a websocket connection is open
func (s *EventStream) IsConnected() bool {
	return s.connected.Load()
}

// Run connects and dispatches events until ctx is cancelled or MaxRetry consecutive
// dials fail. A dropped connection is redialed.
func (s *EventStream) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Event stream connection attempt failed", "url", s.URL, "error", err)

			// Check if the maximum number of retries has been reached
			failures++
			if s.MaxRetry >= 0 && failures > s.MaxRetry {
				return fmt.Errorf("event stream: maximum number of retries reached (%d): %w", s.MaxRetry, err)
			}

			// Wait a bit before retrying to connect
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.getReconnectDelay()):
			}
			continue
		}

		failures = 0
		s.retryCount = 0
		s.handleMessages(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Event stream disconnected, reconnecting", "url", s.URL)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.getReconnectDelay()):
		}
	}
}

func (s *EventStream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	return conn, nil
}

// Ping sends a websocket ping on the open connection.
func (s *EventStream) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("event stream not connected")
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Handle incoming WebSocket messages until the connection fails or ctx ends
func (s *EventStream) handleMessages(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		s.connected.Store(false)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Event stream read error", "error", err)
			}
			return
		}

		var ev StreamEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			slog.Warn("Deserializing stream event", "error", err)
			continue
		}
		s.Handlers.Dispatch(ev)
	}
}

// exponential backoff calculation
func (s *EventStream) getReconnectDelay() time.Duration {
	// Calculate the delay as BaseDelay * 2^(retryCount), capped at MaxDelay
	delay := s.BaseDelay * time.Duration(math.Pow(2, float64(s.retryCount)))
	if s.MaxDelay > 0 && delay > s.MaxDelay {
		delay = s.MaxDelay
	}
	s.retryCount++ // Increment the retry counter for the next attempt
	return delay
}

// websocketURL turns an http(s) base URL into the ws(s) URL of path, adding query.
func websocketURL(base string, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
