package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle of a websocket connection.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// WSHandler supplies the protocol on top of a WSWorker connection.
type WSHandler interface {
	URL() string
	ID() string
	// OnConnect runs after every successful dial, before any message is read.
	OnConnect(ctx context.Context, w *WSWorker) error
	OnMessage(ctx context.Context, msg []byte)
	// OnDisconnect runs when an established connection is lost.
	OnDisconnect(err error)
}

// WSWorker keeps one websocket connection alive.
// It reconnects with backoff, pings the server and serializes writes.
type WSWorker struct {
	handler WSHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	state   ConnState
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
	Backoff      Backoff
	// OnState observes every state transition. Set before Start.
	OnState func(ConnState)
}

// NewWSWorker creates a worker for handler.
func NewWSWorker(handler WSHandler) *WSWorker {
	return &WSWorker{
		handler:      handler,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		Backoff:      DefaultBackoff,
	}
}

// Start initiates the connection loop.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// State returns the current connection state.
func (w *WSWorker) State() ConnState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *WSWorker) setState(s ConnState) {
	w.mu.Lock()
	changed := w.state != s
	w.state = s
	w.mu.Unlock()

	if changed && w.OnState != nil {
		w.OnState(s)
	}
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	defer w.setState(ConnDisconnected)
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.setState(ConnConnecting)
		if err := w.connect(ctx); err != nil {
			w.setState(ConnDisconnected)
			delay := w.Backoff.Delay(retry)
			slog.Warn("WS Connection failed", "id", w.handler.ID(), "err", err, "retry", retry, "delay", delay)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0 // Reset on successful connect
		err := w.process(ctx)
		w.setState(ConnDisconnected)
		w.handler.OnDisconnect(err)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", GetUserAgent())

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), header)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, w); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	if w.PingInterval > 0 {
		w.wg.Add(1)
		go w.pingLoop(ctx, conn)
	}

	w.setState(ConnConnected)
	slog.Info("WS Connected", "id", w.handler.ID())
	return nil
}

func (w *WSWorker) process(ctx context.Context) error {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return fmt.Errorf("connection closed")
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS Read error", "id", w.handler.ID(), "err", err)
			}
			w.close()
			return err
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// pingLoop pings conn until it is replaced or closed.
func (w *WSWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			current := w.conn
			w.mu.RUnlock()
			if current != conn {
				return
			}

			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			w.writeMu.Unlock()
			if err != nil {
				slog.Warn("WS Ping error", "id", w.handler.ID(), "err", err)
				w.close()
				return
			}
		}
	}
}

// WriteJSON sends v as a text frame.
func (w *WSWorker) WriteJSON(v interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}

	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.WriteJSON(v)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
