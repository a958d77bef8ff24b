package keyexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/better-wallet/better-signer/internal/ledger"
	"github.com/better-wallet/better-signer/internal/logger"
)

var errConnectionLost = errors.New("device bridge connection lost")

// WebsocketTransport talks to a device bridge over a long-lived websocket.
// Responses are correlated to requests by interaction id; anything
// unsolicited is dropped.
type WebsocketTransport struct {
	url     string
	timeout time.Duration
	limiter *rate.Limiter

	// one request in flight
	slot chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	waiters map[string]chan *ledger.Response

	writeMu sync.Mutex
}

// NewWebsocketTransport creates a transport for the bridge at url. limiter
// paces requests so a misbehaving caller cannot flood the device; nil disables it.
func NewWebsocketTransport(url string, timeout time.Duration, limiter *rate.Limiter) *WebsocketTransport {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &WebsocketTransport{
		url:     url,
		timeout: timeout,
		limiter: limiter,
		slot:    make(chan struct{}, 1),
		waiters: make(map[string]chan *ledger.Response),
	}
}

// Name returns the transport name
func (w *WebsocketTransport) Name() string {
	return "websocket"
}

// Exchange sends req and waits for its response, the transport timeout or ctx.
// On timeout or cancellation a cancel message is sent for the interaction.
func (w *WebsocketTransport) Exchange(ctx context.Context, req *ledger.Request) (*ledger.Response, error) {
	select {
	case w.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-w.slot }()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *ledger.Response, 1)
	w.mu.Lock()
	w.waiters[req.InteractionID] = ch
	w.mu.Unlock()

	if err := w.write(conn, req); err != nil {
		w.unregister(req.InteractionID)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errConnectionLost
		}
		return resp, nil
	case <-ctx.Done():
		w.abandon(ctx, conn, req.InteractionID)
		return nil, ctx.Err()
	case <-timer.C:
		w.abandon(ctx, conn, req.InteractionID)
		return nil, fmt.Errorf("device did not respond within %s", w.timeout)
	}
}

// Close drops the connection. Waiting exchanges fail with a connection error.
func (w *WebsocketTransport) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (w *WebsocketTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return w.conn, nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device bridge %s: %w", w.url, err)
	}
	w.conn = conn
	go w.readLoop(conn)
	return conn, nil
}

func (w *WebsocketTransport) readLoop(conn *websocket.Conn) {
	for {
		var resp ledger.Response
		if err := conn.ReadJSON(&resp); err != nil {
			w.fail(conn)
			return
		}
		w.mu.Lock()
		ch, ok := w.waiters[resp.InteractionID]
		delete(w.waiters, resp.InteractionID)
		w.mu.Unlock()
		if !ok {
			logger.Debug(context.Background(), "discarding unsolicited device response", "interaction_id", resp.InteractionID)
			continue
		}
		ch <- &resp
	}
}

func (w *WebsocketTransport) fail(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != conn {
		return
	}
	w.conn = nil
	conn.Close()
	for id, ch := range w.waiters {
		close(ch)
		delete(w.waiters, id)
	}
}

func (w *WebsocketTransport) write(conn *websocket.Conn, v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (w *WebsocketTransport) unregister(id string) {
	w.mu.Lock()
	delete(w.waiters, id)
	w.mu.Unlock()
}

func (w *WebsocketTransport) abandon(ctx context.Context, conn *websocket.Conn, id string) {
	w.unregister(id)
	if err := w.write(conn, &ledger.Request{InteractionID: id, Operation: ledger.OpCancel}); err != nil {
		logger.Warn(ctx, "failed to send cancel to device bridge", "interaction_id", id, "error", err)
	}
}

var _ LedgerTransport = (*WebsocketTransport)(nil)
