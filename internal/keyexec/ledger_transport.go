package keyexec

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/better-wallet/better-signer/internal/ledger"
)

// LedgerTransport carries requests to a hardware device, one in flight at a
// time. Cancelling ctx abandons the exchange on the device side too.
type LedgerTransport interface {
	Exchange(ctx context.Context, req *ledger.Request) (*ledger.Response, error)

	// Name returns the transport name (e.g., "tcp", "websocket")
	Name() string
}

// LedgerDialer opens a connection to a device bridge
type LedgerDialer interface {
	Dial(ctx context.Context) (net.Conn, error)

	// Platform returns the dialer name (e.g., "tcp")
	Platform() string
}

// TCPDialer connects to a device bridge over TCP
type TCPDialer struct {
	Host    string
	Port    uint32
	Timeout time.Duration
}

// NewTCPDialer creates a TCP dialer for a bridge on host:port
func NewTCPDialer(host string, port uint32, timeout time.Duration) *TCPDialer {
	if host == "" {
		host = "127.0.0.1"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TCPDialer{
		Host:    host,
		Port:    port,
		Timeout: timeout,
	}
}

// Dial connects to the bridge
func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(d.Host, fmt.Sprintf("%d", d.Port))
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

// Platform returns the dialer name
func (d *TCPDialer) Platform() string {
	return "tcp"
}

// FramedTransport exchanges length-prefixed JSON frames, one connection per request
type FramedTransport struct {
	dialer  LedgerDialer
	timeout time.Duration
	mu      sync.Mutex
}

// NewFramedTransport creates a framed transport. timeout bounds a whole
// exchange, including the time the user takes to confirm on the device.
func NewFramedTransport(dialer LedgerDialer, timeout time.Duration) *FramedTransport {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &FramedTransport{dialer: dialer, timeout: timeout}
}

// Name returns the transport name
func (t *FramedTransport) Name() string {
	return t.dialer.Platform()
}

// Exchange sends req and waits for the correlated response
func (t *FramedTransport) Exchange(ctx context.Context, req *ledger.Request) (*ledger.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device bridge (%s): %w", t.dialer.Platform(), err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	// Closing the connection is how the bridge learns the request was abandoned
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := ledger.WriteFrame(conn, req); err != nil {
		return nil, t.exchangeErr(ctx, err)
	}

	var resp ledger.Response
	if err := ledger.ReadFrame(conn, &resp); err != nil {
		return nil, t.exchangeErr(ctx, err)
	}
	if resp.InteractionID != req.InteractionID {
		return nil, fmt.Errorf("response for interaction %q, expected %q", resp.InteractionID, req.InteractionID)
	}
	return &resp, nil
}

func (t *FramedTransport) exchangeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

var _ LedgerTransport = (*FramedTransport)(nil)
