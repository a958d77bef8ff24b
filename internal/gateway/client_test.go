package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/better-signer/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, RequestTimeout: 2 * time.Second, RetryCount: 2, RetryWait: time.Millisecond})
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []string{"", "gateway", "ftp://gateway", "http://"}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			_, err := New(Config{URL: u})
			assert.Error(t, err)
		})
	}
}

func TestCurrentEpoch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, constructionPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ledger_state":{"network":"stokenet","state_version":1,"epoch":41275}}`))
	})

	epoch, err := c.CurrentEpoch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(41275), epoch)
}

func TestNetworkID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, networkPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"network_id":2,"network_name":"stokenet"}`))
	})

	id, err := c.NetworkID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.NetworkStokenet, id)
}

func TestCurrentEpoch_Errors(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"bad request"}`))
		})

		_, err := c.CurrentEpoch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad request")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ledger_state":{"epoch":7}}`))
		})

		epoch, err := c.CurrentEpoch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(7), epoch)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ledger_state":{"epoch":7}}`))
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.CurrentEpoch(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
