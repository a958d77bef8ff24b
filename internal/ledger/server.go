package ledger

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/better-wallet/better-signer/internal/logger"
)

// Handler answers device requests
type Handler interface {
	Handle(ctx context.Context, req *Request) *Response
}

// ServeFramed answers length-prefixed requests on conn until it is closed
func ServeFramed(ctx context.Context, conn net.Conn, h Handler) {
	defer conn.Close()
	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug(ctx, "framed connection closed", "error", err)
			}
			return
		}
		resp := h.Handle(ctx, &req)
		if err := WriteFrame(conn, resp); err != nil {
			logger.Warn(ctx, "failed to write response", "interaction_id", req.InteractionID, "error", err)
			return
		}
	}
}

// ListenAndServeFramed accepts framed connections on l until ctx is done
func ListenAndServeFramed(ctx context.Context, l net.Listener, h Handler) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go ServeFramed(ctx, conn, h)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebsocketHandler serves device requests over a websocket. Each request runs
// until it completes or a cancel message with the same interaction id arrives.
func WebsocketHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancelAll := context.WithCancel(r.Context())
		defer cancelAll()

		var (
			writeMu  sync.Mutex
			mu       sync.Mutex
			inFlight = make(map[string]context.CancelFunc)
		)

		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			if req.Operation == OpCancel {
				mu.Lock()
				if cancel, ok := inFlight[req.InteractionID]; ok {
					cancel()
				}
				mu.Unlock()
				continue
			}

			reqCtx, cancel := context.WithCancel(ctx)
			mu.Lock()
			inFlight[req.InteractionID] = cancel
			mu.Unlock()

			go func(req Request) {
				defer cancel()
				resp := h.Handle(reqCtx, &req)

				mu.Lock()
				delete(inFlight, req.InteractionID)
				mu.Unlock()

				writeMu.Lock()
				defer writeMu.Unlock()
				if err := conn.WriteJSON(resp); err != nil {
					logger.Debug(ctx, "failed to write websocket response", "interaction_id", req.InteractionID, "error", err)
				}
			}(req)
		}
	})
}
