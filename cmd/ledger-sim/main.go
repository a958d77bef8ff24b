// Package main runs a software hardware-wallet device for development.
//
// The simulator holds a mnemonic and answers the same requests a bridge to a
// real device would, over both supported transports:
//   - length-prefixed JSON frames on a TCP port
//   - JSON messages on a websocket at /ledger
//
// Run:
//
//	LEDGER_SIM_MNEMONIC="..." go run ./cmd/ledger-sim -tcp :21112 -ws :21111
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/ledger"
	"github.com/better-wallet/better-signer/internal/logger"
	"github.com/better-wallet/better-signer/pkg/types"
)

func main() {
	var (
		tcpAddr     = flag.String("tcp", ":21112", "Framed TCP listen address, empty to disable")
		wsAddr      = flag.String("ws", ":21111", "Websocket listen address, empty to disable")
		model       = flag.String("model", string(types.LedgerModelNanoSPlus), "Reported device model")
		interactive = flag.Bool("interactive", false, "Ask on stdin before approving each request")
		delay       = flag.Duration("delay", 0, "Simulated confirmation delay")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	phrase := os.Getenv("LEDGER_SIM_MNEMONIC")
	if phrase == "" {
		slog.Error("LEDGER_SIM_MNEMONIC is required")
		os.Exit(1)
	}
	m, err := crypto.NewMnemonicWithPassphrase(strings.Fields(phrase), os.Getenv("LEDGER_SIM_PASSPHRASE"))
	if err != nil {
		slog.Error("invalid simulator mnemonic", "error", err)
		os.Exit(1)
	}

	sim, err := ledger.NewSimulator(m, types.LedgerModel(*model))
	if err != nil {
		slog.Error("failed to start simulator", "error", err)
		os.Exit(1)
	}
	defer sim.Close()
	sim.Delay = *delay
	if *interactive {
		sim.Approve = stdinApprover()
	}

	slog.Info("simulated device ready", "factor_source_id", sim.FactorSourceID().String(), "model", *model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	if *tcpAddr != "" {
		l, err := net.Listen("tcp", *tcpAddr)
		if err != nil {
			slog.Error("failed to listen", "addr", *tcpAddr, "error", err)
			os.Exit(1)
		}
		slog.Info("serving framed transport", "addr", l.Addr().String())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.ListenAndServeFramed(ctx, l, sim); err != nil {
				errs <- fmt.Errorf("framed transport: %w", err)
			}
		}()
	}

	if *wsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ledger", ledger.WebsocketHandler(sim))
		server := &http.Server{Addr: *wsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		slog.Info("serving websocket transport", "addr", *wsAddr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("websocket transport: %w", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	select {
	case err := <-errs:
		slog.Error("simulator stopped", "error", err)
		stop()
		wg.Wait()
		os.Exit(1)
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	}
	wg.Wait()
}

// stdinApprover asks on the terminal before each sign request, one at a time
func stdinApprover() func(*ledger.Request) bool {
	var mu sync.Mutex
	in := bufio.NewReader(os.Stdin)
	return func(req *ledger.Request) bool {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(os.Stderr, "Approve %s (interaction %s)? [y/N] ", req.Operation, req.InteractionID)
		line, err := in.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
