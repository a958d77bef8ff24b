package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/better-wallet/better-signer/internal/ceremony"
	"github.com/better-wallet/better-signer/internal/config"
	"github.com/better-wallet/better-signer/internal/gateway"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/internal/logger"
	"github.com/better-wallet/better-signer/internal/manifest"
	"github.com/better-wallet/better-signer/internal/metrics"
	"github.com/better-wallet/better-signer/internal/signers"
	"github.com/better-wallet/better-signer/internal/storage"
	"github.com/better-wallet/better-signer/pkg/types"
)

// ledgerRequestsPerSecond bounds how fast requests are pushed to the bridge
const ledgerRequestsPerSecond = 5

// app holds everything a command needs. Commands build it with openApp and
// must call close.
type app struct {
	cfg          *config.Config
	store        *storage.Store
	mnemonics    *storage.MnemonicStore
	factors      *storage.FactorSourceRepository
	entities     *storage.EntityRepository
	events       *storage.CeremonyEventRepository
	ledger       *keyexec.LedgerExecutor
	registry     *keyexec.Registry
	orchestrator *ceremony.Orchestrator
	console      *console

	closers []func()
}

func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required to load the profile")
	}

	a := &app{cfg: cfg, console: newConsole(cmd.InOrStdin(), cmd.ErrOrStderr())}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	a.store, err = storage.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	a.factors = storage.NewFactorSourceRepository(a.store)
	a.entities = storage.NewEntityRepository(a.store)
	a.events = storage.NewCeremonyEventRepository(a.store)

	sealer, err := keyexec.NewSeedSealer(cfg.SealerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize seed sealer: %w", err)
	}
	a.mnemonics, err = storage.OpenMnemonicStore(cfg.MnemonicStorePath, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to open mnemonic store: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.mnemonics.Close() })
	slog.Info("opened mnemonic store", "path", cfg.MnemonicStorePath, "sealer", sealer.Provider())

	a.ledger = keyexec.NewLedgerExecutor(a.ledgerTransport(), a.factors)

	prompter := &seedPrompter{console: a.console}
	offDevice := keyexec.NewOffDeviceExecutor(prompter, a.factors)
	prompter.executor = offDevice

	a.registry = keyexec.NewRegistry()
	a.registry.Register(types.FactorSourceDevice, keyexec.NewDeviceExecutor(a.mnemonics, &accessGate{console: a.console}, a.factors))
	a.registry.Register(types.FactorSourceLedger, a.ledger)
	a.registry.Register(types.FactorSourceOffDeviceMnemonic, offDevice)

	epochs, err := a.epochSource(cmd)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	a.serveMetrics(reg)

	a.orchestrator = ceremony.New(a.registry, manifest.NewAnalyzer(), epochs,
		ceremony.WithEpochWindow(cfg.EpochWindow),
		ceremony.WithMetrics(metrics.New(reg)),
		ceremony.WithStateListener(a.recordTransition),
	)

	ok = true
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) ledgerTransport() keyexec.LedgerTransport {
	if a.cfg.LedgerTransport == config.LedgerTransportTCP {
		dialer := keyexec.NewTCPDialer(a.cfg.LedgerBridgeHost, uint32(a.cfg.LedgerBridgePort), a.cfg.LedgerTimeout)
		return keyexec.NewFramedTransport(dialer, a.cfg.LedgerTimeout)
	}
	limiter := rate.NewLimiter(rate.Limit(ledgerRequestsPerSecond), 1)
	ws := keyexec.NewWebsocketTransport(a.cfg.LedgerBridgeURL, a.cfg.LedgerTimeout, limiter)
	a.closers = append(a.closers, func() { _ = ws.Close() })
	return ws
}

// epochSource prefers an explicit --epoch, then the gateway
func (a *app) epochSource(cmd *cobra.Command) (ceremony.EpochSource, error) {
	if cmd.Flags().Changed(flagEpoch) {
		epoch, err := cmd.Flags().GetUint64(flagEpoch)
		if err != nil {
			return nil, err
		}
		return ceremony.FixedEpoch(epoch), nil
	}
	if a.cfg.GatewayURL == "" {
		return nil, errors.New("either --epoch or GATEWAY_URL is required")
	}

	client, err := gateway.New(gateway.DefaultConfig(a.cfg.GatewayURL))
	if err != nil {
		return nil, err
	}
	network, err := client.NetworkID(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to query gateway network: %w", err)
	}
	if network != a.cfg.NetworkID {
		return nil, fmt.Errorf("gateway serves network %d, configured network is %d", network, a.cfg.NetworkID)
	}
	return client, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", a.cfg.MetricsAddr)

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
}

// recordTransition keeps an audit trail of ceremonies. A failed write never
// interrupts signing.
func (a *app) recordTransition(ctx context.Context, ceremonyID, from, to string) {
	if err := a.events.Record(ctx, ceremonyID, from, to); err != nil {
		logger.Warn(ctx, "failed to record ceremony transition", "from", from, "to", to, "error", err)
	}
}

func (a *app) profile(ctx context.Context) (*signers.ProfileSnapshot, error) {
	return signers.LoadProfile(ctx, a.entities, a.factors, a.cfg.NetworkID)
}
