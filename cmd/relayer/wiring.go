package main

import (
	"context"
	"os"

	"bridge/relayer/internal/config"
	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/metrics"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/services"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type ledger struct {
	cursors stores.CursorStore
	events  stores.EventLog
	close   func()
}

// openLedger opens the cursor store and event log. exclusive is needed by
// anything that runs passes or rewrites event records; bolt files are always
// opened exclusively.
func openLedger(ctx context.Context, cfg *config.Config, exclusive bool) (*ledger, error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		pg, err := stores.NewPgStore(cfg.Ledger.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if exclusive {
			if err := pg.Lock(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		return &ledger{cursors: pg, events: pg, close: func() { _ = pg.Close() }}, nil

	default:
		if err := os.MkdirAll(cfg.Ledger.DataDir, 0o700); err != nil {
			return nil, errs.Configuration(err, "create data dir %s", cfg.Ledger.DataDir)
		}
		cs, err := stores.NewBoltCursorStore(cfg.CursorDBPath())
		if err != nil {
			return nil, errors.Wrap(err, "open cursor store")
		}
		el, err := stores.NewBoltEventLog(cfg.EventDBPath())
		if err != nil {
			_ = cs.Close()
			return nil, errors.Wrap(err, "open event log")
		}
		return &ledger{cursors: cs, events: el, close: func() {
			_ = el.Close()
			_ = cs.Close()
		}}, nil
	}
}

// loadSigner prefers the encrypted keystore when an address is configured,
// then falls back to a plain key file.
func loadSigner(cfg *config.Config) (stores.Signer, error) {
	if cfg.Keystore.Address != "" {
		if cfg.Keystore.Dir == "" {
			return nil, errs.Configuration(nil, "keystore.dir is required with keystore.address")
		}
		ks, err := stores.NewLocalKeyStore(cfg.Keystore.Passphrase, cfg.Keystore.Dir)
		if err != nil {
			return nil, errs.Configuration(err, "open keystore")
		}
		s, err := ks.Signer(cfg.Keystore.Address)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	paths := cfg.KeyFiles
	if len(paths) == 0 {
		paths = stores.DefaultKeyPaths()
	}
	key, path, err := stores.LoadKeyFile(paths)
	if err != nil {
		return nil, err
	}
	s := stores.NewKeySigner(key)
	log.Debug().Str("path", path).Str("address", s.Address().Hex()).Msg("[relayer] loaded key file")
	return s, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type relay struct {
	engine *services.RelayEngine
	close  func()
}

// buildEngine dials both chains and wires the relay engine over l.
func buildEngine(ctx context.Context, cfg *config.Config, l *ledger, m *metrics.Metrics) (*relay, error) {
	contracts, err := config.LoadContracts(cfg.ContractInfo, cfg)
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}

	opts := services.ConnectorOptions{
		ReadAttempts: cfg.RPC.Attempts,
		RetryDelay:   cfg.RPC.RetryDelay,
		PollInterval: cfg.RPC.ReceiptPoll,
	}
	engineCfg := services.DefaultEngineConfig()
	engineCfg.MaxReverts = cfg.MaxReverts

	var conns []*services.EvmConnector
	closeAll := func() {
		for _, c := range conns {
			c.Close()
		}
	}

	chains := make(map[models.Role]*services.Chain, len(models.Roles))
	for _, role := range models.Roles {
		cc := cfg.Chain(role)
		conn, err := services.Dial(ctx, role, cc.RPCURL, opts)
		if err != nil {
			closeAll()
			return nil, err
		}
		conns = append(conns, conn)

		b := services.NewBinding(contracts[role], conn)
		chains[role] = &services.Chain{
			Binding:   b,
			Submitter: services.NewSubmitter(b, signer, cc.GasLimit, cfg.RPC.ReceiptTimeout),
		}
		engineCfg.InitialWindow[role] = cc.InitialWindow
		engineCfg.ScanChunk[role] = cc.ScanChunk

		log.Info().
			Str("role", string(role)).
			Str("rpc", cc.RPCURL).
			Str("contract", contracts[role].Address.Hex()).
			Msg("[relayer] chain configured")
	}
	log.Info().Str("relay_account", signer.Address().Hex()).Msg("[relayer] signer ready")

	return &relay{
		engine: services.NewRelayEngine(chains, l.cursors, l.events, m, engineCfg),
		close:  closeAll,
	}, nil
}
