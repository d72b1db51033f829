// ABOUTME: Builds the registry client, capability, cache, journal and session from config
// ABOUTME: Shared by the serve command and the one-shot CLI commands

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/capability/sealed"
	"github.com/2389/healthledger/internal/config"
	"github.com/2389/healthledger/internal/dedupe"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/notify"
	"github.com/2389/healthledger/internal/session"
	"github.com/2389/healthledger/internal/store"
	"github.com/2389/healthledger/internal/studycache"
	"github.com/2389/healthledger/internal/submission"
)

// Idempotency keys are held this long after a successful submission.
const (
	dedupeTTL  = 10 * time.Minute
	dedupeSize = 4096
)

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *ledger.Client
	journal store.Store
	session *session.Session
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	networkKey, err := hexutil.Decode(withHexPrefix(cfg.Capability.Network.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("decoding capability.network.public_key: %w", err)
	}

	client, err := ledger.Dial(ctx, cfg.Ledger, cfg.Tailscale, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: client}

	if cfg.Database.Path != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("opening receipt journal: %w", err)
		}
		a.journal = sqlStore
	}

	notifier, err := buildNotifier(cfg.Notify, out)
	if err != nil {
		a.Close()
		return nil, err
	}

	lifecycle := capability.NewLifecycle(sealed.New(), capability.Options{
		Network: capability.NetworkConfig{
			ChainID:   cfg.Capability.Network.ChainID,
			PublicKey: networkKey,
		},
		InitTimeout:     cfg.Capability.InitTimeout,
		InstanceTimeout: cfg.Capability.InstanceTimeout,
		Logger:          logger,
	})

	pipeOpts := submission.Options{
		Contract:       cfg.Ledger.Contract(),
		EncryptTimeout: cfg.Capability.EncryptTimeout,
		Logger:         logger,
	}
	if a.journal != nil {
		pipeOpts.Journal = a.journal
	}

	cache := studycache.New(client, studycache.Options{
		Concurrency: cfg.Cache.FetchConcurrency,
		Logger:      logger,
	})

	a.session = session.New(session.Options{
		Submitter: cfg.Ledger.AccountAddress(),
		Lifecycle: lifecycle,
		Pipeline:  submission.NewPipeline(client, pipeOpts),
		Cache:     cache,
		Poller:    studycache.NewPoller(cache, cfg.Cache.RefreshInterval, logger),
		Creator:   client,
		Journal:   a.journal,
		Dedupe:    dedupe.New(dedupeTTL, dedupeSize),
		Notifier:  notifier,
		Logger:    logger,
	})
	return a, nil
}

func buildNotifier(cfg config.NotifyConfig, out io.Writer) (notify.Notifier, error) {
	sinks := notify.Multi{notify.NewConsole(out, false)}
	if cfg.Matrix.Enabled {
		m, err := notify.NewMatrix(cfg.Matrix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("closing receipt journal", "error", err)
		}
	}
	if err := a.client.Close(); err != nil {
		a.logger.Warn("closing registry client", "error", err)
	}
}

func withHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
