// ABOUTME: Connects to the study registry, optionally through a tailnet
// ABOUTME: Attaches bearer credentials when a ledger secret is configured

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"tailscale.com/tsnet"

	"github.com/2389/healthledger/internal/config"
)

// Dial opens a client for the registry at cfg.GRPCAddr. When tailscale is
// enabled the connection is made from an embedded tsnet node, so the
// registry gateway only needs to be reachable on the tailnet.
func Dial(ctx context.Context, cfg config.LedgerConfig, ts config.TailscaleConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if cfg.AuthSecret != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(NewTokenSource([]byte(cfg.AuthSecret), cfg.Account, cfg.TokenTTL)))
	}

	target := cfg.GRPCAddr
	var node *tsnet.Server
	if ts.Enabled {
		var err error
		node, err = startTailnet(ctx, ts, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return node.Dial(ctx, "tcp", addr)
		}))
		target = "passthrough:///" + cfg.GRPCAddr
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		if node != nil {
			_ = node.Close()
		}
		return nil, fmt.Errorf("connecting to registry %s: %w", cfg.GRPCAddr, err)
	}

	client := NewClient(conn, logger)
	client.closers = append(client.closers, conn.Close)
	if node != nil {
		client.closers = append(client.closers, node.Close)
	}

	logger.Info("registry client ready", "addr", cfg.GRPCAddr, "tailscale", ts.Enabled)
	return client, nil
}

func startTailnet(ctx context.Context, ts config.TailscaleConfig, logger *slog.Logger) (*tsnet.Server, error) {
	stateDir, err := resolveTailscaleStateDir(ts.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(ts.AuthKey)
	if err != nil {
		return nil, err
	}

	node := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	if _, err := node.Up(ctx); err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	return node, nil
}

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "healthledger", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
}
