// ABOUTME: Entry point for the healthledger client
// ABOUTME: Serves the local API or runs one-shot study and submission commands

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/healthledger/internal/api"
	"github.com/2389/healthledger/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                _ _   _     _          _
| |__   ___  __ _| | |_| |__ | | ___  __| | __ _  ___ _ __
| '_ \ / _ \/ _' | | __| '_ \| |/ _ \/ _' |/ _' |/ _ \ '__|
| | | |  __/ (_| | | |_| | | | |  __/ (_| | (_| |  __/ |
|_| |_|\___|\__,_|_|\__|_| |_|_|\___|\__,_|\__, |\___|_|
                                           |___/
`

func printUsage() {
	fmt.Println("Usage: healthledger <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                         Start the local HTTP API")
	fmt.Println("  studies [--active]            List studies from the registry")
	fmt.Println("  stats <study-id>              Show a study's aggregate statistics")
	fmt.Println("  submit <study-id> <value>     Encrypt and submit one reading")
	fmt.Println("  create <name> <description>   Register a new study")
	fmt.Println("  history [limit]               Show journaled submission outcomes")
	fmt.Println("  version                       Print the version")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "studies":
		err = withApp(ctx, func(a *app) error { return runStudies(ctx, a, args) })
	case "stats":
		err = withApp(ctx, func(a *app) error { return runStats(ctx, a, args) })
	case "submit":
		err = withApp(ctx, func(a *app) error { return runSubmit(ctx, a, args) })
	case "create":
		err = withApp(ctx, func(a *app) error { return runCreate(ctx, a, args) })
	case "history":
		err = withApp(ctx, func(a *app) error { return runHistory(ctx, a, args) })
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path, err := config.Path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	a, err := newApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Registry:  %s\n", cfg.Ledger.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("Contract:  %s\n", cfg.Ledger.Contract().Hex())
	green.Print("    ▶ ")
	fmt.Printf("Account:   %s\n", cfg.Ledger.AccountAddress().Hex())
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.API.HTTPAddr)
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Journal:   %s\n", cfg.Database.Path)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Notify.Matrix.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Matrix:    %s\n", cfg.Notify.Matrix.RoomID)
	}
	fmt.Println()

	a, err := newApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting healthledger",
		"config", path,
		"registry", cfg.Ledger.GRPCAddr,
		"http_addr", cfg.API.HTTPAddr,
	)

	a.session.Start(ctx)

	err = api.New(a.session, logger).ListenAndServe(ctx, cfg.API.HTTPAddr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
