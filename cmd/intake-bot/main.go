// ABOUTME: Entry point for the intake-bot binary
// ABOUTME: Dispatches serve, init, leads, reset and health subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/intake-bot/internal/config"
	"github.com/2389/intake-bot/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _       _        _              _           _
(_)_ __ | |_ __ _| | _____      | |__   ___ | |_
| | '_ \| __/ _' | |/ / _ \_____| '_ \ / _ \| __|
| | | | | || (_| |   <  __/_____| |_) | (_) | |_
|_|_| |_|\__\__,_|_|\_\___|     |_.__/ \___/ \__|
`

// getConfigPath returns the path to the bot config file.
// Priority: INTAKE_BOT_CONFIG env var > XDG_CONFIG_HOME/intake-bot/bot.yaml > ~/.config/intake-bot/bot.yaml
func getConfigPath() string {
	if envPath := os.Getenv("INTAKE_BOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bot.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "intake-bot", "bot.yaml")
}

// getDataPath returns the default directory for the SQLite file.
// Priority: XDG_DATA_HOME/intake-bot > ~/.local/share/intake-bot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "intake-bot")
}

// loadConfig reads the config file when it exists and otherwise falls back
// to the flat environment variables. The second return names the source.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("checking config file: %w", err)
	}

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		return nil, "", fmt.Errorf("no config file at %s and environment is incomplete: %w", configPath, err)
	}
	return cfg, "environment", nil
}

func usage() {
	fmt.Println("Usage: intake-bot <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the bot")
	fmt.Println("  init                           Create a new config file interactively")
	fmt.Println("  leads [--limit N] [--user ID]  List recorded leads, newest first")
	fmt.Println("  reset --user ID                Restart a user's conversation")
	fmt.Println("  health                         Check the running bot's health endpoint")
	fmt.Println("  version                        Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "leads":
		err = runLeads(ctx, os.Args[2:])
	case "reset":
		err = runReset(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, source, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("Mode:      ")
	cyan.Print(cfg.Transport.Mode)
	if cfg.Transport.Mode == config.ModeWebhook {
		gray.Printf(" (%s)", cfg.Transport.WebhookURL)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Operator:  %d\n", cfg.Bot.OperatorUserID)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.Transport.Mode == config.ModeWebhook && cfg.Transport.WebhookSecret == "" {
		yellow.Println("    ! webhook secret is empty, deliveries are not authenticated")
	}
	fmt.Println()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger.Info("starting intake-bot",
		"version", version,
		"config", source,
		"mode", cfg.Transport.Mode,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := healthURL(cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// healthURL turns a listen address into a URL, mapping an empty host to localhost.
func healthURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return fmt.Sprintf("http://%s/health", addr)
}
