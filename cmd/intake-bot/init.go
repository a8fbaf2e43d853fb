// ABOUTME: Interactive config writer for the init subcommand
// ABOUTME: Prompts for credentials and transport, then writes YAML or TOML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/2389/intake-bot/internal/config"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("intake-bot configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path (.yaml or .toml)", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg, err := promptConfig(reader)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal(outputFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// the file holds the access token
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the bot:")
	fmt.Printf("  intake-bot serve\n")

	return nil
}

// promptConfig asks for every setting and returns a validated config.
func promptConfig(reader *bufio.Reader) (*config.Config, error) {
	cfg := &config.Config{}

	fmt.Println("\n--- Bot ---")
	cfg.Bot.AccessToken = prompt(reader, "Access token", "")
	operator := prompt(reader, "Operator user ID", "")
	id, err := strconv.ParseInt(strings.TrimSpace(operator), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("operator user ID must be numeric: %q", operator)
	}
	cfg.Bot.OperatorUserID = id
	cfg.Bot.OperatorChatURL = prompt(reader, "Operator chat link (optional)", "")
	cfg.Bot.PrivacyURL = prompt(reader, "Privacy policy link (optional)", "")
	cfg.Bot.MessageFormat = prompt(reader, "Message format (markdown/html)", config.FormatMarkdown)

	fmt.Println("\n--- Transport ---")
	cfg.Transport.Mode = prompt(reader, "Mode (polling/webhook)", config.ModePolling)
	if cfg.Transport.Mode == config.ModeWebhook {
		cfg.Transport.WebhookURL = prompt(reader, "Public webhook URL", "")
		cfg.Transport.WebhookSecret = prompt(reader, "Webhook secret", generateSecret())
	}
	cfg.Transport.PollTimeoutRaw = config.DefaultPollTimeout.String()
	cfg.Transport.PollBackoffRaw = config.DefaultPollBackoff.String()

	fmt.Println("\n--- Server ---")
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database ---")
	cfg.Database.Path = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "bot.db"))

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", "info")
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", "text")

	cfg.Metrics.Enabled = isYes(prompt(reader, "Enable Prometheus metrics?", "no"))

	cfg.Dialogue.MenuDebounceRaw = config.DefaultMenuDebounce.String()
	cfg.Dialogue.DedupeTTLRaw = config.DefaultDedupeTTL.String()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answers: %w", err)
	}
	return cfg, nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func generateSecret() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
