// Package commands implements the player and game subcommands of the
// blackjack binary on top of the API client.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/client"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/service"
)

// GlobalFlags holds common configuration for all client commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"blackjack-client.hcl" help:"Path to HCL client configuration file"`
	Server   string `short:"s" long:"server" help:"Server URL (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	JSON     bool   `long:"json" help:"Print raw JSON responses"`

	out io.Writer
}

// WithOutput directs command output to w instead of stdout.
func (f *GlobalFlags) WithOutput(w io.Writer) *GlobalFlags {
	f.out = w
	return f
}

func (f *GlobalFlags) stdout() io.Writer {
	if f.out == nil {
		return os.Stdout
	}
	return f.out
}

// SetupClient loads the client config, applies flag overrides and builds a
// client. Logs go to stderr.
func SetupClient(flags *GlobalFlags) (*client.Client, *client.Config, *log.Logger, error) {
	return setupClient(flags, os.Stderr)
}

// SetupClientWithFileLogging is SetupClient for full-screen commands: logs go
// to logFile, truncated on each run. cleanup closes the file.
func SetupClientWithFileLogging(flags *GlobalFlags, logFile string) (*client.Client, *client.Config, *log.Logger, func(), error) {
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	c, cfg, logger, err := setupClient(flags, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, nil, err
	}
	return c, cfg, logger, func() { _ = f.Close() }, nil
}

func setupClient(flags *GlobalFlags, logWriter io.Writer) (*client.Client, *client.Config, *log.Logger, error) {
	cfg, err := client.LoadConfig(flags.Config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	if flags.Server != "" {
		cfg.Server.URL = flags.Server
	}
	if flags.LogLevel != "" {
		cfg.Player.LogLevel = flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(logWriter)
	level, err := log.ParseLevel(cfg.Player.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)

	c, err := client.New(cfg.Server.URL, logger, client.WithTimeout(cfg.Timeout()))
	if err != nil {
		return nil, nil, nil, err
	}
	return c, cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes a game and its player in a compact text form.
func printResult(w io.Writer, res service.Result) {
	_, _ = fmt.Fprintf(w, "Game %s (%s)\n", res.ID, res.Status)
	_, _ = fmt.Fprintf(w, "  Dealer: %-24s %d\n", cardsText(res.DealerCards, res.Status == game.Active), res.DealerScore)
	_, _ = fmt.Fprintf(w, "  You:    %-24s %d\n", cardsText(res.PlayerCards, false), res.PlayerScore)
	if res.Status == game.Finished {
		_, _ = fmt.Fprintf(w, "  Winner: %s\n", res.Winner)
	}
	_, _ = fmt.Fprintf(w, "  Player: %s #%d, %d points", res.Player.Name, res.Player.ID, res.Player.TotalPoints)
	if res.Player.Status != "" {
		_, _ = fmt.Fprintf(w, " (%s)", res.Player.Status)
	}
	_, _ = fmt.Fprintln(w)
}

func cardsText(cards []deck.Card, hidden bool) string {
	parts := make([]string, 0, len(cards)+1)
	for _, c := range cards {
		parts = append(parts, c.String())
	}
	if hidden {
		parts = append(parts, "??")
	}
	return strings.Join(parts, " ")
}
