package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/backend/deck"
	"github.com/max-kamps/jpd-breader-sub000/internal/backend/jpdb"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/mcp"
	"github.com/max-kamps/jpd-breader-sub000/internal/ops"
	"github.com/max-kamps/jpd-breader-sub000/internal/queue"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"annotate": true, "action": true, "deck": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                        _
  | |__  _ __ ___  __ _  __| | ___ _ __
  | '_ \| '__/ _ \/ _' |/ _' |/ _ \ '__|
  | |_) | | |  __/ (_| | (_| |  __/ |
  |_.__/|_|  \___|\__,_|\__,_|\___|_|

  Japanese reading annotator

  Usage: breader <command> [options]
         breader --help

  MCP server mode requires piped input.`)
}

// newLogger writes text logs to stderr; stdout belongs to MCP and CLI output.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// newBackend returns the configured backend. database backs the deck backend.
func newBackend(cfg *config.Config, database *sql.DB) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendDeck, "":
		return deck.New(database, deck.WithDelay(cfg.DeckDelay())), nil
	case config.BackendJPDB:
		c, err := jpdb.New(jpdb.Options{
			BaseURL:      cfg.APIBaseURL,
			Token:        cfg.Token(),
			MiningDeckID: cfg.MiningDeckID,
			Timeout:      cfg.RequestTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown backend %q (want %s or %s)",
			cfg.Backend, config.BackendDeck, config.BackendJPDB))
	}
}

// newRuntime builds the queue and runtime over the configured backend.
// The caller closes the returned queue.
func newRuntime(cfg *config.Config, database *sql.DB, logger *slog.Logger) (*ops.Runtime, *queue.Queue, error) {
	b, err := newBackend(cfg, database)
	if err != nil {
		return nil, nil, err
	}
	q := queue.New(b,
		queue.WithFailureBackoff(cfg.FailureBackoff()),
		queue.WithTimeout(cfg.RequestTimeout()),
		queue.WithLogger(logger),
	)
	return ops.NewRuntime(cfg, q), q, nil
}

// surfaceDB is the deck the MCP and HTTP surfaces expose, nil when the
// backend keeps its vocabulary elsewhere.
func surfaceDB(cfg *config.Config, database *sql.DB) *sql.DB {
	if cfg.Backend == config.BackendJPDB {
		return nil
	}
	return database
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".breader")

	wd, err := os.Getwd()
	if err != nil {
		wd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, wd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("ignoring unknown disabled_tools", "tools", unknown, "valid", mcp.AllToolNames())
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	rt, q, err := newRuntime(cfg, database, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer q.Close()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(rt, database, cfg)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'breader --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(rt, surfaceDB(cfg, database), cfg, Version); err != nil {
		fatal("%v", err)
	}
}
