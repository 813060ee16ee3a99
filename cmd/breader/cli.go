package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/ops"
	"github.com/max-kamps/jpd-breader-sub000/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *ops.Runtime, db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "breader",
		Usage:   "Japanese reading annotator",
		Version: Version,
		Commands: []*cli.Command{
			annotateCmd(rt),
			actionCmd(rt),
			deckCmd(db, cfg),
			serveCmd(rt, db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// annotateCmd creates the annotate command.
func annotateCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "annotate",
		Usage: "Annotate an HTML or Markdown document (reads stdin unless --file is given)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Document to annotate"},
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"md"}, Usage: "Treat the input as Markdown"},
			&cli.BoolFlag{Name: "preserve", Usage: "Keep replaced text as hidden tombstones (overrides config)"},
			&cli.BoolFlag{Name: "raw", Usage: "Print only the annotated HTML"},
		},
		Action: func(c *cli.Context) error {
			src, err := readDocument(c.String("file"))
			if err != nil {
				return outputError(err)
			}

			input := ops.AnnotateInput{}
			if c.Bool("markdown") {
				input.Markdown = src
			} else {
				input.HTML = src
			}
			if c.IsSet("preserve") {
				preserve := c.Bool("preserve")
				input.Preserve = &preserve
			}

			output, err := ops.Annotate(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}
			for _, w := range output.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}

			if c.Bool("raw") {
				_, err := io.WriteString(os.Stdout, output.HTML+"\n")
				return err
			}
			return outputJSON(output)
		},
	}
}

// actionCmd creates the action command.
func actionCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "action",
		Usage: "Apply a card action (add, remove, blacklist, unblacklist, never-forget, review)",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "vid", Required: true, Usage: "Vocabulary id"},
			&cli.Int64Flag{Name: "sid", Required: true, Usage: "Spelling id"},
			&cli.StringFlag{Name: "action", Aliases: []string{"a"}, Required: true, Usage: "Action to apply"},
			&cli.StringFlag{Name: "grade", Aliases: []string{"g"}, Usage: "Review grade: fail|hard|okay|easy"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.CardAction(c.Context, rt, ops.CardActionInput{
				VID:    c.Int64("vid"),
				SID:    c.Int64("sid"),
				Action: c.String("action"),
				Grade:  c.String("grade"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deckCmd groups the local deck commands.
func deckCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "deck",
		Usage: "Manage the local deck",
		Subcommands: []*cli.Command{
			deckListCmd(db),
			deckImportCmd(db, cfg),
			deckExportCmd(db, cfg),
		},
	}
}

// deckListCmd creates the deck list command.
func deckListCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List cards, most recently updated first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Usage: "Filter by learning state"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Results to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListCards(c.Context, db, ops.ListCardsInput{
				State:  c.String("state"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deckImportCmd creates the deck import command.
func deckImportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import cards from a JSONL deck file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "skip", Usage: "Collision mode: skip|replace|error"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportDeck(c.Context, db, cfg, ops.ImportDeckInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deckExportCmd creates the deck export command.
func deckExportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the local deck to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.breader/exports/deck-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ExportDeck(c.Context, db, cfg, ops.ExportDeckInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *ops.Runtime, db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the annotation API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(rt, surfaceDB(cfg, db), cfg, c.String("bind"), c.Int("port"))
			return web.Run(srv, slog.Default())
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var bErr *errors.BreaderError
	if stderrors.As(err, &bErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", bErr.Code, bErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readDocument reads path, or stdin when path is empty.
func readDocument(path string) (string, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				return "", errors.NewNotFound("file " + path)
			}
			return "", errors.NewInternal(err)
		}
		defer f.Close()
		return readLimited(f, ops.MaxDocumentBytes)
	}

	if !stdinHasData() {
		return "", errors.NewInvalidRequest("document must be piped via stdin or given with --file")
	}
	return readStdin(ops.MaxDocumentBytes)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	return readLimited(os.Stdin, limit)
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return string(data), nil
}
