package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// ExportDeckInput contains parameters for the ExportDeck operation.
type ExportDeckInput struct {
	Path string // optional, default: ~/.breader/exports/deck-<timestamp>.jsonl
}

// ExportDeckOutput contains the result of the ExportDeck operation.
type ExportDeckOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// DeckHeader is the first line of a deck file.
type DeckHeader struct {
	BreaderDeck   bool   `json:"_breader_deck"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportDeck writes every card of the local deck to a JSONL file. The file
// is written beside its destination and renamed into place, so a failed
// export leaves any earlier file intact.
func ExportDeck(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportDeckInput) (*ExportDeckOutput, error) {
	now := time.Now()
	path := input.Path
	if path == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "deck-"+now.Format("2006-01-02T150405")+DeckFileExt)
	}
	if err := ValidatePath(path, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	cards, err := db.AllCards(ctx, database)
	if err != nil {
		return nil, err
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return nil, errors.NewInternal(err)
	}
	tmp := path + "." + hex.EncodeToString(suffix) + ".tmp"
	f, err := createNoFollow(tmp)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	committed := false
	defer func() {
		if f != nil {
			f.Close()
		}
		if !committed {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(DeckHeader{BreaderDeck: true, SchemaVersion: "1", ExportedAt: now.Unix()}); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, c := range cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := enc.Encode(c); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := f.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	f = nil

	if isSymlink(path) {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	committed = true

	return &ExportDeckOutput{Path: path, Count: len(cards), ExportedAt: now.Unix()}, nil
}
