package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// ImportMode controls what happens when an imported card already exists.
type ImportMode string

const (
	ImportModeSkip    ImportMode = "skip"    // keep the stored card
	ImportModeReplace ImportMode = "replace" // overwrite the stored card
	ImportModeError   ImportMode = "error"   // import nothing on any problem
)

// maxDeckLine bounds one JSONL record; meanings lists can be long.
const maxDeckLine = 1 << 20

// ImportDeckInput contains parameters for the ImportDeck operation.
type ImportDeckInput struct {
	Path string     // required, .jsonl
	Mode ImportMode // default: skip
}

// ImportDeckOutput contains the result of the ImportDeck operation.
type ImportDeckOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type deckRecord struct {
	line int
	card *card.Card
}

// ImportDeck loads cards from a JSONL deck file into the local deck.
// Every accepted record is written in one transaction.
func ImportDeck(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportDeckInput) (*ImportDeckOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeSkip
	}
	switch input.Mode {
	case ImportModeSkip, ImportModeReplace, ImportModeError:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: skip, replace, error")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	f, err := openNoFollow(input.Path)
	if err != nil {
		if errors.As(err).Code != errors.ErrInternal {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open deck file: %w", err))
	}
	defer f.Close()

	records, importErrors := parseDeck(f)
	out := &ImportDeckOutput{Errors: importErrors}
	if input.Mode == ImportModeError && len(importErrors) > 0 {
		return out, nil
	}

	var collision *ImportError
	err = db.WithTx(ctx, database, func(tx *sql.Tx) error {
		for _, r := range records {
			if input.Mode == ImportModeReplace {
				if err := db.UpsertCard(ctx, tx, r.card); err != nil {
					return err
				}
				out.Imported++
				continue
			}

			err := db.InsertCard(ctx, tx, r.card)
			if err == db.ErrUniqueConstraint {
				if input.Mode == ImportModeError {
					collision = &ImportError{
						Line:    r.line,
						Key:     r.card.Key().String(),
						Code:    "KEY_COLLISION",
						Message: fmt.Sprintf("card %s already exists", r.card.Key()),
					}
					return db.ErrUniqueConstraint
				}
				out.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			out.Imported++
		}
		return nil
	})
	if collision != nil {
		return &ImportDeckOutput{Errors: []ImportError{*collision}}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	return out, nil
}

// parseDeck reads deck records, skipping the header and blank lines.
func parseDeck(r io.Reader) ([]deckRecord, []ImportError) {
	var (
		records []deckRecord
		errs    []ImportError
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxDeckLine)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}

		var probe struct {
			Header bool `json:"_breader_deck"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Header {
			continue
		}

		var c card.Card
		if err := json.Unmarshal(raw, &c); err != nil {
			errs = append(errs, ImportError{Line: line, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if c.VID <= 0 {
			errs = append(errs, ImportError{Line: line, Code: "INVALID_RECORD", Message: "vid must be positive"})
			continue
		}
		if strings.TrimSpace(c.Spelling) == "" {
			errs = append(errs, ImportError{Line: line, Key: c.Key().String(), Code: "INVALID_RECORD", Message: "spelling is required"})
			continue
		}
		records = append(records, deckRecord{line: line, card: &c})
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, ImportError{Line: line + 1, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return records, errs
}
