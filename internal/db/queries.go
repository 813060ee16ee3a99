package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.BreaderError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Review is one row of the review log.
type Review struct {
	ID          string     `json:"id"`
	Key         card.Key   `json:"key"`
	Action      string     `json:"action"`
	Grade       string     `json:"grade,omitempty"`
	StateBefore card.State `json:"state_before"`
	StateAfter  card.State `json:"state_after"`
	CreatedAt   int64      `json:"created_at"`
}

const cardColumns = `vid, sid, rid, spelling, reading, meanings_json, state, modifier, frequency_rank`

// InsertCard stores a new card.
func InsertCard(ctx context.Context, q Querier, c *card.Card) error {
	meanings, err := meaningsJSON(c.Meanings)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	query := `
		INSERT INTO cards (` + cardColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		c.VID, c.SID, c.RID, c.Spelling, c.Reading, meanings,
		tagOf(c.State), toNullString(string(c.State.Modifier)), toNullInt(c.FrequencyRank),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// UpsertCard inserts c or replaces every field of the existing card with the same key.
func UpsertCard(ctx context.Context, q Querier, c *card.Card) error {
	meanings, err := meaningsJSON(c.Meanings)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	query := `
		INSERT INTO cards (` + cardColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vid, sid) DO UPDATE SET
			rid = excluded.rid, spelling = excluded.spelling, reading = excluded.reading,
			meanings_json = excluded.meanings_json, state = excluded.state,
			modifier = excluded.modifier, frequency_rank = excluded.frequency_rank,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		c.VID, c.SID, c.RID, c.Spelling, c.Reading, meanings,
		tagOf(c.State), toNullString(string(c.State.Modifier)), toNullInt(c.FrequencyRank),
		now, now,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports primary key violations the same way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetCard retrieves a card by key.
func GetCard(ctx context.Context, q Querier, key card.Key) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE vid = ? AND sid = ?`

	c, err := scanCard(q.QueryRowContext(ctx, query, key.VID, key.SID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(key.String())
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListCards returns one page of cards, most recently updated first, and the
// total number of matching cards. An empty tag lists every state.
func ListCards(ctx context.Context, q Querier, tag card.Tag, limit, offset int) ([]*card.Card, int, error) {
	where := ""
	args := []any{}
	if tag != "" {
		where = " WHERE state = ?"
		args = append(args, string(tag))
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + cardColumns + ` FROM cards` + where + `
		ORDER BY updated_at DESC, vid, sid
		LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	cards, err := scanCards(rows)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// AllCards returns every card in key order.
func AllCards(ctx context.Context, q Querier) ([]*card.Card, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY vid, sid`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// UpdateState sets a card's learning state.
func UpdateState(ctx context.Context, q Querier, key card.Key, state card.State) error {
	query := `
		UPDATE cards
		SET state = ?, modifier = ?, updated_at = ?
		WHERE vid = ? AND sid = ?
	`
	result, err := q.ExecContext(ctx, query,
		tagOf(state), toNullString(string(state.Modifier)), time.Now().Unix(),
		key.VID, key.SID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(key.String())
	}
	return nil
}

// InsertReview appends a row to the review log.
func InsertReview(ctx context.Context, q Querier, r *Review) error {
	before, err := json.Marshal(r.StateBefore)
	if err != nil {
		return errors.NewInternal(err)
	}
	after, err := json.Marshal(r.StateAfter)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO reviews (id, vid, sid, action, grade, state_before, state_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		r.ID, r.Key.VID, r.Key.SID, r.Action, toNullString(r.Grade),
		string(before), string(after), r.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// ListReviews returns a card's review log, newest first.
func ListReviews(ctx context.Context, q Querier, key card.Key) ([]Review, error) {
	query := `
		SELECT id, action, grade, state_before, state_after, created_at
		FROM reviews
		WHERE vid = ? AND sid = ?
		ORDER BY id DESC
	`
	rows, err := q.QueryContext(ctx, query, key.VID, key.SID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var (
			r             Review
			grade         sql.NullString
			before, after string
		)
		if err := rows.Scan(&r.ID, &r.Action, &grade, &before, &after, &r.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Key = key
		r.Grade = grade.String
		if err := json.Unmarshal([]byte(before), &r.StateBefore); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := json.Unmarshal([]byte(after), &r.StateAfter); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanCard scans a single row into a Card.
func scanCard(row scanner) (*card.Card, error) {
	var (
		c        card.Card
		meanings sql.NullString
		tag      string
		modifier sql.NullString
		rank     sql.NullInt64
	)

	err := row.Scan(
		&c.VID, &c.SID, &c.RID, &c.Spelling, &c.Reading, &meanings,
		&tag, &modifier, &rank,
	)
	if err != nil {
		return nil, err
	}

	c.State = card.State{Tag: card.Tag(tag), Modifier: card.Tag(modifier.String)}
	if rank.Valid {
		r := int(rank.Int64)
		c.FrequencyRank = &r
	}
	if meanings.Valid && meanings.String != "" {
		if err := json.Unmarshal([]byte(meanings.String), &c.Meanings); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func scanCards(rows *sql.Rows) ([]*card.Card, error) {
	var out []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

func meaningsJSON(meanings []string) (sql.NullString, error) {
	if len(meanings) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meanings)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// tagOf returns the stored tag, not-in-deck for the zero state.
func tagOf(s card.State) string {
	if s.Tag == "" {
		return string(card.NotInDeck)
	}
	return string(s.Tag)
}

// toNullString maps the empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
