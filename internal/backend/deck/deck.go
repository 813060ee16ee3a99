// Package deck is a local backend: vocabulary lives in the SQLite deck and
// text is tokenized by matching card spellings.
package deck

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// Name identifies this backend in errors and logs.
const Name = "deck"

// Backend implements backend.Backend over the SQLite deck.
type Backend struct {
	db    *sql.DB
	delay time.Duration

	mu        sync.Mutex
	matcher   *matcher
	signature deckSignature
	entropy   *ulid.MonotonicEntropy
}

// Option configures a Backend.
type Option func(*Backend)

// WithDelay sets the delay reported after every request.
func WithDelay(d time.Duration) Option {
	return func(b *Backend) { b.delay = d }
}

// New returns a deck backend over database.
func New(database *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		db:      database,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ backend.Backend = (*Backend)(nil)

// deckSignature changes whenever cards are added, removed or respelled.
type deckSignature struct {
	count, maxRowID, spellingBytes int64
}

// Parse matches deck spellings in each text. It returns backend.ErrNoResults
// when the deck is empty.
func (b *Backend) Parse(ctx context.Context, texts []string) ([][]card.Token, time.Duration, error) {
	m, err := b.loadMatcher(ctx)
	if err != nil {
		return nil, b.delay, errors.NewBackend(Name, err)
	}
	if m.empty() {
		return nil, b.delay, backend.ErrNoResults
	}

	// Cards are loaded once per call so tokens citing the same key share one *Card.
	cards := make(map[card.Key]*card.Card)
	out := make([][]card.Token, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, b.delay, err
		}
		runes := []rune(text)
		offsets := card.RuneToUTF16Offsets(text)
		for _, mt := range m.find(runes) {
			c, ok := cards[mt.key]
			if !ok {
				c, err = db.GetCard(ctx, b.db, mt.key)
				if err != nil {
					return nil, b.delay, errors.NewBackend(Name, err)
				}
				cards[mt.key] = c
			}
			out[i] = append(out[i], card.NewToken(offsets[mt.start], offsets[mt.end], c, furigana(c.Spelling, c.Reading)))
		}
	}
	return out, b.delay, nil
}

// Mutate applies m to the card's stored state and logs it as a review.
func (b *Backend) Mutate(ctx context.Context, m backend.Mutation) ([]card.StateChange, time.Duration, error) {
	if err := m.Validate(); err != nil {
		return nil, b.delay, errors.NewInvalidRequest(err.Error())
	}

	var change card.StateChange
	err := db.WithTx(ctx, b.db, func(tx *sql.Tx) error {
		c, err := db.GetCard(ctx, tx, m.Key)
		if err != nil {
			return err
		}
		next := transition(c.State, m)
		if next != c.State {
			if err := db.UpdateState(ctx, tx, m.Key, next); err != nil {
				return err
			}
		}
		change = card.StateChange{Key: m.Key, State: next}
		return db.InsertReview(ctx, tx, &db.Review{
			ID:          b.newID(),
			Key:         m.Key,
			Action:      string(m.Action),
			Grade:       string(m.Grade),
			StateBefore: c.State,
			StateAfter:  next,
			CreatedAt:   time.Now().Unix(),
		})
	})
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, b.delay, err
		}
		return nil, b.delay, errors.NewBackend(Name, err)
	}
	return []card.StateChange{change}, b.delay, nil
}

func (b *Backend) newID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Now(), b.entropy).String()
}

// loadMatcher returns the compiled matcher, rebuilding it when the deck's
// spellings changed since the last build.
func (b *Backend) loadMatcher(ctx context.Context) (*matcher, error) {
	var sig deckSignature
	err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(rowid), 0), COALESCE(SUM(LENGTH(spelling)), 0)
		FROM cards
	`).Scan(&sig.count, &sig.maxRowID, &sig.spellingBytes)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.matcher != nil && sig == b.signature {
		return b.matcher, nil
	}

	cards, err := db.AllCards(ctx, b.db)
	if err != nil {
		return nil, err
	}
	m, err := newMatcher(cards)
	if err != nil {
		return nil, err
	}
	b.matcher, b.signature = m, sig
	return m, nil
}
