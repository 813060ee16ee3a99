package ops

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend/deck"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/queue"
)

var (
	testGakkou = &card.Card{VID: 1, SID: 1, Spelling: "学校", Reading: "がっこう", State: card.Plain(card.Known), Meanings: []string{"school"}}
	testIku    = &card.Card{VID: 2, SID: 1, Spelling: "行く", Reading: "いく", State: card.Plain(card.New)}
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedCards(t *testing.T, database *sql.DB, cards ...*card.Card) {
	t.Helper()
	for _, c := range cards {
		if err := db.InsertCard(context.Background(), database, c); err != nil {
			t.Fatalf("InsertCard(%s) failed: %v", c.Key(), err)
		}
	}
}

// setupRuntime returns a runtime over a seeded local deck with no batching delay.
func setupRuntime(t *testing.T) (*Runtime, *sql.DB) {
	t.Helper()
	database := setupDB(t)
	seedCards(t, database, testGakkou, testIku)

	cfg := config.DefaultConfig()
	cfg.BatchWindowMS = 1
	q := queue.New(deck.New(database), queue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(q.Close)
	return NewRuntime(cfg, q), database
}

// testConfig allows deck files directly in dir.
func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}
	return cfg
}
