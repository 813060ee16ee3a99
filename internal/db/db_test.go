package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
)

func TestInit(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", ".breader")

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "breader.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	info, err := os.Stat(filepath.Join(tmpDir, "exports"))
	if err != nil || !info.IsDir() {
		t.Errorf("exports directory not created: %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys;").Scan(&foreignKeys); err != nil {
		t.Fatalf("failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestInit_Schema(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	objects := []struct{ kind, name string }{
		{"table", "cards"},
		{"table", "reviews"},
		{"index", "idx_cards_spelling"},
		{"index", "idx_cards_state_updated"},
		{"index", "idx_reviews_card"},
	}
	for _, o := range objects {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type=? AND name=?", o.kind, o.name).Scan(&name)
		if err != nil {
			t.Errorf("%s %s not found: %v", o.kind, o.name, err)
		}
	}

	version, err := GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestInit_ReopenKeepsDeck(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	db1, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	c := &card.Card{VID: 7, SID: 1, Spelling: "猫", Reading: "ねこ", State: card.Plain(card.Learning)}
	if err := InsertCard(ctx, db1, c); err != nil {
		t.Fatalf("InsertCard() error = %v", err)
	}
	db1.Close()

	db2, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer db2.Close()

	got, err := GetCard(ctx, db2, c.Key())
	if err != nil {
		t.Fatalf("GetCard() after reopen error = %v", err)
	}
	if got.Spelling != "猫" || got.State != card.Plain(card.Learning) {
		t.Errorf("card changed across reopen: %+v", got)
	}
}

func TestReviews_DeletedWithCard(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	c := &card.Card{VID: 1, SID: 1, Spelling: "学校", Reading: "がっこう", State: card.Plain(card.New)}
	if err := InsertCard(ctx, db, c); err != nil {
		t.Fatal(err)
	}
	err = InsertReview(ctx, db, &Review{
		ID: "01J0000000000000000000000A", Key: c.Key(), Action: "review", Grade: "okay",
		StateBefore: card.Plain(card.New), StateAfter: card.Plain(card.Learning), CreatedAt: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec("DELETE FROM cards WHERE vid = 1 AND sid = 1"); err != nil {
		t.Fatal(err)
	}
	reviews, err := ListReviews(ctx, db, c.Key())
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 0 {
		t.Errorf("expected reviews to cascade, got %d", len(reviews))
	}
}

func TestUserVersion(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if err := SetUserVersion(db, 99); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}
	version, err := GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != 99 {
		t.Errorf("user_version = %d, want 99", version)
	}
}

func TestConfigurePool(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 3, DBMaxIdleConns: 2})
	if got := db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}
