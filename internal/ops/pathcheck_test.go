package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

func TestValidatePath_Rejections(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	tests := []struct {
		name string
		path string
		mode PathCheckMode
	}{
		{"empty", "", PathCheckWrite},
		{"parent traversal", "../deck.jsonl", PathCheckWrite},
		{"mid-path traversal", dir + "/../deck.jsonl", PathCheckWrite},
		{"no extension", filepath.Join(dir, "deck"), PathCheckWrite},
		{"wrong extension", filepath.Join(dir, "deck.json"), PathCheckWrite},
		{"outside allowed dirs", "/tmp/deck.jsonl", PathCheckWrite},
		{"subdirectory of allowed dir", filepath.Join(dir, "sub", "deck.jsonl"), PathCheckWrite},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, tc.mode, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_AllowedDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	if err := ValidatePath(filepath.Join(dir, "deck.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected write path to pass, got: %v", err)
	}

	err := ValidatePath(filepath.Join(dir, "missing.jsonl"), PathCheckRead, cfg)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing import file, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o700); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	if err := ValidatePath(filepath.Join(nested, "deck.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected nested path to pass in unsafe mode, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(nested, "deck.txt"), PathCheckWrite, cfg); err == nil {
		t.Error("extension must still be enforced in unsafe mode")
	}
}

func TestValidatePath_SymlinkRejected(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.jsonl")
	if err := os.WriteFile(target, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, cfg := range []*config.Config{testConfig(dir), {AllowUnsafePaths: true}} {
		err := ValidatePath(link, PathCheckRead, cfg)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("expected symlink rejection (unsafe=%v), got: %v", cfg.AllowUnsafePaths, err)
		}
	}
}

func TestValidatePath_SymlinkedAllowedDirResolves(t *testing.T) {
	real := t.TempDir()
	linkDir := filepath.Join(t.TempDir(), "exports")
	if err := os.Symlink(real, linkDir); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	cfg := testConfig(linkDir)

	if err := ValidatePath(filepath.Join(real, "deck.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected the resolved target to be allowed, got: %v", err)
	}
}
