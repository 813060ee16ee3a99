//go:build windows

package ops

import (
	"os"

	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// createNoFollow creates a deck file for writing. Windows has no O_NOFOLLOW;
// ValidatePath has already refused symlinks.
func createNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
}

// openNoFollow opens a deck file for reading.
func openNoFollow(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("file " + path)
	}
	return f, err
}
