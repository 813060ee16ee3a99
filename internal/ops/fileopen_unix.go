//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// createNoFollow creates a deck file for writing. O_NOFOLLOW refuses a
// symlink in the final component; ValidatePath has already pinned the parent.
func createNoFollow(path string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC | syscall.O_NOFOLLOW | syscall.O_CLOEXEC
	fd, err := syscall.Open(path, flags, 0o600)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// openNoFollow opens a deck file for reading, refusing a symlink.
func openNoFollow(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case stderrors.Is(err, syscall.ELOOP):
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		case stderrors.Is(err, syscall.ENOENT):
			return nil, errors.NewNotFound("file " + path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
