package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const lockName = "megumi-download.lock"

// ErrAlreadyRunning signals that another live process owns the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock is a PID-stamped single-instance guard. A lock whose recorded
// process no longer exists is considered stale and reclaimed.
type Lock struct {
	path string
}

// DefaultPath returns the per-host lock location under the OS temp dir.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), lockName)
}

// Acquire takes the lock at path, reclaiming a stale one if its owner is
// gone. Returns ErrAlreadyRunning when a live owner holds it.
func Acquire(path string) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, werr
			}
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		owner, readErr := readOwner(path)
		if readErr == nil && processAlive(owner) {
			return nil, ErrAlreadyRunning
		}
		// Stale or unreadable lock; remove and retry once.
		log.Debug().Str("op", "lockfile").Msgf("Reclaiming stale lock %s (pid %d)", path, owner)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, rmErr
		}
	}
	return nil, ErrAlreadyRunning
}

// Release removes the lock file.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "lockfile").Err(err).Msg("Failed to remove lock file")
	}
}

func readOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed lock content %q", string(data))
	}
	return pid, nil
}
