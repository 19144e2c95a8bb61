package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// treeLocks holds advisory locks on the working trees of one run
type treeLocks struct {
	locks []*flock.Flock
}

// lockPath returns the lock file for a working tree
func lockPath(lockDir, tree string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(tree)))
	return filepath.Join(lockDir, "compsync-"+hex.EncodeToString(sum[:])[:16]+".lock")
}

// lockTrees takes a non-blocking lock for each tree. Either all locks are
// held on return or none are.
func lockTrees(lockDir string, trees ...string) (*treeLocks, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	l := &treeLocks{}
	for _, tree := range trees {
		fl := flock.New(lockPath(lockDir, tree))
		ok, err := fl.TryLock()
		if err != nil {
			l.release()
			return nil, fmt.Errorf("failed to lock %s: %w", tree, err)
		}
		if !ok {
			l.release()
			return nil, fmt.Errorf("another sync is running against %s (lock %s)", tree, fl.Path())
		}
		l.locks = append(l.locks, fl)
	}
	return l, nil
}

func (l *treeLocks) release() {
	for _, fl := range l.locks {
		fl.Unlock()
	}
	l.locks = nil
}
