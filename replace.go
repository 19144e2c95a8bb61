package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
)

// replaceDir makes dst a copy of src. Whatever was at dst is removed first so
// that nothing from the previous content survives.
func replaceDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	opts := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
	}
	if err := copy.Copy(src, dst, opts); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
