// Package disk reports free space on the file systems holding the databases.
package disk

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const MiB = 1024 * 1024

// FreeBytes returns the bytes available to unprivileged users on the file
// system containing path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t

	err := unix.Statfs(path, &st)
	if err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	return st.Bavail * uint64(st.Bsize), nil
}

type Checker struct {
	paths        []string
	minFreeBytes uint64
	freeBytes    func(path string) (uint64, error)
}

// IsLow reports whether any of the watched file systems has less free space
// than the configured minimum. A zero minimum disables the check.
func (c *Checker) IsLow(_ context.Context) (bool, error) {
	if c.minFreeBytes == 0 {
		return false, nil
	}

	for _, p := range c.paths {
		free, err := c.freeBytes(p)
		if err != nil {
			return false, err
		}

		if free < c.minFreeBytes {
			return true, nil
		}
	}

	return false, nil
}

// NewChecker watches the directories of the given database files.
func NewChecker(minFreeMB int, dbPaths ...string) *Checker {
	seen := map[string]bool{}
	var dirs []string

	for _, p := range dbPaths {
		dir := filepath.Dir(p)
		if seen[dir] {
			continue
		}

		seen[dir] = true
		dirs = append(dirs, dir)
	}

	var minFree uint64
	if minFreeMB > 0 {
		minFree = uint64(minFreeMB) * MiB
	}

	return &Checker{
		paths:        dirs,
		minFreeBytes: minFree,
		freeBytes:    FreeBytes,
	}
}
