package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/frobware/go-opstart/settings/flatfile"
)

// Dirs holds the paths of everything opstart persists:
//
//	{base}/                      - settings root (default ~/.oprofile)
//	{base}/oprof_start_config    - global settings (flatfile backend)
//	{base}/oprof_start_event#N   - per-slot settings (flatfile backend)
//	{base}/opstart.db            - settings database (sqlite backend)
//	{base}/.lock                 - writer lock
//
// Dirs is immutable after construction. Use NewDirs to create.
type Dirs struct {
	base string
	db   string
	lock string
}

// DefaultDirs returns Dirs rooted at ~/.oprofile.
func DefaultDirs() (Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("locate home directory: %w", err)
	}
	return NewDirs(filepath.Join(home, ".oprofile"))
}

// NewDirs creates Dirs rooted at base, which must be absolute.
func NewDirs(base string) (Dirs, error) {
	if base == "" {
		return Dirs{}, fmt.Errorf("base path cannot be empty")
	}
	if !filepath.IsAbs(base) {
		return Dirs{}, fmt.Errorf("base path must be absolute, got %q", base)
	}
	base = filepath.Clean(base)
	return Dirs{
		base: base,
		db:   filepath.Join(base, "opstart.db"),
		lock: filepath.Join(base, ".lock"),
	}, nil
}

// Base returns the settings root.
func (d Dirs) Base() string { return d.base }

// DBPath returns the sqlite database path.
func (d Dirs) DBPath() string { return d.db }

// Lock returns the writer lock file path.
func (d Dirs) Lock() string { return d.lock }

// GlobalFile returns the flatfile global settings path.
func (d Dirs) GlobalFile() string {
	return filepath.Join(d.base, flatfile.GlobalFile)
}

// SlotFile returns the flatfile settings path for counter slot n.
func (d Dirs) SlotFile(n int) string {
	return filepath.Join(d.base, flatfile.SlotFilePrefix+strconv.Itoa(n))
}

// EnsureDirectories creates the settings root. Call this at startup
// to fail fast on permission problems.
func (d Dirs) EnsureDirectories(fsys afero.Fs) error {
	if err := fsys.MkdirAll(d.base, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.base, err)
	}
	return nil
}
