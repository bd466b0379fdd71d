// Package flatfile stores settings as plain text files in a directory.
//
// The global record lives in GlobalFile; each counter slot N has its
// own file SlotFilePrefix+N. Files are replaced atomically by writing a
// temporary file in the same directory and renaming it over the target.
// A zero-length file is treated as absent.
package flatfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/logging"
	"github.com/frobware/go-opstart/settings"
)

const (
	GlobalFile     = "oprof_start_config"
	SlotFilePrefix = "oprof_start_event#"
)

// Backend implements settings.Backend on an afero filesystem.
type Backend struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

var _ settings.Backend = (*Backend)(nil)

// New returns a backend rooted at dir. The directory is created on the
// first write.
func New(fsys afero.Fs, dir string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		fs:     fsys,
		dir:    dir,
		logger: logger.With(logging.ComponentKey, logging.Flatfile, "dir", dir),
	}
}

// GlobalPath returns the path of the global settings file.
func (b *Backend) GlobalPath() string {
	return filepath.Join(b.dir, GlobalFile)
}

// SlotPath returns the path of the settings file for slot.
func (b *Backend) SlotPath(slot int) string {
	return filepath.Join(b.dir, SlotFilePrefix+strconv.Itoa(slot))
}

func (b *Backend) ReadGlobal(ctx context.Context) (settings.Global, error) {
	data, err := b.read(b.GlobalPath())
	if err != nil {
		return settings.Global{}, err
	}
	g, unknown, err := decodeGlobal(bytes.NewReader(data))
	if err != nil {
		return settings.Global{}, fmt.Errorf("%s: %w", b.GlobalPath(), err)
	}
	for _, key := range unknown {
		b.logger.WarnContext(ctx, "ignoring unknown key", "path", b.GlobalPath(), "key", key)
	}
	return g, nil
}

func (b *Backend) WriteGlobal(ctx context.Context, g settings.Global) error {
	var buf bytes.Buffer
	if err := encodeGlobal(&buf, g); err != nil {
		return err
	}
	return b.write(ctx, b.GlobalPath(), buf.Bytes())
}

func (b *Backend) ReadSlot(ctx context.Context, slot int) (map[string]opstart.EventSetting, error) {
	path := b.SlotPath(slot)
	data, err := b.read(path)
	if err != nil {
		return nil, err
	}
	m, err := decodeSlot(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.logger.DebugContext(ctx, "read slot settings", "slot", slot, "events", len(m))
	return m, nil
}

func (b *Backend) WriteSlot(ctx context.Context, slot int, m map[string]opstart.EventSetting) error {
	var buf bytes.Buffer
	if err := encodeSlot(&buf, m); err != nil {
		return err
	}
	return b.write(ctx, b.SlotPath(slot), buf.Bytes())
}

func (b *Backend) RemoveSlot(ctx context.Context, slot int) error {
	path := b.SlotPath(slot)
	err := b.fs.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings.ErrNotExist
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	b.logger.DebugContext(ctx, "removed slot settings", "slot", slot)
	return nil
}

func (b *Backend) read(path string) ([]byte, error) {
	fi, err := b.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, settings.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	b.logger.Debug("reading settings file", "path", path, "size", fi.Size(), "mtime", fi.ModTime())
	if fi.Size() == 0 {
		return nil, settings.ErrNotExist
	}

	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (b *Backend) write(ctx context.Context, path string, data []byte) error {
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	f, err := afero.TempFile(b.fs, b.dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmp := f.Name()

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	b.logger.DebugContext(ctx, "wrote settings file", "path", path, "size", len(data))
	return nil
}
