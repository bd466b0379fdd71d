// Package sqlite stores settings in a SQLite database.
//
// Methods run against b.conn, which is either the *sql.DB (autocommit)
// or a *sql.Tx inside RunInTransaction. Writes that touch more than one
// row always go through RunInTransaction so a failed save never leaves
// a half-written slot.
//
// The default driver is modernc.org/sqlite; building with the
// cgo_sqlite tag selects github.com/mattn/go-sqlite3 instead.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/logging"
	"github.com/frobware/go-opstart/settings"
)

//go:embed schema.sql
var schemaSQL string

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend implements settings.Backend on SQLite.
type Backend struct {
	db     *sql.DB
	conn   dbConn
	logger *slog.Logger
	now    func() time.Time

	stmtGetGlobal         *sql.Stmt
	stmtSaveGlobal        *sql.Stmt
	stmtListCounters      *sql.Stmt
	stmtDeleteCounters    *sql.Stmt
	stmtInsertCounter     *sql.Stmt
	stmtGetSlotRecord     *sql.Stmt
	stmtSaveSlotRecord    *sql.Stmt
	stmtDeleteSlotRecord  *sql.Stmt
	stmtListEventSettings *sql.Stmt
	stmtDeleteEvents      *sql.Stmt
	stmtInsertEvent       *sql.Stmt
}

var _ settings.Backend = (*Backend)(nil)

// New opens (creating if needed) the database at dbPath.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.ComponentKey, logging.SettingsDB, "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened database")
	return b, nil
}

// NewInMemory returns a backend on a private in-memory database.
func NewInMemory(ctx context.Context, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.ComponentKey, logging.SettingsDB, "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection would otherwise see its own empty
	// database.
	db.SetMaxOpenConns(1)

	return open(ctx, db, logger)
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Backend, error) {
	b := &Backend{db: db, conn: db, logger: logger, now: time.Now}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := b.prepareStatements(ctx); err != nil {
		b.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return b, nil
}

// Close closes the prepared statements and the database.
func (b *Backend) Close() error {
	b.closeStatements()
	return b.db.Close()
}

func (b *Backend) statements() []**sql.Stmt {
	return []**sql.Stmt{
		&b.stmtGetGlobal,
		&b.stmtSaveGlobal,
		&b.stmtListCounters,
		&b.stmtDeleteCounters,
		&b.stmtInsertCounter,
		&b.stmtGetSlotRecord,
		&b.stmtSaveSlotRecord,
		&b.stmtDeleteSlotRecord,
		&b.stmtListEventSettings,
		&b.stmtDeleteEvents,
		&b.stmtInsertEvent,
	}
}

func (b *Backend) closeStatements() {
	for _, p := range b.statements() {
		if *p != nil {
			(*p).Close()
		}
	}
}

// RunInTransaction runs fn against a backend bound to a transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
// Called on a backend that is already transactional, fn joins the
// enclosing transaction.
func (b *Backend) RunInTransaction(ctx context.Context, fn func(*Backend) error) error {
	if _, ok := b.conn.(*sql.Tx); ok {
		return fn(b)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txb := &Backend{db: b.db, conn: tx, logger: b.logger, now: b.now}
	src, dst := b.statements(), txb.statements()
	for i := range src {
		*dst[i] = tx.StmtContext(ctx, *src[i])
	}

	if err := fn(txb); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *Backend) ReadGlobal(ctx context.Context) (settings.Global, error) {
	var (
		g                           settings.Global
		cpu                         int
		ignore, kernelOnly, verbose int
		updated                     string
	)
	c := &g.Config
	err := b.stmtGetGlobal.QueryRowContext(ctx).Scan(
		&cpu, &c.KernelImage, &c.SystemMap, &c.BaseDir, &c.SamplesDir, &c.DeviceFile,
		&c.HashMapDevice, &c.LogFile, &c.BufferSize, &c.HashTableSize, &c.PIDFilter,
		&c.PGRPFilter, &ignore, &kernelOnly, &verbose, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Global{}, settings.ErrNotExist
	}
	if err != nil {
		return settings.Global{}, fmt.Errorf("get global settings: %w", err)
	}
	g.CPU = opstart.CPUType(cpu)
	c.IgnoreDaemonSamples = ignore != 0
	c.KernelOnly = kernelOnly != 0
	c.Verbose = verbose != 0

	rows, err := b.stmtListCounters.QueryContext(ctx)
	if err != nil {
		return settings.Global{}, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slot, enabled int
			event         sql.NullString
		)
		if err := rows.Scan(&slot, &enabled, &event); err != nil {
			return settings.Global{}, fmt.Errorf("scan counter: %w", err)
		}
		for len(g.Counters) <= slot {
			g.Counters = append(g.Counters, settings.SlotState{})
		}
		g.Counters[slot] = settings.SlotState{Enabled: enabled != 0, Event: event.String}
	}
	if err := rows.Err(); err != nil {
		return settings.Global{}, fmt.Errorf("list counters: %w", err)
	}

	b.logger.DebugContext(ctx, "read global settings", "cpu", g.CPU, "updated_at", updated)
	return g, nil
}

func (b *Backend) WriteGlobal(ctx context.Context, g settings.Global) error {
	return b.RunInTransaction(ctx, func(tx *Backend) error {
		c := g.Config
		if _, err := tx.stmtSaveGlobal.ExecContext(ctx,
			int(g.CPU), c.KernelImage, c.SystemMap, c.BaseDir, c.SamplesDir, c.DeviceFile,
			c.HashMapDevice, c.LogFile, int64(c.BufferSize), int64(c.HashTableSize), int64(c.PIDFilter),
			int64(c.PGRPFilter), boolInt(c.IgnoreDaemonSamples), boolInt(c.KernelOnly), boolInt(c.Verbose),
			tx.timestamp(),
		); err != nil {
			return fmt.Errorf("save global settings: %w", err)
		}

		if _, err := tx.stmtDeleteCounters.ExecContext(ctx); err != nil {
			return fmt.Errorf("delete counters: %w", err)
		}
		for slot, s := range g.Counters {
			event := sql.NullString{String: s.Event, Valid: s.Event != ""}
			if _, err := tx.stmtInsertCounter.ExecContext(ctx, slot, boolInt(s.Enabled), event); err != nil {
				return fmt.Errorf("insert counter %d: %w", slot, err)
			}
		}
		return nil
	})
}

func (b *Backend) ReadSlot(ctx context.Context, slot int) (map[string]opstart.EventSetting, error) {
	var updated string
	err := b.stmtGetSlotRecord.QueryRowContext(ctx, slot).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settings.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d record: %w", slot, err)
	}

	rows, err := b.stmtListEventSettings.QueryContext(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("list slot %d settings: %w", slot, err)
	}
	defer rows.Close()

	m := make(map[string]opstart.EventSetting)
	for rows.Next() {
		var (
			name         string
			s            opstart.EventSetting
			kernel, user int
		)
		if err := rows.Scan(&name, &s.Count, &s.UnitMask, &kernel, &user); err != nil {
			return nil, fmt.Errorf("scan slot %d setting: %w", slot, err)
		}
		s.Kernel = kernel != 0
		s.User = user != 0
		m[name] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slot %d settings: %w", slot, err)
	}

	b.logger.DebugContext(ctx, "read slot settings", "slot", slot, "events", len(m), "updated_at", updated)
	return m, nil
}

func (b *Backend) WriteSlot(ctx context.Context, slot int, m map[string]opstart.EventSetting) error {
	return b.RunInTransaction(ctx, func(tx *Backend) error {
		if _, err := tx.stmtSaveSlotRecord.ExecContext(ctx, slot, tx.timestamp()); err != nil {
			return fmt.Errorf("save slot %d record: %w", slot, err)
		}
		if _, err := tx.stmtDeleteEvents.ExecContext(ctx, slot); err != nil {
			return fmt.Errorf("delete slot %d settings: %w", slot, err)
		}
		for name, s := range m {
			if _, err := tx.stmtInsertEvent.ExecContext(ctx,
				slot, name, int64(s.Count), int64(s.UnitMask), boolInt(s.Kernel), boolInt(s.User),
			); err != nil {
				return fmt.Errorf("insert slot %d setting %s: %w", slot, name, err)
			}
		}
		return nil
	})
}

func (b *Backend) RemoveSlot(ctx context.Context, slot int) error {
	result, err := b.stmtDeleteSlotRecord.ExecContext(ctx, slot)
	if err != nil {
		return fmt.Errorf("delete slot %d record: %w", slot, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete slot %d record: %w", slot, err)
	}
	if rows == 0 {
		return settings.ErrNotExist
	}
	return nil
}

func (b *Backend) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
