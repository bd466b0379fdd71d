package sqlite

import (
	"context"
	"fmt"
)

func (b *Backend) prepareStatements(ctx context.Context) error {
	var err error

	const sqlGetGlobal = `
		SELECT cpu_type, kernel_image, system_map, base_dir, samples_dir, device_file,
		       hash_map_device, log_file, buffer_size, hash_table_size, pid_filter,
		       pgrp_filter, ignore_daemon_samples, kernel_only, verbose, updated_at
		FROM global_settings
		WHERE id = 1`
	if b.stmtGetGlobal, err = b.db.PrepareContext(ctx, sqlGetGlobal); err != nil {
		return fmt.Errorf("prepare GetGlobal: %w", err)
	}

	const sqlSaveGlobal = `
		INSERT INTO global_settings
		(id, cpu_type, kernel_image, system_map, base_dir, samples_dir, device_file,
		 hash_map_device, log_file, buffer_size, hash_table_size, pid_filter,
		 pgrp_filter, ignore_daemon_samples, kernel_only, verbose, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  cpu_type = excluded.cpu_type,
		  kernel_image = excluded.kernel_image,
		  system_map = excluded.system_map,
		  base_dir = excluded.base_dir,
		  samples_dir = excluded.samples_dir,
		  device_file = excluded.device_file,
		  hash_map_device = excluded.hash_map_device,
		  log_file = excluded.log_file,
		  buffer_size = excluded.buffer_size,
		  hash_table_size = excluded.hash_table_size,
		  pid_filter = excluded.pid_filter,
		  pgrp_filter = excluded.pgrp_filter,
		  ignore_daemon_samples = excluded.ignore_daemon_samples,
		  kernel_only = excluded.kernel_only,
		  verbose = excluded.verbose,
		  updated_at = excluded.updated_at`
	if b.stmtSaveGlobal, err = b.db.PrepareContext(ctx, sqlSaveGlobal); err != nil {
		return fmt.Errorf("prepare SaveGlobal: %w", err)
	}

	const sqlListCounters = "SELECT slot, enabled, event FROM counter_slots ORDER BY slot"
	if b.stmtListCounters, err = b.db.PrepareContext(ctx, sqlListCounters); err != nil {
		return fmt.Errorf("prepare ListCounters: %w", err)
	}

	const sqlDeleteCounters = "DELETE FROM counter_slots"
	if b.stmtDeleteCounters, err = b.db.PrepareContext(ctx, sqlDeleteCounters); err != nil {
		return fmt.Errorf("prepare DeleteCounters: %w", err)
	}

	const sqlInsertCounter = "INSERT INTO counter_slots (slot, enabled, event) VALUES (?, ?, ?)"
	if b.stmtInsertCounter, err = b.db.PrepareContext(ctx, sqlInsertCounter); err != nil {
		return fmt.Errorf("prepare InsertCounter: %w", err)
	}

	const sqlGetSlotRecord = "SELECT updated_at FROM slot_records WHERE slot = ?"
	if b.stmtGetSlotRecord, err = b.db.PrepareContext(ctx, sqlGetSlotRecord); err != nil {
		return fmt.Errorf("prepare GetSlotRecord: %w", err)
	}

	const sqlSaveSlotRecord = `
		INSERT INTO slot_records (slot, updated_at) VALUES (?, ?)
		ON CONFLICT(slot) DO UPDATE SET updated_at = excluded.updated_at`
	if b.stmtSaveSlotRecord, err = b.db.PrepareContext(ctx, sqlSaveSlotRecord); err != nil {
		return fmt.Errorf("prepare SaveSlotRecord: %w", err)
	}

	const sqlDeleteSlotRecord = "DELETE FROM slot_records WHERE slot = ?"
	if b.stmtDeleteSlotRecord, err = b.db.PrepareContext(ctx, sqlDeleteSlotRecord); err != nil {
		return fmt.Errorf("prepare DeleteSlotRecord: %w", err)
	}

	const sqlListEventSettings = `
		SELECT event, count, unit_mask, kernel, user
		FROM event_settings
		WHERE slot = ?
		ORDER BY event`
	if b.stmtListEventSettings, err = b.db.PrepareContext(ctx, sqlListEventSettings); err != nil {
		return fmt.Errorf("prepare ListEventSettings: %w", err)
	}

	const sqlDeleteEvents = "DELETE FROM event_settings WHERE slot = ?"
	if b.stmtDeleteEvents, err = b.db.PrepareContext(ctx, sqlDeleteEvents); err != nil {
		return fmt.Errorf("prepare DeleteEvents: %w", err)
	}

	const sqlInsertEvent = `
		INSERT INTO event_settings (slot, event, count, unit_mask, kernel, user)
		VALUES (?, ?, ?, ?, ?, ?)`
	if b.stmtInsertEvent, err = b.db.PrepareContext(ctx, sqlInsertEvent); err != nil {
		return fmt.Errorf("prepare InsertEvent: %w", err)
	}

	return nil
}
