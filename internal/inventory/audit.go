package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/depotlabs/depot/pkg/models"
	"github.com/google/uuid"
)

// AuditLog records device lifecycle history. Entries are written after
// the transition they describe has committed, so a failed write leaves
// a gap in the trail but never blocks the transition itself.
type AuditLog interface {
	// Record appends one entry, assigning ID and Timestamp if unset.
	Record(ctx context.Context, entry *models.DeviceLog) error

	// ListByDevice returns all entries for a device, oldest first.
	ListByDevice(ctx context.Context, deviceID string) ([]models.DeviceLog, error)
}

var _ AuditLog = (*SQLiteAuditLog)(nil)

// SQLiteAuditLog stores audit entries in the inventory_device_logs table.
type SQLiteAuditLog struct {
	db *sql.DB
}

func NewSQLiteAuditLog(db *sql.DB) *SQLiteAuditLog {
	return &SQLiteAuditLog{db: db}
}

func (a *SQLiteAuditLog) Record(ctx context.Context, entry *models.DeviceLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO inventory_device_logs (
			id, device_id, action, old_status, new_status, performed_by, notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.Action,
		string(entry.OldStatus), string(entry.NewStatus),
		entry.PerformedBy, entry.Notes, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record device log: %w", err)
	}
	return nil
}

func (a *SQLiteAuditLog) ListByDevice(ctx context.Context, deviceID string) ([]models.DeviceLog, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, device_id, action, old_status, new_status, performed_by, notes, timestamp
		FROM inventory_device_logs
		WHERE device_id = ?
		ORDER BY timestamp ASC, rowid ASC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list device logs %q: %w", deviceID, err)
	}
	defer rows.Close()

	var entries []models.DeviceLog
	for rows.Next() {
		var e models.DeviceLog
		var oldStatus, newStatus string
		if err := rows.Scan(
			&e.ID, &e.DeviceID, &e.Action, &oldStatus, &newStatus,
			&e.PerformedBy, &e.Notes, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan device log: %w", err)
		}
		e.OldStatus = models.DeviceStatus(oldStatus)
		e.NewStatus = models.DeviceStatus(newStatus)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device logs: %w", err)
	}
	if entries == nil {
		entries = []models.DeviceLog{}
	}
	return entries, nil
}
