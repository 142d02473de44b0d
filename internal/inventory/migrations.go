package inventory

import (
	"database/sql"

	"github.com/depotlabs/depot/pkg/plugin"
)

// migrations creates the inventory tables. The serial uniqueness
// constraint backstops the check-then-insert in Create against
// concurrent creates; the log index serves per-device history in
// timestamp order.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create inventory device and device log tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE inventory_devices (
					id                    TEXT PRIMARY KEY,
					name                  TEXT NOT NULL DEFAULT '',
					type                  TEXT NOT NULL DEFAULT 'other',
					serial_number         TEXT NOT NULL,
					description           TEXT NOT NULL DEFAULT '',
					location              TEXT NOT NULL DEFAULT '',
					specifications        TEXT NOT NULL DEFAULT '{}',
					status                TEXT NOT NULL DEFAULT 'in_stock',
					purchase_date         DATETIME,
					deploy_date           DATETIME,
					last_maintenance_date DATETIME,
					created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_inventory_devices_serial ON inventory_devices(serial_number)`,
				`CREATE INDEX idx_inventory_devices_status ON inventory_devices(status)`,
				`CREATE INDEX idx_inventory_devices_type ON inventory_devices(type)`,
				`CREATE TABLE inventory_device_logs (
					id           TEXT PRIMARY KEY,
					device_id    TEXT NOT NULL REFERENCES inventory_devices(id),
					action       TEXT NOT NULL,
					old_status   TEXT NOT NULL DEFAULT '',
					new_status   TEXT NOT NULL DEFAULT '',
					performed_by TEXT NOT NULL DEFAULT '',
					notes        TEXT NOT NULL DEFAULT '',
					timestamp    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_inventory_device_logs_device_ts ON inventory_device_logs(device_id, timestamp)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
