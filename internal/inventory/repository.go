package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/depotlabs/depot/pkg/models"
	"github.com/depotlabs/depot/pkg/plugin"
	"github.com/google/uuid"
)

// Pagination bounds for List. Pages are 1-based.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Filter controls which devices are returned by List.
type Filter struct {
	Status models.DeviceStatus // Filter by lifecycle status.
	Type   models.DeviceType   // Filter by device type.
}

// ListResult is one page of devices plus the total match count for
// pagination metadata.
type ListResult struct {
	Items    []models.Device `json:"devices"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// FieldPatch names the mutable, non-status fields UpdateFields may
// change. Nil fields are left untouched. Status and serial number are
// deliberately unreachable through this path.
type FieldPatch struct {
	Name           *string
	Description    *string
	Location       *string
	Specifications map[string]string
}

// DeviceRepository provides durable CRUD and query access to devices.
type DeviceRepository interface {
	// Create inserts a new device in status in_stock, assigning an ID if
	// empty. Returns ErrDuplicateSerial if the serial number is taken.
	Create(ctx context.Context, device *models.Device) error

	// GetByID returns a single device, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Device, error)

	// GetBySerial returns the device with the given serial number, or
	// ErrNotFound.
	GetBySerial(ctx context.Context, serial string) (*models.Device, error)

	// List returns one page of devices matching the filter, in insertion
	// order, plus the total match count.
	List(ctx context.Context, filter Filter, page, pageSize int) (*ListResult, error)

	// ListByStatus returns all devices in the given status, unpaginated.
	ListByStatus(ctx context.Context, status models.DeviceStatus) ([]models.Device, error)

	// UpdateFields patches mutable non-status fields and bumps
	// updated_at. Returns the stored device, or ErrNotFound.
	UpdateFields(ctx context.Context, id string, patch FieldPatch) (*models.Device, error)
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository on the shared
// SQLite store.
type SQLiteDeviceRepository struct {
	store plugin.Store
	db    *sql.DB
}

// NewSQLiteDeviceRepository creates a DeviceRepository. The inventory
// tables must already exist (created by the module's migrations).
func NewSQLiteDeviceRepository(store plugin.Store) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{store: store, db: store.DB()}
}

// deviceColumns is the shared column list for device queries.
const deviceColumns = `id, name, type, serial_number, description, location,
	specifications, status, purchase_date, deploy_date, last_maintenance_date,
	created_at, updated_at`

// querier is the subset of *sql.DB and *sql.Tx the repository needs, so
// the same queries run standalone or inside an engine transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	device.Status = models.StatusInStock
	device.CreatedAt = now
	device.UpdatedAt = now
	if device.PurchaseDate == nil {
		device.PurchaseDate = &now
	}

	// Check-then-insert inside one transaction; the UNIQUE index is the
	// backstop if two creates race past the check.
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM inventory_devices WHERE serial_number = ?`,
			device.SerialNumber,
		).Scan(&count); err != nil {
			return fmt.Errorf("check serial %q: %w", device.SerialNumber, err)
		}
		if count > 0 {
			return ErrDuplicateSerial
		}
		return insertDevice(ctx, tx, device)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSerial
		}
		return err
	}
	return nil
}

func (r *SQLiteDeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return getDeviceByID(ctx, r.db, id)
}

func (r *SQLiteDeviceRepository) GetBySerial(ctx context.Context, serial string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices WHERE serial_number = ?`, serial)
	d, err := scanDevice(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device by serial %q: %w", serial, err)
	}
	return d, nil
}

func (r *SQLiteDeviceRepository) List(ctx context.Context, filter Filter, page, pageSize int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	// Build WHERE clause with parameterized placeholders.
	where := "1=1"
	var args []any

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where += " AND type = ?"
		args = append(args, string(filter.Type))
	}

	// Count total matching rows.
	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM inventory_devices WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}

	// Window in insertion order. rowid preserves insert order in SQLite.
	queryArgs := make([]any, 0, len(args)+2)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, pageSize, (page-1)*pageSize)

	query := fmt.Sprintf(
		"SELECT %s FROM inventory_devices WHERE %s ORDER BY rowid ASC LIMIT ? OFFSET ?",
		deviceColumns, where,
	)

	rows, err := r.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices, err := collectDevices(rows)
	if err != nil {
		return nil, err
	}

	return &ListResult{Items: devices, Total: total, Page: page, PageSize: pageSize}, nil
}

func (r *SQLiteDeviceRepository) ListByStatus(ctx context.Context, status models.DeviceStatus) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices WHERE status = ? ORDER BY rowid ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list devices by status %q: %w", status, err)
	}
	defer rows.Close()

	return collectDevices(rows)
}

func (r *SQLiteDeviceRepository) UpdateFields(ctx context.Context, id string, patch FieldPatch) (*models.Device, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *patch.Location)
	}
	if patch.Specifications != nil {
		specsJSON, err := json.Marshal(patch.Specifications)
		if err != nil {
			return nil, fmt.Errorf("encode specifications: %w", err)
		}
		sets = append(sets, "specifications = ?")
		args = append(args, string(specsJSON))
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx,
		"UPDATE inventory_devices SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update device %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}

	return getDeviceByID(ctx, r.db, id)
}

// getDeviceByID loads one device through q, which may be the pooled
// handle or an open transaction.
func getDeviceByID(ctx context.Context, q querier, id string) (*models.Device, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices WHERE id = ?`, id)
	d, err := scanDevice(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", id, err)
	}
	return d, nil
}

// insertDevice writes a full device row through q.
func insertDevice(ctx context.Context, q querier, d *models.Device) error {
	specsJSON, _ := json.Marshal(d.Specifications)
	if d.Specifications == nil {
		specsJSON = []byte("{}")
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO inventory_devices (
			id, name, type, serial_number, description, location,
			specifications, status, purchase_date, deploy_date,
			last_maintenance_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(d.Type), d.SerialNumber, d.Description, d.Location,
		string(specsJSON), string(d.Status), nullTime(d.PurchaseDate), nullTime(d.DeployDate),
		nullTime(d.LastMaintenanceDate), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

// saveDevice rewrites a device's mutable columns through q. Used by the
// transition engine inside its transaction.
func saveDevice(ctx context.Context, q querier, d *models.Device) error {
	specsJSON, _ := json.Marshal(d.Specifications)
	if d.Specifications == nil {
		specsJSON = []byte("{}")
	}

	res, err := q.ExecContext(ctx, `
		UPDATE inventory_devices SET
			name = ?, description = ?, location = ?, specifications = ?,
			status = ?, deploy_date = ?, last_maintenance_date = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.Description, d.Location, string(specsJSON),
		string(d.Status), nullTime(d.DeployDate), nullTime(d.LastMaintenanceDate), d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("save device %q: %w", d.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanDevice maps one row into a Device via the given scan function.
func scanDevice(scan func(dest ...any) error) (*models.Device, error) {
	var d models.Device
	var typ, status, specsJSON string
	var purchase, deploy, maintenance sql.NullTime
	err := scan(
		&d.ID, &d.Name, &typ, &d.SerialNumber, &d.Description, &d.Location,
		&specsJSON, &status, &purchase, &deploy, &maintenance,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = models.DeviceType(typ)
	d.Status = models.DeviceStatus(status)
	d.PurchaseDate = timePtr(purchase)
	d.DeployDate = timePtr(deploy)
	d.LastMaintenanceDate = timePtr(maintenance)
	_ = json.Unmarshal([]byte(specsJSON), &d.Specifications)
	return &d, nil
}

func collectDevices(rows *sql.Rows) ([]models.Device, error) {
	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// isUniqueViolation matches the SQLite unique constraint error on the
// serial index without depending on driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
