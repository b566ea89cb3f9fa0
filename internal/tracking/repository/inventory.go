package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// Inventory status values
const (
	StatusAvailable = "available"
	StatusAllocated = "allocated"
	StatusShipped   = "shipped"
	StatusExpired   = "expired"
	StatusDamaged   = "damaged"
)

// Inventory is a physical-stock record tied 1:1 (by GTIN+serial) to a product
// item once received into the warehouse. Rows are never deleted, only
// transitioned through the status lifecycle.
type Inventory struct {
	ID               string     `db:"id" json:"id"`
	GTIN             string     `db:"gtin" json:"gtin"`
	SerialNumber     string     `db:"serial_number" json:"serial_number"`
	LotNumber        *string    `db:"lot_number" json:"lot_number,omitempty"`
	ExpirationDate   *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	Status           string     `db:"status" json:"status"`
	Quantity         int        `db:"quantity" json:"quantity"`
	LocationID       *string    `db:"location_id" json:"location_id,omitempty"`
	POItemID         *string    `db:"po_item_id" json:"po_item_id,omitempty"`
	SOItemID         *string    `db:"so_item_id" json:"so_item_id,omitempty"`
	LastMovementDate time.Time  `db:"last_movement_date" json:"last_movement_date"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

const inventoryColumns = `
	id, gtin, serial_number, lot_number, expiration_date, status, quantity,
	location_id, po_item_id, so_item_id, last_movement_date, created_at, updated_at`

// StatusUpdate describes one guarded status transition of an inventory row.
// FromStatus is re-checked inside the UPDATE itself: zero rows affected means
// another request changed the row first.
type StatusUpdate struct {
	InventoryID string
	FromStatus  string
	ToStatus    string

	// SetSOItem assigns so_item_id during allocation
	SetSOItem *string
	// ClearSOItem removes the reservation (unused by the forward lifecycle,
	// kept for manual corrections)
	ClearSOItem bool
	// ClearLocation removes location_id when the unit leaves custody
	ClearLocation bool
}

// InventoryRepository handles inventory persistence
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// CreateTx inserts a new inventory row inside the given transaction.
// A (gtin, serial_number) collision means the unit was already received.
func (r *InventoryRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, inv *Inventory) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = StatusAvailable
	}
	if inv.Quantity == 0 {
		inv.Quantity = 1
	}

	query := `
		INSERT INTO inventory (
			id, gtin, serial_number, lot_number, expiration_date, status,
			quantity, location_id, po_item_id, so_item_id, last_movement_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING last_movement_date, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		inv.ID, inv.GTIN, inv.SerialNumber, inv.LotNumber, inv.ExpirationDate,
		inv.Status, inv.Quantity, inv.LocationID, inv.POItemID, inv.SOItemID,
	).Scan(&inv.LastMovementDate, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil && errors.Is(mapped, errors.ErrConflict) {
			return errors.DuplicateUnit(inv.GTIN, inv.SerialNumber)
		}
		return err
	}

	return nil
}

// GetByID gets an inventory row by id
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*Inventory, error) {
	var inv Inventory

	err := r.db.GetContext(ctx, &inv,
		`SELECT `+inventoryColumns+` FROM inventory WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("inventory")
	}
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// GetBySGTIN gets the inventory row for a serialized GTIN
func (r *InventoryRepository) GetBySGTIN(ctx context.Context, gtin, serial string) (*Inventory, error) {
	var inv Inventory

	err := r.db.GetContext(ctx, &inv,
		`SELECT `+inventoryColumns+` FROM inventory WHERE gtin = $1 AND serial_number = $2`,
		gtin, serial)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("inventory")
	}
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// GetByIDForUpdate locks and returns an inventory row inside a transaction.
func (r *InventoryRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Inventory, error) {
	var inv Inventory

	err := tx.GetContext(ctx, &inv,
		`SELECT `+inventoryColumns+` FROM inventory WHERE id = $1 FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("inventory")
	}
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// SelectAvailableForUpdate locks up to limit available rows for a GTIN,
// oldest-received first (FIFO, to minimize expiration risk). Rows locked by a
// concurrent allocation are skipped rather than waited on, so two racing
// allocations never reserve the same unit.
func (r *InventoryRepository) SelectAvailableForUpdate(ctx context.Context, tx *sqlx.Tx, gtin string, limit int) ([]*Inventory, error) {
	rows := []*Inventory{}

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE gtin = $1 AND status = 'available'
		ORDER BY created_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	if err := tx.SelectContext(ctx, &rows, query, gtin, limit); err != nil {
		return nil, err
	}

	return rows, nil
}

// SelectAllocatedBySOItemForUpdate locks all rows reserved for a sales order item.
func (r *InventoryRepository) SelectAllocatedBySOItemForUpdate(ctx context.Context, tx *sqlx.Tx, soItemID string) ([]*Inventory, error) {
	rows := []*Inventory{}

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE so_item_id = $1 AND status = 'allocated'
		ORDER BY created_at, id
		FOR UPDATE
	`

	if err := tx.SelectContext(ctx, &rows, query, soItemID); err != nil {
		return nil, err
	}

	return rows, nil
}

// SelectExpiredForUpdate locks available or allocated rows whose expiration
// date has passed. Used by the expiry sweep.
func (r *InventoryRepository) SelectExpiredForUpdate(ctx context.Context, tx *sqlx.Tx, asOf time.Time, limit int) ([]*Inventory, error) {
	rows := []*Inventory{}

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE status IN ('available', 'allocated')
		  AND expiration_date IS NOT NULL
		  AND expiration_date < $1
		ORDER BY expiration_date, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	if err := tx.SelectContext(ctx, &rows, query, asOf, limit); err != nil {
		return nil, err
	}

	return rows, nil
}

// CountAvailable returns the number of available units for a GTIN.
func (r *InventoryRepository) CountAvailable(ctx context.Context, gtin string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory WHERE gtin = $1 AND status = 'available'`,
		gtin)
	return count, err
}

// UpdateStatusTx applies a guarded status transition. The WHERE clause
// re-checks FromStatus; zero affected rows is reported so the caller can
// distinguish a concurrent modification from a missing row.
func (r *InventoryRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, u StatusUpdate) (int64, error) {
	query := `
		UPDATE inventory
		SET status = $1,
		    so_item_id = CASE
		        WHEN $2::text IS NOT NULL THEN $2::text
		        WHEN $3 THEN NULL
		        ELSE so_item_id
		    END,
		    location_id = CASE WHEN $4 THEN NULL ELSE location_id END,
		    last_movement_date = NOW(),
		    updated_at = NOW()
		WHERE id = $5 AND status = $6
	`

	res, err := tx.ExecContext(ctx, query,
		u.ToStatus, u.SetSOItem, u.ClearSOItem, u.ClearLocation,
		u.InventoryID, u.FromStatus,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// UpdateLocationTx moves a row to a new location without changing status.
func (r *InventoryRepository) UpdateLocationTx(ctx context.Context, tx *sqlx.Tx, id, currentStatus string, locationID *string) (int64, error) {
	query := `
		UPDATE inventory
		SET location_id = $1, last_movement_date = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	res, err := tx.ExecContext(ctx, query, locationID, id, currentStatus)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// ListByStatus lists inventory rows by status with paging.
func (r *InventoryRepository) ListByStatus(ctx context.Context, status string, page, perPage int) ([]*Inventory, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM inventory WHERE status = $1`, status); err != nil {
		return nil, 0, err
	}

	rows := []*Inventory{}
	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE status = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	if err := r.db.SelectContext(ctx, &rows, query, status, perPage, (page-1)*perPage); err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

// StatusCounts returns the number of units per status.
func (r *InventoryRepository) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}

	if err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM inventory GROUP BY status`); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

// CountExpiringWithin returns non-terminal units expiring before the deadline.
func (r *InventoryRepository) CountExpiringWithin(ctx context.Context, deadline time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM inventory
		WHERE status IN ('available', 'allocated')
		  AND expiration_date IS NOT NULL
		  AND expiration_date < $1
	`, deadline)
	return count, err
}

// ListByLot returns inventory rows sharing a lot for a GTIN.
func (r *InventoryRepository) ListByLot(ctx context.Context, gtin, lot string) ([]*Inventory, error) {
	rows := []*Inventory{}

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE gtin = $1 AND lot_number = $2
		ORDER BY serial_number
	`

	if err := r.db.SelectContext(ctx, &rows, query, gtin, lot); err != nil {
		return nil, err
	}

	return rows, nil
}
