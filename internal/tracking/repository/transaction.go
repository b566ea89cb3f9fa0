package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
)

// Transaction types
const (
	TxTypeReceive      = "receive"
	TxTypeAllocation   = "allocation"
	TxTypeShipment     = "shipment"
	TxTypeTransfer     = "transfer"
	TxTypeStatusChange = "status_change"
)

// InventoryTransaction is one immutable ledger entry. A row is written in the
// same database transaction as the inventory change it records and is never
// updated afterwards.
type InventoryTransaction struct {
	ID              string    `db:"id" json:"id"`
	InventoryID     string    `db:"inventory_id" json:"inventory_id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	FromStatus      *string   `db:"from_status" json:"from_status,omitempty"`
	ToStatus        string    `db:"to_status" json:"to_status"`
	Quantity        int       `db:"quantity" json:"quantity"`
	ReferenceType   *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *string   `db:"reference_id" json:"reference_id,omitempty"`
	FromLocationID  *string   `db:"from_location_id" json:"from_location_id,omitempty"`
	LocationID      *string   `db:"location_id" json:"location_id,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// TransactionRepository handles the inventory transaction ledger
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertTx writes a ledger entry inside the given transaction.
func (r *TransactionRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, t *InventoryTransaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Quantity == 0 {
		t.Quantity = 1
	}

	query := `
		INSERT INTO inventory_transactions (
			id, inventory_id, transaction_type, from_status, to_status,
			quantity, reference_type, reference_id, from_location_id, location_id,
			notes, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	return tx.QueryRowxContext(ctx, query,
		t.ID, t.InventoryID, t.TransactionType, t.FromStatus, t.ToStatus,
		t.Quantity, t.ReferenceType, t.ReferenceID, t.FromLocationID, t.LocationID,
		t.Notes, t.PerformedBy,
	).Scan(&t.CreatedAt)
}

// ListByInventory returns the full movement history of one inventory row,
// oldest first.
func (r *TransactionRepository) ListByInventory(ctx context.Context, inventoryID string) ([]*InventoryTransaction, error) {
	rows := []*InventoryTransaction{}

	query := `
		SELECT id, inventory_id, transaction_type, from_status, to_status,
		       quantity, reference_type, reference_id, from_location_id,
		       location_id, notes, performed_by, created_at
		FROM inventory_transactions
		WHERE inventory_id = $1
		ORDER BY created_at, id
	`

	if err := r.db.SelectContext(ctx, &rows, query, inventoryID); err != nil {
		return nil, err
	}

	return rows, nil
}

// ListByReference returns all ledger entries tied to an order or other
// reference, oldest first.
func (r *TransactionRepository) ListByReference(ctx context.Context, refType, refID string) ([]*InventoryTransaction, error) {
	rows := []*InventoryTransaction{}

	query := `
		SELECT id, inventory_id, transaction_type, from_status, to_status,
		       quantity, reference_type, reference_id, from_location_id,
		       location_id, notes, performed_by, created_at
		FROM inventory_transactions
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at, id
	`

	if err := r.db.SelectContext(ctx, &rows, query, refType, refID); err != nil {
		return nil, err
	}

	return rows, nil
}

// CountSince counts ledger entries of a type created on or after the cutoff.
// Used by dashboard stats.
func (r *TransactionRepository) CountSince(ctx context.Context, txType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM inventory_transactions
		WHERE transaction_type = $1 AND created_at >= $2
	`, txType, since)
	return count, err
}
