package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// ProductItem is one serialized unit as declared by an EPCIS file.
// (gtin, serial_number) is the canonical serial identity of a physical unit
// and is unique across all ingested files. Rows are immutable after ingestion
// except for po_id back-fill by the association resolver.
type ProductItem struct {
	ID                  string         `db:"id" json:"id"`
	FileID              string         `db:"file_id" json:"file_id"`
	GTIN                string         `db:"gtin" json:"gtin"`
	SerialNumber        string         `db:"serial_number" json:"serial_number"`
	LotNumber           *string        `db:"lot_number" json:"lot_number,omitempty"`
	ExpirationDate      *time.Time     `db:"expiration_date" json:"expiration_date,omitempty"`
	EventTime           time.Time      `db:"event_time" json:"event_time"`
	POID                *string        `db:"po_id" json:"po_id,omitempty"`
	SourceLocation      *string        `db:"source_location" json:"source_location,omitempty"`
	DestinationLocation *string        `db:"destination_location" json:"destination_location,omitempty"`
	BizTransactions     pq.StringArray `db:"biz_transactions" json:"biz_transactions,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// ProductItemRepository handles product item persistence
type ProductItemRepository struct {
	db *database.DB
}

// NewProductItemRepository creates a new product item repository
func NewProductItemRepository(db *database.DB) *ProductItemRepository {
	return &ProductItemRepository{db: db}
}

// CreateBatch stores the product items declared by one EPCIS file. The
// external parser deduplicates within a file; units already known from an
// earlier file are skipped, preserving corpus-wide (gtin, serial) uniqueness.
// Returns the number of newly stored items.
func (r *ProductItemRepository) CreateBatch(ctx context.Context, fileID string, items []*ProductItem) (int, error) {
	inserted := 0

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO product_items (
				id, file_id, gtin, serial_number, lot_number, expiration_date,
				event_time, po_id, source_location, destination_location, biz_transactions
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (gtin, serial_number) DO NOTHING
		`

		for _, item := range items {
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.FileID = fileID

			res, err := tx.ExecContext(ctx, query,
				item.ID, item.FileID, item.GTIN, item.SerialNumber, item.LotNumber,
				item.ExpirationDate, item.EventTime, item.POID,
				item.SourceLocation, item.DestinationLocation, item.BizTransactions,
			)
			if err != nil {
				return err
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(rows)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// FindBySGTIN looks up the product item with the given serialized GTIN.
// At most one result exists given the (gtin, serial_number) uniqueness invariant.
func (r *ProductItemRepository) FindBySGTIN(ctx context.Context, gtin, serial string) (*ProductItem, error) {
	var item ProductItem

	query := `
		SELECT id, file_id, gtin, serial_number, lot_number, expiration_date,
		       event_time, po_id, source_location, destination_location,
		       biz_transactions, created_at
		FROM product_items
		WHERE gtin = $1 AND serial_number = $2
	`

	err := r.db.GetContext(ctx, &item, query, gtin, serial)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("product item")
	}
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// FindByLot returns all units sharing a lot for the given GTIN. Used when
// serial-level scanning is unavailable and for recall-style queries.
func (r *ProductItemRepository) FindByLot(ctx context.Context, gtin, lot string) ([]*ProductItem, error) {
	items := []*ProductItem{}

	query := `
		SELECT id, file_id, gtin, serial_number, lot_number, expiration_date,
		       event_time, po_id, source_location, destination_location,
		       biz_transactions, created_at
		FROM product_items
		WHERE gtin = $1 AND lot_number = $2
		ORDER BY serial_number
	`

	if err := r.db.SelectContext(ctx, &items, query, gtin, lot); err != nil {
		return nil, err
	}

	return items, nil
}

// ListByFile returns all product items declared by one EPCIS file.
func (r *ProductItemRepository) ListByFile(ctx context.Context, fileID string) ([]*ProductItem, error) {
	items := []*ProductItem{}

	query := `
		SELECT id, file_id, gtin, serial_number, lot_number, expiration_date,
		       event_time, po_id, source_location, destination_location,
		       biz_transactions, created_at
		FROM product_items
		WHERE file_id = $1
		ORDER BY gtin, serial_number
	`

	if err := r.db.SelectContext(ctx, &items, query, fileID); err != nil {
		return nil, err
	}

	return items, nil
}

// FileIDsByLots returns the distinct EPCIS file ids containing any of the lots.
func (r *ProductItemRepository) FileIDsByLots(ctx context.Context, lots []string) ([]string, error) {
	if len(lots) == 0 {
		return nil, nil
	}

	ids := []string{}
	query := `SELECT DISTINCT file_id FROM product_items WHERE lot_number = ANY($1)`

	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(lots)); err != nil {
		return nil, err
	}

	return ids, nil
}

// FileIDsByGTINs returns the distinct EPCIS file ids containing any of the GTINs.
func (r *ProductItemRepository) FileIDsByGTINs(ctx context.Context, gtins []string) ([]string, error) {
	if len(gtins) == 0 {
		return nil, nil
	}

	ids := []string{}
	query := `SELECT DISTINCT file_id FROM product_items WHERE gtin = ANY($1)`

	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(gtins)); err != nil {
		return nil, err
	}

	return ids, nil
}

// DistinctGTINsByFile returns the distinct GTINs declared by one file.
func (r *ProductItemRepository) DistinctGTINsByFile(ctx context.Context, fileID string) ([]string, error) {
	gtins := []string{}
	query := `SELECT DISTINCT gtin FROM product_items WHERE file_id = $1`

	if err := r.db.SelectContext(ctx, &gtins, query, fileID); err != nil {
		return nil, err
	}

	return gtins, nil
}

// BackfillPO sets po_id on a file's product items that have no PO yet.
// Returns the number of back-filled rows.
func (r *ProductItemRepository) BackfillPO(ctx context.Context, fileID, poID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE product_items SET po_id = $1 WHERE file_id = $2 AND po_id IS NULL`,
		poID, fileID,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
