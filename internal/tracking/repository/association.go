package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// Association method values
const (
	AssociationAuto   = "auto"
	AssociationManual = "manual"
)

// EpcisPoAssociation links an ingested EPCIS file to a purchase order. Auto
// associations carry a confidence score; a manual confirmation overrides the
// score with 1.0.
type EpcisPoAssociation struct {
	ID              string    `db:"id" json:"id"`
	FileID          string    `db:"file_id" json:"file_id"`
	PurchaseOrderID string    `db:"purchase_order_id" json:"purchase_order_id"`
	Method          string    `db:"method" json:"method"`
	Confidence      float64   `db:"confidence" json:"confidence"`
	ConfirmedBy     *string   `db:"confirmed_by" json:"confirmed_by,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AssociationRepository handles EPCIS file to purchase order associations
type AssociationRepository struct {
	db *database.DB
}

// NewAssociationRepository creates a new association repository
func NewAssociationRepository(db *database.DB) *AssociationRepository {
	return &AssociationRepository{db: db}
}

// Upsert records an association. A repeat insert for the same file and order
// keeps the row and raises method and confidence when the new association is
// stronger.
func (r *AssociationRepository) Upsert(ctx context.Context, a *EpcisPoAssociation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO epcis_po_associations (
			id, file_id, purchase_order_id, method, confidence, confirmed_by
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_id, purchase_order_id) DO UPDATE
		SET method = CASE
		        WHEN EXCLUDED.method = 'manual' THEN 'manual'
		        ELSE epcis_po_associations.method
		    END,
		    confidence = GREATEST(epcis_po_associations.confidence, EXCLUDED.confidence),
		    confirmed_by = COALESCE(EXCLUDED.confirmed_by, epcis_po_associations.confirmed_by),
		    updated_at = NOW()
		RETURNING id, method, confidence, created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		a.ID, a.FileID, a.PurchaseOrderID, a.Method, a.Confidence, a.ConfirmedBy,
	).Scan(&a.ID, &a.Method, &a.Confidence, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID gets an association by id
func (r *AssociationRepository) GetByID(ctx context.Context, id string) (*EpcisPoAssociation, error) {
	var a EpcisPoAssociation

	err := r.db.GetContext(ctx, &a, `
		SELECT id, file_id, purchase_order_id, method, confidence, confirmed_by,
		       created_at, updated_at
		FROM epcis_po_associations WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("association")
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// ListByFile returns the associations of an EPCIS file, strongest first.
func (r *AssociationRepository) ListByFile(ctx context.Context, fileID string) ([]*EpcisPoAssociation, error) {
	rows := []*EpcisPoAssociation{}

	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, file_id, purchase_order_id, method, confidence, confirmed_by,
		       created_at, updated_at
		FROM epcis_po_associations
		WHERE file_id = $1
		ORDER BY confidence DESC, created_at
	`, fileID)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ListByPO returns the associations pointing at a purchase order.
func (r *AssociationRepository) ListByPO(ctx context.Context, poID string) ([]*EpcisPoAssociation, error) {
	rows := []*EpcisPoAssociation{}

	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, file_id, purchase_order_id, method, confidence, confirmed_by,
		       created_at, updated_at
		FROM epcis_po_associations
		WHERE purchase_order_id = $1
		ORDER BY confidence DESC, created_at
	`, poID)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// FileIDsByPOs returns the distinct EPCIS file ids associated with any of the
// given purchase orders.
func (r *AssociationRepository) FileIDsByPOs(ctx context.Context, poIDs []string) ([]string, error) {
	if len(poIDs) == 0 {
		return nil, nil
	}

	ids := []string{}

	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT file_id FROM epcis_po_associations
		WHERE purchase_order_id = ANY($1)
	`, pq.Array(poIDs))
	if err != nil {
		return nil, err
	}

	return ids, nil
}
