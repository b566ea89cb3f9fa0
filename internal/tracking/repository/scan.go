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

// Scan match status values
const (
	MatchPO          = "MATCH_PO"
	MatchDifferentPO = "MATCH_DIFFERENT_PO"
	MatchNoPO        = "MATCH_NO_PO"
	NoMatch          = "NO_MATCH"
	MatchUnknown     = "UNKNOWN"
)

// Session status values
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// ValidationSession groups the scans of one receiving check against a
// purchase order. The counters are maintained in the same statement batch as
// each scan insert, so total_scanned always equals the sum of the three
// outcome buckets: matched (any MATCH_* status), mismatched (NO_MATCH) and
// unknown (unparseable).
type ValidationSession struct {
	ID              string     `db:"id" json:"id"`
	PurchaseOrderID string     `db:"purchase_order_id" json:"purchase_order_id"`
	FileID          *string    `db:"file_id" json:"file_id,omitempty"`
	Status          string     `db:"status" json:"status"`
	TotalScanned    int        `db:"total_scanned" json:"total_scanned"`
	TotalMatched    int        `db:"total_matched" json:"total_matched"`
	TotalMismatched int        `db:"total_mismatched" json:"total_mismatched"`
	TotalUnknown    int        `db:"total_unknown" json:"total_unknown"`
	StartedBy       string     `db:"started_by" json:"started_by"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ScannedItem is one recorded scan. Every scan is stored, including ones that
// failed to parse.
type ScannedItem struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	RawData       string    `db:"raw_data" json:"raw_data"`
	GTIN          *string   `db:"gtin" json:"gtin,omitempty"`
	SerialNumber  *string   `db:"serial_number" json:"serial_number,omitempty"`
	LotNumber     *string   `db:"lot_number" json:"lot_number,omitempty"`
	MatchStatus   string    `db:"match_status" json:"match_status"`
	MatchedPOID   *string   `db:"matched_po_id" json:"matched_po_id,omitempty"`
	MatchedItemID *string   `db:"matched_item_id" json:"matched_item_id,omitempty"`
	ScannedBy     string    `db:"scanned_by" json:"scanned_by"`
	ScannedAt     time.Time `db:"scanned_at" json:"scanned_at"`
}

// ScanRepository handles validation sessions and scanned items
type ScanRepository struct {
	db *database.DB
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *database.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// CreateSession starts a validation session for a purchase order.
func (r *ScanRepository) CreateSession(ctx context.Context, s *ValidationSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = SessionActive

	query := `
		INSERT INTO validation_sessions (id, purchase_order_id, file_id, status, started_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at
	`

	return r.db.QueryRowxContext(ctx, query,
		s.ID, s.PurchaseOrderID, s.FileID, s.Status, s.StartedBy,
	).Scan(&s.StartedAt)
}

// GetSession gets a validation session by id
func (r *ScanRepository) GetSession(ctx context.Context, id string) (*ValidationSession, error) {
	var s ValidationSession

	err := r.db.GetContext(ctx, &s, `
		SELECT id, purchase_order_id, file_id, status, total_scanned, total_matched,
		       total_mismatched, total_unknown, started_by, started_at, completed_at
		FROM validation_sessions WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("validation session")
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// InsertScanAndCount stores a scan and bumps the session counters in one
// transaction. The bucket column is chosen from the scan's match status.
// Fails if the session is not active.
func (r *ScanRepository) InsertScanAndCount(ctx context.Context, item *ScannedItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	bucket := "total_unknown"
	switch item.MatchStatus {
	case MatchPO, MatchDifferentPO, MatchNoPO:
		bucket = "total_matched"
	case NoMatch:
		bucket = "total_mismatched"
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE validation_sessions
			SET total_scanned = total_scanned + 1, `+bucket+` = `+bucket+` + 1
			WHERE id = $1 AND status = 'active'
		`, item.SessionID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.BadRequest("validation session is not active")
		}

		query := `
			INSERT INTO scanned_items (
				id, session_id, raw_data, gtin, serial_number, lot_number,
				match_status, matched_po_id, matched_item_id, scanned_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING scanned_at
		`

		return tx.QueryRowxContext(ctx, query,
			item.ID, item.SessionID, item.RawData, item.GTIN, item.SerialNumber,
			item.LotNumber, item.MatchStatus, item.MatchedPOID, item.MatchedItemID,
			item.ScannedBy,
		).Scan(&item.ScannedAt)
	})
}

// CompleteSession closes an active session and returns its final state.
func (r *ScanRepository) CompleteSession(ctx context.Context, id string) (*ValidationSession, error) {
	var s ValidationSession

	err := r.db.QueryRowxContext(ctx, `
		UPDATE validation_sessions
		SET status = 'completed', completed_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING id, purchase_order_id, file_id, status, total_scanned, total_matched,
		          total_mismatched, total_unknown, started_by, started_at, completed_at
	`, id).StructScan(&s)
	if err == sql.ErrNoRows {
		existing, getErr := r.GetSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status == SessionCompleted {
			return nil, errors.BadRequest("validation session is already completed")
		}
		return nil, errors.NotFound("validation session")
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// ListScans returns the scans of a session in scan order.
func (r *ScanRepository) ListScans(ctx context.Context, sessionID string) ([]*ScannedItem, error) {
	items := []*ScannedItem{}

	err := r.db.SelectContext(ctx, &items, `
		SELECT id, session_id, raw_data, gtin, serial_number, lot_number,
		       match_status, matched_po_id, matched_item_id, scanned_by, scanned_at
		FROM scanned_items
		WHERE session_id = $1
		ORDER BY scanned_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// ListSessionsByPO returns the validation sessions of a purchase order, most
// recent first.
func (r *ScanRepository) ListSessionsByPO(ctx context.Context, poID string) ([]*ValidationSession, error) {
	sessions := []*ValidationSession{}

	err := r.db.SelectContext(ctx, &sessions, `
		SELECT id, purchase_order_id, file_id, status, total_scanned, total_matched,
		       total_mismatched, total_unknown, started_by, started_at, completed_at
		FROM validation_sessions
		WHERE purchase_order_id = $1
		ORDER BY started_at DESC
	`, poID)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}
