package service

import (
	"context"

	"github.com/pharmtrace/pharmtrace-backend/internal/identity/gs1"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// ScanCommand records one barcode scan against a session.
type ScanCommand struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	RawData   string `json:"raw_data" validate:"required"`
}

// ScanResult is the classified outcome of one scan.
type ScanResult struct {
	Scan    *repository.ScannedItem       `json:"scan"`
	Session *repository.ValidationSession `json:"session"`
}

// ReconciliationService classifies scanned barcodes against a validation
// session's purchase order. Every scan is recorded, parseable or not, and the
// session counters move with the scan in one atomic step.
type ReconciliationService struct {
	scanStore  ScanStore
	itemStore  ProductItemStore
	orderStore OrderStore
	assocStore AssociationStore
	publisher  *events.TrackingEventPublisher
	logger     *logger.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	scanStore ScanStore,
	itemStore ProductItemStore,
	orderStore OrderStore,
	assocStore AssociationStore,
	publisher *events.TrackingEventPublisher,
	log *logger.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		scanStore:  scanStore,
		itemStore:  itemStore,
		orderStore: orderStore,
		assocStore: assocStore,
		publisher:  publisher,
		logger:     log,
	}
}

// StartSession opens a validation session for a purchase order, optionally
// pinned to one EPCIS file.
func (s *ReconciliationService) StartSession(ctx context.Context, poID string, fileID *string) (*repository.ValidationSession, error) {
	if _, err := s.orderStore.GetPOByID(ctx, poID); err != nil {
		return nil, err
	}

	session := &repository.ValidationSession{
		PurchaseOrderID: poID,
		FileID:          fileID,
		StartedBy:       actor.ID(ctx),
	}
	if err := s.scanStore.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("po_id", poID).
		Msg("validation session started")

	return session, nil
}

// RecordScan parses, classifies and stores one scan. Classification:
//
//	UNKNOWN            the barcode did not parse to a GTIN and serial
//	NO_MATCH           no product item is known for the serialized GTIN
//	MATCH_PO           the item's file is associated with the session's PO
//	MATCH_DIFFERENT_PO the item's file is associated with another PO
//	MATCH_NO_PO        the item exists but no PO association is known
func (s *ReconciliationService) RecordScan(ctx context.Context, cmd ScanCommand) (*ScanResult, error) {
	session, err := s.scanStore.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != repository.SessionActive {
		return nil, errors.BadRequest("validation session is not active")
	}

	scan := &repository.ScannedItem{
		SessionID: session.ID,
		RawData:   cmd.RawData,
		ScannedBy: actor.ID(ctx),
	}

	parsed, parseErr := gs1.Parse(cmd.RawData)
	if parseErr != nil || parsed.GTIN == "" || parsed.SerialNumber == "" {
		scan.MatchStatus = repository.MatchUnknown
	} else {
		gtin := parsed.GTIN
		serial := parsed.SerialNumber
		scan.GTIN = &gtin
		scan.SerialNumber = &serial
		if parsed.LotNumber != "" {
			lot := parsed.LotNumber
			scan.LotNumber = &lot
		}

		status, matchedPO, matchedItem, err := s.classify(ctx, session, gtin, serial)
		if err != nil {
			return nil, err
		}
		scan.MatchStatus = status
		scan.MatchedPOID = matchedPO
		scan.MatchedItemID = matchedItem
	}

	if err := s.scanStore.InsertScanAndCount(ctx, scan); err != nil {
		return nil, err
	}

	s.publisher.PublishScanRecorded(ctx, scan)

	session, err = s.scanStore.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}

	return &ScanResult{Scan: scan, Session: session}, nil
}

// classify resolves a serialized GTIN to its product item and compares PO
// associations against the session's purchase order. It returns the match
// status plus the matched PO and product item ids where known.
func (s *ReconciliationService) classify(ctx context.Context, session *repository.ValidationSession, gtin, serial string) (string, *string, *string, error) {
	item, err := s.itemStore.FindBySGTIN(ctx, gtin, serial)
	if errors.Is(err, errors.ErrNotFound) {
		return repository.NoMatch, nil, nil, nil
	}
	if err != nil {
		return "", nil, nil, err
	}

	// A back-filled po_id on the item is the strongest signal.
	if item.POID != nil {
		if *item.POID == session.PurchaseOrderID {
			return repository.MatchPO, item.POID, &item.ID, nil
		}
		return repository.MatchDifferentPO, item.POID, &item.ID, nil
	}

	associations, err := s.assocStore.ListByFile(ctx, item.FileID)
	if err != nil {
		return "", nil, nil, err
	}
	if len(associations) == 0 {
		return repository.MatchNoPO, nil, &item.ID, nil
	}

	for _, assoc := range associations {
		if assoc.PurchaseOrderID == session.PurchaseOrderID {
			poID := assoc.PurchaseOrderID
			return repository.MatchPO, &poID, &item.ID, nil
		}
	}

	// Associations are ordered strongest first.
	poID := associations[0].PurchaseOrderID
	return repository.MatchDifferentPO, &poID, &item.ID, nil
}

// CompleteSession closes a session and publishes its final counters.
func (s *ReconciliationService) CompleteSession(ctx context.Context, sessionID string) (*repository.ValidationSession, error) {
	session, err := s.scanStore.CompleteSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishSessionCompleted(ctx, session)

	s.logger.Info().
		Str("session_id", session.ID).
		Int("total_scanned", session.TotalScanned).
		Int("total_matched", session.TotalMatched).
		Int("total_mismatched", session.TotalMismatched).
		Int("total_unknown", session.TotalUnknown).
		Msg("validation session completed")

	return session, nil
}

// GetSession returns one session.
func (s *ReconciliationService) GetSession(ctx context.Context, sessionID string) (*repository.ValidationSession, error) {
	return s.scanStore.GetSession(ctx, sessionID)
}

// ListScans returns a session's scans in scan order.
func (s *ReconciliationService) ListScans(ctx context.Context, sessionID string) ([]*repository.ScannedItem, error) {
	if _, err := s.scanStore.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.scanStore.ListScans(ctx, sessionID)
}

// ListSessionsByPO returns the sessions opened against a purchase order.
func (s *ReconciliationService) ListSessionsByPO(ctx context.Context, poID string) ([]*repository.ValidationSession, error) {
	return s.scanStore.ListSessionsByPO(ctx, poID)
}
