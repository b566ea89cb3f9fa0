package service

import (
	"context"
	"sort"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// autoAssociateMinConfidence is the GTIN overlap ratio below which an
// automatic association is not recorded.
const autoAssociateMinConfidence = 0.5

// SearchCriteria selects EPCIS files. Criteria combine as a union: a file
// matching any one of them is included.
type SearchCriteria struct {
	PONumber      string   `json:"po_number,omitempty"`
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	LotNumbers    []string `json:"lot_numbers,omitempty" validate:"omitempty,dive,min=1"`
	GTIN          string   `json:"gtin,omitempty"`
}

// FileMatch is one EPCIS file found by a search, with the criteria that
// selected it.
type FileMatch struct {
	FileID    string   `json:"file_id"`
	MatchedBy []string `json:"matched_by"`
}

// ResolverService links EPCIS files to purchase orders, both by explicit
// search and by automatic association when a file is ingested.
type ResolverService struct {
	itemStore  ProductItemStore
	orderStore OrderStore
	assocStore AssociationStore
	publisher  *events.TrackingEventPublisher
	logger     *logger.Logger
}

// NewResolverService creates a new resolver service
func NewResolverService(
	itemStore ProductItemStore,
	orderStore OrderStore,
	assocStore AssociationStore,
	publisher *events.TrackingEventPublisher,
	log *logger.Logger,
) *ResolverService {
	return &ResolverService{
		itemStore:  itemStore,
		orderStore: orderStore,
		assocStore: assocStore,
		publisher:  publisher,
		logger:     log,
	}
}

// Search returns the union of files matching any of the criteria. A criterion
// that resolves to nothing contributes an empty set rather than an error, so
// standalone lot or GTIN hits still surface when the named PO is unknown. With
// no criteria at all the result is empty, never every file.
func (s *ResolverService) Search(ctx context.Context, criteria SearchCriteria) ([]*FileMatch, error) {
	if criteria.PONumber == "" && criteria.InvoiceNumber == "" &&
		len(criteria.LotNumbers) == 0 && criteria.GTIN == "" {
		return []*FileMatch{}, nil
	}

	matches := map[string]*FileMatch{}
	add := func(fileIDs []string, criterion string) {
		for _, id := range fileIDs {
			m, ok := matches[id]
			if !ok {
				m = &FileMatch{FileID: id}
				matches[id] = m
			}
			seen := false
			for _, existing := range m.MatchedBy {
				if existing == criterion {
					seen = true
					break
				}
			}
			if !seen {
				m.MatchedBy = append(m.MatchedBy, criterion)
			}
		}
	}

	if criteria.PONumber != "" {
		fileIDs, err := s.filesForPONumber(ctx, criteria.PONumber)
		if err != nil {
			return nil, err
		}
		add(fileIDs, "po_number")
	}

	if criteria.InvoiceNumber != "" {
		fileIDs, err := s.filesForInvoiceNumber(ctx, criteria.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		add(fileIDs, "invoice_number")
	}

	if len(criteria.LotNumbers) > 0 {
		fileIDs, err := s.itemStore.FileIDsByLots(ctx, criteria.LotNumbers)
		if err != nil {
			return nil, err
		}
		add(fileIDs, "lot_number")
	}

	if criteria.GTIN != "" {
		gtin, err := NormalizeGTIN(criteria.GTIN)
		if err != nil {
			return nil, err
		}
		fileIDs, err := s.itemStore.FileIDsByGTINs(ctx, []string{gtin})
		if err != nil {
			return nil, err
		}
		add(fileIDs, "gtin")
	}

	results := make([]*FileMatch, 0, len(matches))
	for _, m := range matches {
		results = append(results, m)
	}
	sort.Slice(results, func(i, j int) bool {
		if len(results[i].MatchedBy) != len(results[j].MatchedBy) {
			return len(results[i].MatchedBy) > len(results[j].MatchedBy)
		}
		return results[i].FileID < results[j].FileID
	})

	return results, nil
}

// filesForPONumber resolves a PO number to file ids through confirmed
// associations first, then through line item GTIN overlap.
func (s *ResolverService) filesForPONumber(ctx context.Context, poNumber string) ([]string, error) {
	po, err := s.orderStore.GetPOByNumber(ctx, poNumber)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.filesForPO(ctx, po.ID)
}

func (s *ResolverService) filesForPO(ctx context.Context, poID string) ([]string, error) {
	fileIDs, err := s.assocStore.FileIDsByPOs(ctx, []string{poID})
	if err != nil {
		return nil, err
	}

	gtins, err := s.orderStore.ListPOItemGTINs(ctx, poID)
	if err != nil {
		return nil, err
	}
	if len(gtins) > 0 {
		byGTIN, err := s.itemStore.FileIDsByGTINs(ctx, gtins)
		if err != nil {
			return nil, err
		}
		fileIDs = union(fileIDs, byGTIN)
	}

	return fileIDs, nil
}

// filesForInvoiceNumber resolves an invoice to file ids through its purchase
// order and through the lot numbers on its line items.
func (s *ResolverService) filesForInvoiceNumber(ctx context.Context, invoiceNumber string) ([]string, error) {
	invoice, err := s.orderStore.GetInvoiceByNumber(ctx, invoiceNumber)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var fileIDs []string

	if invoice.PurchaseOrderID != nil {
		byPO, err := s.filesForPO(ctx, *invoice.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		fileIDs = byPO
	}

	items, err := s.orderStore.ListInvoiceItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	var lots []string
	for _, item := range items {
		lots = append(lots, item.LotNumbers...)
	}
	if len(lots) > 0 {
		byLot, err := s.itemStore.FileIDsByLots(ctx, lots)
		if err != nil {
			return nil, err
		}
		fileIDs = union(fileIDs, byLot)
	}

	return fileIDs, nil
}

// AutoAssociate tries to link a freshly ingested file to purchase orders by
// GTIN overlap. Confidence is the share of the file's GTINs found on the PO;
// the strongest association back-fills po_id on the file's product items.
func (s *ResolverService) AutoAssociate(ctx context.Context, fileID string) ([]*repository.EpcisPoAssociation, error) {
	fileGTINs, err := s.itemStore.DistinctGTINsByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(fileGTINs) == 0 {
		return nil, nil
	}

	poIDs, err := s.orderStore.FindPOsByItemGTINs(ctx, fileGTINs)
	if err != nil {
		return nil, err
	}

	var associations []*repository.EpcisPoAssociation
	var best *repository.EpcisPoAssociation

	for _, poID := range poIDs {
		poGTINs, err := s.orderStore.ListPOItemGTINs(ctx, poID)
		if err != nil {
			return nil, err
		}

		onPO := map[string]bool{}
		for _, g := range poGTINs {
			onPO[g] = true
		}
		overlap := 0
		for _, g := range fileGTINs {
			if onPO[g] {
				overlap++
			}
		}

		confidence := float64(overlap) / float64(len(fileGTINs))
		if confidence < autoAssociateMinConfidence {
			continue
		}

		assoc := &repository.EpcisPoAssociation{
			FileID:          fileID,
			PurchaseOrderID: poID,
			Method:          repository.AssociationAuto,
			Confidence:      confidence,
		}
		if err := s.assocStore.Upsert(ctx, assoc); err != nil {
			return nil, err
		}
		associations = append(associations, assoc)

		if best == nil || assoc.Confidence > best.Confidence {
			best = assoc
		}

		s.publisher.PublishFileAssociated(ctx, assoc)
	}

	if best != nil {
		backfilled, err := s.itemStore.BackfillPO(ctx, fileID, best.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("file_id", fileID).
			Str("po_id", best.PurchaseOrderID).
			Float64("confidence", best.Confidence).
			Int64("items_backfilled", backfilled).
			Msg("epcis file auto-associated")
	}

	return associations, nil
}

// Confirm records a manual association between a file and a purchase order
// and back-fills the file's product items.
func (s *ResolverService) Confirm(ctx context.Context, fileID, poID string) (*repository.EpcisPoAssociation, error) {
	if _, err := s.orderStore.GetPOByID(ctx, poID); err != nil {
		return nil, err
	}

	confirmedBy := actor.ID(ctx)
	assoc := &repository.EpcisPoAssociation{
		FileID:          fileID,
		PurchaseOrderID: poID,
		Method:          repository.AssociationManual,
		Confidence:      1.0,
		ConfirmedBy:     &confirmedBy,
	}
	if err := s.assocStore.Upsert(ctx, assoc); err != nil {
		return nil, err
	}

	if _, err := s.itemStore.BackfillPO(ctx, fileID, poID); err != nil {
		return nil, err
	}

	s.publisher.PublishFileAssociated(ctx, assoc)

	return assoc, nil
}

// ListByFile returns the associations of a file.
func (s *ResolverService) ListByFile(ctx context.Context, fileID string) ([]*repository.EpcisPoAssociation, error) {
	return s.assocStore.ListByFile(ctx, fileID)
}

// ListByPO returns the associations of a purchase order.
func (s *ResolverService) ListByPO(ctx context.Context, poID string) ([]*repository.EpcisPoAssociation, error) {
	return s.assocStore.ListByPO(ctx, poID)
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
