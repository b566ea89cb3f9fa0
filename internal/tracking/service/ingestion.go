package service

import (
	"context"
	"time"

	"github.com/pharmtrace/pharmtrace-backend/internal/identity/codec"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/messaging"
)

// IngestionResult summarizes one processed EPCIS file.
type IngestionResult struct {
	FileID       string `json:"file_id"`
	ItemsStored  int    `json:"items_stored"`
	ItemsSkipped int    `json:"items_skipped"`
	Received     int    `json:"received"`
	Associations int    `json:"associations"`
}

// IngestionService turns parsed EPCIS files into product items and inventory.
// The external parser has already validated and deduplicated items within a
// file; cross-file duplicates are skipped here.
type IngestionService struct {
	itemStore ProductItemStore
	ledger    *LedgerService
	resolver  *ResolverService
	logger    *logger.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(itemStore ProductItemStore, ledger *LedgerService, resolver *ResolverService, log *logger.Logger) *IngestionService {
	return &IngestionService{
		itemStore: itemStore,
		ledger:    ledger,
		resolver:  resolver,
		logger:    log,
	}
}

// IngestFile stores a file's product items, receives each new unit into
// inventory and tries to associate the file with purchase orders.
func (s *IngestionService) IngestFile(ctx context.Context, event *messaging.EpcisFileProcessedEvent) (*IngestionResult, error) {
	if event.FileID == "" {
		return nil, errors.BadRequest("file id is required")
	}

	items := make([]*repository.ProductItem, 0, len(event.Items))
	for _, in := range event.Items {
		if !codec.IsGTIN14(in.GTIN) || in.SerialNumber == "" {
			s.logger.Warn().
				Str("file_id", event.FileID).
				Str("gtin", in.GTIN).
				Msg("skipping malformed product item")
			continue
		}

		item := &repository.ProductItem{
			FileID:          event.FileID,
			GTIN:            in.GTIN,
			SerialNumber:    in.SerialNumber,
			EventTime:       in.EventTime,
			BizTransactions: in.BizTransactions,
		}
		if in.LotNumber != "" {
			lot := in.LotNumber
			item.LotNumber = &lot
		}
		if in.ExpirationDate != "" {
			exp, err := time.Parse("2006-01-02", in.ExpirationDate)
			if err != nil {
				s.logger.Warn().
					Str("file_id", event.FileID).
					Str("expiration_date", in.ExpirationDate).
					Msg("skipping unparseable expiration date")
			} else {
				item.ExpirationDate = &exp
			}
		}
		if in.SourceLocation != "" {
			src := in.SourceLocation
			item.SourceLocation = &src
		}
		if in.DestinationLocation != "" {
			dst := in.DestinationLocation
			item.DestinationLocation = &dst
		}

		items = append(items, item)
	}

	stored, err := s.itemStore.CreateBatch(ctx, event.FileID, items)
	if err != nil {
		return nil, err
	}

	result := &IngestionResult{
		FileID:       event.FileID,
		ItemsStored:  stored,
		ItemsSkipped: len(event.Items) - stored,
	}

	for _, item := range items {
		_, err := s.ledger.Receive(ctx, ReceiveCommand{
			GTIN:           item.GTIN,
			SerialNumber:   item.SerialNumber,
			LotNumber:      item.LotNumber,
			ExpirationDate: item.ExpirationDate,
			LocationID:     item.DestinationLocation,
		})
		if errors.Is(err, errors.ErrDuplicateUnit) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Received++
	}

	associations, err := s.resolver.AutoAssociate(ctx, event.FileID)
	if err != nil {
		return nil, err
	}
	result.Associations = len(associations)

	s.logger.Info().
		Str("file_id", event.FileID).
		Int("items_stored", result.ItemsStored).
		Int("received", result.Received).
		Int("associations", result.Associations).
		Msg("epcis file ingested")

	return result, nil
}
