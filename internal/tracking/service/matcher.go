package service

import (
	"context"

	"github.com/pharmtrace/pharmtrace-backend/internal/identity/codec"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// ProductMatch pairs an EPCIS product item with the inventory row created
// from it, when one exists.
type ProductMatch struct {
	ProductItem *repository.ProductItem `json:"product_item"`
	Inventory   *repository.Inventory   `json:"inventory,omitempty"`
}

// MatcherService resolves serialized GTINs and lots to product items and
// inventory. Inputs given as NDC are converted to GTIN-14 before lookup.
type MatcherService struct {
	itemStore ProductItemStore
	invStore  InventoryStore
	logger    *logger.Logger
}

// NewMatcherService creates a new matcher service
func NewMatcherService(itemStore ProductItemStore, invStore InventoryStore, log *logger.Logger) *MatcherService {
	return &MatcherService{
		itemStore: itemStore,
		invStore:  invStore,
		logger:    log,
	}
}

// NormalizeGTIN returns the GTIN-14 form of a GTIN or NDC input.
func NormalizeGTIN(code string) (string, error) {
	if codec.IsGTIN14(code) {
		return code, nil
	}
	gtin, err := codec.NDCToGTIN(code)
	if err != nil {
		return "", errors.InvalidFormat("code must be a 14-digit GTIN or a valid NDC")
	}
	return gtin, nil
}

// FindBySGTIN finds the product item for a serialized GTIN and attaches the
// inventory row if the unit has been received.
func (s *MatcherService) FindBySGTIN(ctx context.Context, code, serial string) (*ProductMatch, error) {
	if serial == "" {
		return nil, errors.InvalidFormat("serial number must not be empty")
	}

	gtin, err := NormalizeGTIN(code)
	if err != nil {
		return nil, err
	}

	item, err := s.itemStore.FindBySGTIN(ctx, gtin, serial)
	if err != nil {
		return nil, err
	}

	match := &ProductMatch{ProductItem: item}

	inv, err := s.invStore.GetBySGTIN(ctx, gtin, serial)
	if err == nil {
		match.Inventory = inv
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	return match, nil
}

// FindByLot finds all product items of a lot for a GTIN or NDC.
func (s *MatcherService) FindByLot(ctx context.Context, code, lot string) ([]*repository.ProductItem, error) {
	if lot == "" {
		return nil, errors.InvalidFormat("lot number must not be empty")
	}

	gtin, err := NormalizeGTIN(code)
	if err != nil {
		return nil, err
	}

	return s.itemStore.FindByLot(ctx, gtin, lot)
}

// ListByFile returns the product items declared by one EPCIS file.
func (s *MatcherService) ListByFile(ctx context.Context, fileID string) ([]*repository.ProductItem, error) {
	return s.itemStore.ListByFile(ctx, fileID)
}
