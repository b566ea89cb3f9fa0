package service_test

import (
	"context"
	"testing"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fileA = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	fileB = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func newResolverService() *service.ResolverService {
	itemRepo := repository.NewProductItemRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	assocRepo := repository.NewAssociationRepository(suite.DB)
	return service.NewResolverService(itemRepo, orderRepo, assocRepo,
		nil, logger.New("test", "test"))
}

func TestResolverService_SearchNoCriteriaReturnsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	// An empty query must never widen into every file.
	suite.SeedProductItems(t, ctx, suite.Fixtures.ProductItem(fileA))

	svc := newResolverService()

	matches, err := svc.Search(ctx, service.SearchCriteria{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestResolverService_SearchUnionOverCriteria(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder(testutil.WithPONumber("PO-SEARCH-1"))
	suite.SeedPurchaseOrder(t, ctx, po, suite.Fixtures.POItem(po.ID))

	// File A carries the PO's GTIN; file B only shares a lot number.
	suite.SeedProductItems(t, ctx,
		suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-SRCH-1"), testutil.WithLot("LOT-SRCH-A")),
		suite.Fixtures.ProductItem(fileB,
			testutil.WithProductGTIN(testutil.TestGTINAlt),
			testutil.WithSerial("SN-SRCH-2"),
			testutil.WithLot("LOT-SRCH-B")),
	)

	svc := newResolverService()

	// PO number alone finds file A through GTIN overlap.
	results, err := svc.Search(ctx, service.SearchCriteria{PONumber: "PO-SEARCH-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fileA, results[0].FileID)
	assert.Equal(t, []string{"po_number"}, results[0].MatchedBy)

	// Adding a lot criterion unions file B in; file A matches more
	// criteria and sorts first.
	results, err = svc.Search(ctx, service.SearchCriteria{
		PONumber:   "PO-SEARCH-1",
		LotNumbers: []string{"LOT-SRCH-A", "LOT-SRCH-B"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, fileA, results[0].FileID)
	assert.ElementsMatch(t, []string{"po_number", "lot_number"}, results[0].MatchedBy)
	assert.Equal(t, fileB, results[1].FileID)
	assert.Equal(t, []string{"lot_number"}, results[1].MatchedBy)
}

func TestResolverService_SearchUnknownPONumberIsNotAnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	suite.SeedProductItems(t, ctx,
		suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-SRCH-3"), testutil.WithLot("LOT-SRCH-C")))

	svc := newResolverService()

	results, err := svc.Search(ctx, service.SearchCriteria{
		PONumber:   "PO-DOES-NOT-EXIST",
		LotNumbers: []string{"LOT-SRCH-C"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fileA, results[0].FileID)
}

func TestResolverService_SearchByInvoiceNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)
	invoice := suite.Fixtures.Invoice(testutil.WithInvoicePO(po.ID))
	suite.SeedInvoice(t, ctx, invoice, testutil.TestGTIN, []string{"LOT-INV-1"})

	suite.SeedProductItems(t, ctx,
		suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-SRCH-4"), testutil.WithLot("LOT-INV-1")))

	svc := newResolverService()

	results, err := svc.Search(ctx, service.SearchCriteria{InvoiceNumber: invoice.InvoiceNumber})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fileA, results[0].FileID)
	assert.Equal(t, []string{"invoice_number"}, results[0].MatchedBy)
}

func TestResolverService_AutoAssociate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	// PO 1 covers both of the file's GTINs, PO 2 only one of them.
	po1 := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po1,
		suite.Fixtures.POItem(po1.ID),
		suite.Fixtures.POItem(po1.ID, testutil.WithPOItemGTIN(testutil.TestGTINAlt)))
	po2 := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po2, suite.Fixtures.POItem(po2.ID))

	suite.SeedProductItems(t, ctx,
		suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-AUTO-1")),
		suite.Fixtures.ProductItem(fileA, testutil.WithProductGTIN(testutil.TestGTINAlt), testutil.WithSerial("SN-AUTO-2")))

	svc := newResolverService()

	associations, err := svc.AutoAssociate(ctx, fileA)
	require.NoError(t, err)
	require.Len(t, associations, 2)

	byPO := map[string]float64{}
	for _, a := range associations {
		byPO[a.PurchaseOrderID] = a.Confidence
		assert.Equal(t, repository.AssociationAuto, a.Method)
	}
	assert.Equal(t, 1.0, byPO[po1.ID])
	assert.Equal(t, 0.5, byPO[po2.ID])

	// The strongest association back-fills po_id on the file's items.
	itemRepo := repository.NewProductItemRepository(suite.DB)
	items, err := itemRepo.ListByFile(ctx, fileA)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.NotNil(t, item.POID)
		assert.Equal(t, po1.ID, *item.POID)
	}
}

func TestResolverService_AutoAssociateBelowThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	// The PO covers one of the file's three GTINs: confidence 1/3.
	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po, suite.Fixtures.POItem(po.ID))

	suite.SeedProductItems(t, ctx,
		suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-THR-1")),
		suite.Fixtures.ProductItem(fileA, testutil.WithProductGTIN(testutil.TestGTINAlt), testutil.WithSerial("SN-THR-2")),
		suite.Fixtures.ProductItem(fileA, testutil.WithProductGTIN("00368000142909"), testutil.WithSerial("SN-THR-3")))

	svc := newResolverService()

	associations, err := svc.AutoAssociate(ctx, fileA)
	require.NoError(t, err)
	assert.Empty(t, associations)
}

func TestResolverService_Confirm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)
	suite.SeedProductItems(t, ctx, suite.Fixtures.ProductItem(fileA, testutil.WithSerial("SN-CONF-1")))

	svc := newResolverService()

	assoc, err := svc.Confirm(ctx, fileA, po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AssociationManual, assoc.Method)
	assert.Equal(t, 1.0, assoc.Confidence)
	require.NotNil(t, assoc.ConfirmedBy)

	items, err := repository.NewProductItemRepository(suite.DB).ListByFile(ctx, fileA)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].POID)
	assert.Equal(t, po.ID, *items[0].POID)
}

func TestResolverService_ConfirmUnknownPO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newResolverService()

	_, err := svc.Confirm(ctx, fileA, "00000000-0000-0000-0000-000000000007")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
