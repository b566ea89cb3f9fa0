package repository_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_FindPOsByItemGTINs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po1 := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po1, suite.Fixtures.POItem(po1.ID))
	po2 := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po2, suite.Fixtures.POItem(po2.ID, testutil.WithPOItemGTIN(testutil.TestGTINAlt)))

	repo := repository.NewOrderRepository(suite.DB)

	poIDs, err := repo.FindPOsByItemGTINs(ctx, []string{testutil.TestGTIN})
	require.NoError(t, err)
	require.Len(t, poIDs, 1)
	assert.Equal(t, po1.ID, poIDs[0])

	poIDs, err = repo.FindPOsByItemGTINs(ctx, []string{testutil.TestGTIN, testutil.TestGTINAlt})
	require.NoError(t, err)
	assert.Len(t, poIDs, 2)

	poIDs, err = repo.FindPOsByItemGTINs(ctx, []string{"00399999123457"})
	require.NoError(t, err)
	assert.Empty(t, poIDs)
}

func TestOrderRepository_FindInvoiceLotsByPO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)

	inv1 := suite.Fixtures.Invoice(testutil.WithInvoicePO(po.ID))
	suite.SeedInvoice(t, ctx, inv1, testutil.TestGTIN, []string{"LOT-A", "LOT-B"})
	inv2 := suite.Fixtures.Invoice(testutil.WithInvoicePO(po.ID))
	suite.SeedInvoice(t, ctx, inv2, testutil.TestGTINAlt, []string{"LOT-B", "LOT-C"})

	repo := repository.NewOrderRepository(suite.DB)

	lots, err := repo.FindInvoiceLotsByPO(ctx, po.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"LOT-A", "LOT-B", "LOT-C"}, lots)
}

func TestOrderRepository_MarkSOItemShipped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	so := suite.Fixtures.SalesOrder()
	item := suite.Fixtures.SOItem(so.ID, testutil.WithSOItemQuantity(2))
	suite.SeedSalesOrder(t, ctx, so, item)

	repo := repository.NewOrderRepository(suite.DB)

	serials := []string{"SN-SHIP-1", "SN-SHIP-2"}
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		if err := repo.MarkSOItemShippedTx(ctx, tx, item.ID, serials); err != nil {
			return err
		}
		shippedAt, err := repo.MarkSOShippedTx(ctx, tx, so.ID)
		require.NoError(t, err)
		assert.False(t, shippedAt.IsZero())
		return nil
	})

	shipped, err := repo.GetSOItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusShipped, shipped.Status)
	assert.Equal(t, 2, shipped.QuantityShipped)
	assert.Equal(t, serials, []string(shipped.SerialNumbersShipped))

	order, err := repo.GetSOByID(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusShipped, order.Status)
	assert.NotNil(t, order.ShippedDate)
}
