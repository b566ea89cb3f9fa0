package service_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func newLedgerService() *service.LedgerService {
	invRepo := repository.NewInventoryRepository(suite.DB)
	txRepo := repository.NewTransactionRepository(suite.DB)
	return service.NewLedgerService(invRepo, txRepo, suite.DB,
		nil, // no event publisher needed for these tests
		logger.New("test", "test"))
}

func strPtr(s string) *string {
	return &s
}

func TestLedgerService_ReceiveCreatesLedgerEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{
		GTIN:         testutil.TestGTIN,
		SerialNumber: "SN-RCV-1",
		LotNumber:    strPtr("LOT2026A"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, inv.ID)
	assert.Equal(t, repository.StatusAvailable, inv.Status)
	assert.Equal(t, 1, inv.Quantity)

	history, err := svc.History(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, repository.TxTypeReceive, history[0].TransactionType)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, repository.StatusAvailable, history[0].ToStatus)
}

func TestLedgerService_ReceiveNormalizesNDC(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{
		GTIN:         "00143-0957-01",
		SerialNumber: "SN-NDC-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "03001430957015", inv.GTIN)

	found, err := svc.GetBySGTIN(ctx, "03001430957015", "SN-NDC-1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)
}

func TestLedgerService_ReceiveDuplicateSerial(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	cmd := service.ReceiveCommand{GTIN: testutil.TestGTIN, SerialNumber: "SN-DUP-1"}
	_, err := svc.Receive(ctx, cmd)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateUnit))
}

func TestLedgerService_ReceiveBadIdentifier(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	_, err := svc.Receive(ctx, service.ReceiveCommand{GTIN: "not-a-code", SerialNumber: "SN-BAD-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidFormat))
}

func TestLedgerService_ChangeStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{GTIN: testutil.TestGTIN, SerialNumber: "SN-DMG-1"})
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: inv.ID,
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusDamaged,
		Notes:       "crushed carton on intake",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDamaged, updated.Status)

	history, err := svc.History(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	last := history[1]
	assert.Equal(t, repository.TxTypeStatusChange, last.TransactionType)
	require.NotNil(t, last.FromStatus)
	assert.Equal(t, repository.StatusAvailable, *last.FromStatus)
	assert.Equal(t, repository.StatusDamaged, last.ToStatus)
	require.NotNil(t, last.Notes)
	assert.Equal(t, "crushed carton on intake", *last.Notes)
}

func TestLedgerService_ChangeStatusInvalidTransition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{GTIN: testutil.TestGTIN, SerialNumber: "SN-INV-1"})
	require.NoError(t, err)

	// available cannot go straight to shipped.
	_, err = svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: inv.ID,
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusShipped,
		Notes:       "should not work",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestLedgerService_ChangeStatusStaleGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{GTIN: testutil.TestGTIN, SerialNumber: "SN-STALE-1"})
	require.NoError(t, err)

	// Someone else damages the unit first.
	_, err = svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: inv.ID,
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusDamaged,
		Notes:       "first writer",
	})
	require.NoError(t, err)

	// The stale writer still believes the unit is available.
	_, err = svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: inv.ID,
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusExpired,
		Notes:       "second writer",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConcurrentModification), "expected concurrent modification, got %v", err)

	// Exactly one status_change entry was written.
	history, err := svc.History(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLedgerService_ChangeStatusMissingUnit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	_, err := svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: "00000000-0000-0000-0000-000000000009",
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusDamaged,
		Notes:       "missing",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLedgerService_Transfer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{
		GTIN:         testutil.TestGTIN,
		SerialNumber: "SN-XFER-1",
		LocationID:   strPtr("DOCK-1"),
	})
	require.NoError(t, err)

	moved, err := svc.Transfer(ctx, service.TransferCommand{
		InventoryID: inv.ID,
		LocationID:  strPtr("SHELF-A3"),
	})
	require.NoError(t, err)
	require.NotNil(t, moved.LocationID)
	assert.Equal(t, "SHELF-A3", *moved.LocationID)
	assert.Equal(t, repository.StatusAvailable, moved.Status, "transfer must not change status")

	history, err := svc.History(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, repository.TxTypeTransfer, history[1].TransactionType)

	// The ledger records both ends of the move.
	require.NotNil(t, history[1].FromLocationID)
	assert.Equal(t, "DOCK-1", *history[1].FromLocationID)
	require.NotNil(t, history[1].LocationID)
	assert.Equal(t, "SHELF-A3", *history[1].LocationID)
}

func TestLedgerService_TransferTerminalUnit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	inv, err := svc.Receive(ctx, service.ReceiveCommand{GTIN: testutil.TestGTIN, SerialNumber: "SN-XFER-2"})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, service.StatusChangeCommand{
		InventoryID: inv.ID,
		FromStatus:  repository.StatusAvailable,
		ToStatus:    repository.StatusDamaged,
		Notes:       "dropped",
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, service.TransferCommand{
		InventoryID: inv.ID,
		LocationID:  strPtr("SHELF-B1"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestLedgerService_ListByStatusUnknown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	_, _, err := svc.ListByStatus(ctx, "misplaced", 1, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inventory status")
}

func TestExpirySweeper_SweepOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newLedgerService()

	past := time.Now().UTC().AddDate(0, 0, -3)
	future := time.Now().UTC().AddDate(0, 6, 0)

	stale, err := svc.Receive(ctx, service.ReceiveCommand{
		GTIN:           testutil.TestGTIN,
		SerialNumber:   "SN-SWEEP-1",
		ExpirationDate: &past,
	})
	require.NoError(t, err)
	fresh, err := svc.Receive(ctx, service.ReceiveCommand{
		GTIN:           testutil.TestGTIN,
		SerialNumber:   "SN-SWEEP-2",
		ExpirationDate: &future,
	})
	require.NoError(t, err)

	invRepo := repository.NewInventoryRepository(suite.DB)
	txRepo := repository.NewTransactionRepository(suite.DB)
	sweeper := service.NewExpirySweeper(invRepo, txRepo, suite.DB, nil, time.Hour, logger.New("test", "test"))

	swept, err := sweeper.SweepOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	current, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusExpired, current.Status)

	untouched, err := svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusAvailable, untouched.Status)

	history, err := svc.History(ctx, stale.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, repository.TxTypeStatusChange, history[1].TransactionType)

	// A second sweep finds nothing left to do.
	swept, err = sweeper.SweepOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, swept)
}
