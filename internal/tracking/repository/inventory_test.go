package repository_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
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

func strPtr(s string) *string {
	return &s
}

// inTx runs fn inside a committed transaction, failing the test on error.
func inTx(t *testing.T, ctx context.Context, fn func(tx *sqlx.Tx) error) {
	t.Helper()
	require.NoError(t, suite.DB.Transaction(ctx, fn))
}

func createUnit(t *testing.T, ctx context.Context, repo *repository.InventoryRepository, gtin, serial string) *repository.Inventory {
	t.Helper()
	inv := &repository.Inventory{
		GTIN:         gtin,
		SerialNumber: serial,
		LotNumber:    strPtr("LOT2026A"),
		Status:       repository.StatusAvailable,
		Quantity:     1,
	}
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		return repo.CreateTx(ctx, tx, inv)
	})
	return inv
}

func TestInventoryRepository_CreateAndGetBySGTIN(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)

	created := createUnit(t, ctx, repo, testutil.TestGTIN, "SN100001")
	require.NotEmpty(t, created.ID)
	assert.Equal(t, repository.StatusAvailable, created.Status)

	found, err := repo.GetBySGTIN(ctx, testutil.TestGTIN, "SN100001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "LOT2026A", *found.LotNumber)
}

func TestInventoryRepository_CreateDuplicateSerial(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)
	createUnit(t, ctx, repo, testutil.TestGTIN, "SN100002")

	dup := &repository.Inventory{
		GTIN:         testutil.TestGTIN,
		SerialNumber: "SN100002",
		Status:       repository.StatusAvailable,
		Quantity:     1,
	}
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return repo.CreateTx(ctx, tx, dup)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateUnit), "expected duplicate unit error, got %v", err)
}

func TestInventoryRepository_GetBySGTIN_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)

	found, err := repo.GetBySGTIN(ctx, testutil.TestGTIN, "NO-SUCH-SERIAL")
	assert.Nil(t, found)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestInventoryRepository_UpdateStatusGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)
	unit := createUnit(t, ctx, repo, testutil.TestGTIN, "SN100003")

	// Guard matches: one row updated.
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: unit.ID,
			FromStatus:  repository.StatusAvailable,
			ToStatus:    repository.StatusAllocated,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
		return nil
	})

	// Guard stale: no row updated, status untouched.
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: unit.ID,
			FromStatus:  repository.StatusAvailable,
			ToStatus:    repository.StatusDamaged,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)
		return nil
	})

	current, err := repo.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusAllocated, current.Status)
}

func TestInventoryRepository_UpdateStatusClearsSOItem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	so := suite.Fixtures.SalesOrder()
	soItem := suite.Fixtures.SOItem(so.ID)
	suite.SeedSalesOrder(t, ctx, so, soItem)

	repo := repository.NewInventoryRepository(suite.DB)
	unit := createUnit(t, ctx, repo, testutil.TestGTIN, "SN100004")

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: unit.ID,
			FromStatus:  repository.StatusAvailable,
			ToStatus:    repository.StatusAllocated,
			SetSOItem:   &soItem.ID,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), affected)
		return nil
	})

	current, err := repo.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	require.NotNil(t, current.SOItemID)
	assert.Equal(t, soItem.ID, *current.SOItemID)

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: unit.ID,
			FromStatus:  repository.StatusAllocated,
			ToStatus:    repository.StatusDamaged,
			ClearSOItem: true,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), affected)
		return nil
	})

	current, err = repo.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Nil(t, current.SOItemID)
	assert.Equal(t, repository.StatusDamaged, current.Status)
}

func TestInventoryRepository_SelectAvailableFIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)

	// Insert with explicit created_at so the receive order is unambiguous.
	base := time.Now().UTC().Add(-time.Hour)
	serials := []string{"SN-FIFO-3", "SN-FIFO-1", "SN-FIFO-2"}
	offsets := []time.Duration{3 * time.Minute, 1 * time.Minute, 2 * time.Minute}
	for i, serial := range serials {
		_, err := suite.RawDB.ExecContext(ctx,
			`INSERT INTO inventory (gtin, serial_number, status, quantity, created_at)
			 VALUES ($1, $2, 'available', 1, $3)`,
			testutil.TestGTIN, serial, base.Add(offsets[i]))
		require.NoError(t, err)
	}

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		units, err := repo.SelectAvailableForUpdate(ctx, tx, testutil.TestGTIN, 2)
		require.NoError(t, err)
		require.Len(t, units, 2)
		assert.Equal(t, "SN-FIFO-1", units[0].SerialNumber)
		assert.Equal(t, "SN-FIFO-2", units[1].SerialNumber)
		return nil
	})
}

func TestInventoryRepository_CountAvailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)
	createUnit(t, ctx, repo, testutil.TestGTIN, "SN-CNT-1")
	createUnit(t, ctx, repo, testutil.TestGTIN, "SN-CNT-2")
	allocated := createUnit(t, ctx, repo, testutil.TestGTIN, "SN-CNT-3")

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		_, err := repo.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: allocated.ID,
			FromStatus:  repository.StatusAvailable,
			ToStatus:    repository.StatusAllocated,
		})
		return err
	})

	count, err := repo.CountAvailable(ctx, testutil.TestGTIN)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	counts, err := repo.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[repository.StatusAvailable])
	assert.Equal(t, int64(1), counts[repository.StatusAllocated])
}

func TestInventoryRepository_SelectExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewInventoryRepository(suite.DB)

	past := time.Now().UTC().AddDate(0, 0, -1)
	future := time.Now().UTC().AddDate(1, 0, 0)

	expired := &repository.Inventory{
		GTIN:           testutil.TestGTIN,
		SerialNumber:   "SN-EXP-1",
		ExpirationDate: &past,
		Status:         repository.StatusAvailable,
		Quantity:       1,
	}
	fresh := &repository.Inventory{
		GTIN:           testutil.TestGTIN,
		SerialNumber:   "SN-EXP-2",
		ExpirationDate: &future,
		Status:         repository.StatusAvailable,
		Quantity:       1,
	}
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		if err := repo.CreateTx(ctx, tx, expired); err != nil {
			return err
		}
		return repo.CreateTx(ctx, tx, fresh)
	})

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		units, err := repo.SelectExpiredForUpdate(ctx, tx, time.Now().UTC(), 100)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "SN-EXP-1", units[0].SerialNumber)
		return nil
	})
}

func TestTransactionRepository_LedgerOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	invRepo := repository.NewInventoryRepository(suite.DB)
	txRepo := repository.NewTransactionRepository(suite.DB)

	unit := createUnit(t, ctx, invRepo, testutil.TestGTIN, "SN-LEDGER-1")

	from := repository.StatusAvailable
	entries := []*repository.InventoryTransaction{
		{
			InventoryID:     unit.ID,
			TransactionType: repository.TxTypeReceive,
			ToStatus:        repository.StatusAvailable,
			Quantity:        1,
			PerformedBy:     "11111111-1111-1111-1111-111111111111",
		},
		{
			InventoryID:     unit.ID,
			TransactionType: repository.TxTypeAllocation,
			FromStatus:      &from,
			ToStatus:        repository.StatusAllocated,
			Quantity:        1,
			PerformedBy:     "11111111-1111-1111-1111-111111111111",
		},
	}
	for _, entry := range entries {
		inTx(t, ctx, func(tx *sqlx.Tx) error {
			return txRepo.InsertTx(ctx, tx, entry)
		})
		require.NotEmpty(t, entry.ID)
	}

	history, err := txRepo.ListByInventory(ctx, unit.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, repository.TxTypeReceive, history[0].TransactionType)
	assert.Equal(t, repository.TxTypeAllocation, history[1].TransactionType)
	assert.Nil(t, history[0].FromStatus)
	require.NotNil(t, history[1].FromStatus)
	assert.Equal(t, repository.StatusAvailable, *history[1].FromStatus)
}
