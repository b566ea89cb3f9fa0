package repository_test

import (
	"context"
	"testing"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testActorID = "11111111-1111-1111-1111-111111111111"

func createSession(t *testing.T, ctx context.Context, repo *repository.ScanRepository, poID string) *repository.ValidationSession {
	t.Helper()
	session := &repository.ValidationSession{
		PurchaseOrderID: poID,
		Status:          repository.SessionActive,
		StartedBy:       testActorID,
	}
	require.NoError(t, repo.CreateSession(ctx, session))
	require.NotEmpty(t, session.ID)
	return session
}

func recordScan(t *testing.T, ctx context.Context, repo *repository.ScanRepository, sessionID, matchStatus string) {
	t.Helper()
	scan := &repository.ScannedItem{
		SessionID:   sessionID,
		RawData:     "0100300143095704" + "21SN-SCAN",
		MatchStatus: matchStatus,
		ScannedBy:   testActorID,
	}
	require.NoError(t, repo.InsertScanAndCount(ctx, scan))
	require.NotEmpty(t, scan.ID)
}

func TestScanRepository_CountersPerBucket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)

	repo := repository.NewScanRepository(suite.DB)
	session := createSession(t, ctx, repo, po.ID)

	recordScan(t, ctx, repo, session.ID, repository.MatchPO)
	recordScan(t, ctx, repo, session.ID, repository.MatchPO)
	recordScan(t, ctx, repo, session.ID, repository.MatchDifferentPO)
	recordScan(t, ctx, repo, session.ID, repository.MatchNoPO)
	recordScan(t, ctx, repo, session.ID, repository.NoMatch)
	recordScan(t, ctx, repo, session.ID, repository.MatchUnknown)

	current, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, current.TotalScanned)
	assert.Equal(t, 4, current.TotalMatched)
	assert.Equal(t, 1, current.TotalMismatched)
	assert.Equal(t, 1, current.TotalUnknown)
	assert.Equal(t, current.TotalScanned,
		current.TotalMatched+current.TotalMismatched+current.TotalUnknown)
}

func TestScanRepository_ScanIntoCompletedSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)

	repo := repository.NewScanRepository(suite.DB)
	session := createSession(t, ctx, repo, po.ID)

	completed, err := repo.CompleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	scan := &repository.ScannedItem{
		SessionID:   session.ID,
		RawData:     "garbage",
		MatchStatus: repository.MatchUnknown,
		ScannedBy:   testActorID,
	}
	err = repo.InsertScanAndCount(ctx, scan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")

	// The rejected scan must not leak into the session.
	scans, err := repo.ListScans(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, scans)
}

func TestScanRepository_CompleteTwice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)

	repo := repository.NewScanRepository(suite.DB)
	session := createSession(t, ctx, repo, po.ID)

	_, err := repo.CompleteSession(ctx, session.ID)
	require.NoError(t, err)

	_, err = repo.CompleteSession(ctx, session.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
}

func TestScanRepository_CompleteMissingSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewScanRepository(suite.DB)

	_, err := repo.CompleteSession(ctx, "00000000-0000-0000-0000-000000000001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAssociationRepository_UpsertManualWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po)

	repo := repository.NewAssociationRepository(suite.DB)
	fileID := "22222222-2222-2222-2222-222222222222"

	auto := &repository.EpcisPoAssociation{
		FileID:          fileID,
		PurchaseOrderID: po.ID,
		Method:          repository.AssociationAuto,
		Confidence:      0.6,
	}
	require.NoError(t, repo.Upsert(ctx, auto))

	confirmedBy := testActorID
	manual := &repository.EpcisPoAssociation{
		FileID:          fileID,
		PurchaseOrderID: po.ID,
		Method:          repository.AssociationManual,
		Confidence:      1.0,
		ConfirmedBy:     &confirmedBy,
	}
	require.NoError(t, repo.Upsert(ctx, manual))
	assert.Equal(t, auto.ID, manual.ID, "upsert must reuse the existing row")

	// A later, weaker auto pass must not downgrade the manual confirmation.
	weaker := &repository.EpcisPoAssociation{
		FileID:          fileID,
		PurchaseOrderID: po.ID,
		Method:          repository.AssociationAuto,
		Confidence:      0.5,
	}
	require.NoError(t, repo.Upsert(ctx, weaker))
	assert.Equal(t, repository.AssociationManual, weaker.Method)
	assert.Equal(t, 1.0, weaker.Confidence)
	require.NotNil(t, weaker.ConfirmedBy)
	assert.Equal(t, testActorID, *weaker.ConfirmedBy)
}

func TestAssociationRepository_ListByFileOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	po1 := suite.Fixtures.PurchaseOrder()
	po2 := suite.Fixtures.PurchaseOrder()
	suite.SeedPurchaseOrder(t, ctx, po1)
	suite.SeedPurchaseOrder(t, ctx, po2)

	repo := repository.NewAssociationRepository(suite.DB)
	fileID := "33333333-3333-3333-3333-333333333333"

	require.NoError(t, repo.Upsert(ctx, &repository.EpcisPoAssociation{
		FileID: fileID, PurchaseOrderID: po1.ID, Method: repository.AssociationAuto, Confidence: 0.5,
	}))
	require.NoError(t, repo.Upsert(ctx, &repository.EpcisPoAssociation{
		FileID: fileID, PurchaseOrderID: po2.ID, Method: repository.AssociationAuto, Confidence: 0.9,
	}))

	associations, err := repo.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, associations, 2)
	assert.Equal(t, po2.ID, associations[0].PurchaseOrderID, "strongest association first")
}
