package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"hound-api/internal/database/databasetest"
	"hound-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*LedgerService, *gorm.DB) {
	t.Helper()
	db := databasetest.NewTestDB(t)
	databasetest.SeedFamily(t, db, "family-1", "head-1", "member-1")
	ledger := NewLedgerService(db, "Sandbox", DefaultCatalog(), NewDatabaseFamilyDirectory(db), NewLocalUserLocker())
	return ledger, db
}

func autoRenewing(t *testing.T, ledger *LedgerService, userID string) []string {
	t.Helper()
	rows, err := ledger.GetTransactions(context.Background(), userID)
	require.NoError(t, err)
	var ids []string
	for _, row := range rows {
		if !row.IsRevoked() && row.IsAutoRenewing() {
			ids = append(ids, row.TransactionID)
		}
	}
	return ids
}

func TestLedgerService_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)

	type mutation func(tx *models.JWSTransaction)
	tests := []struct {
		name   string
		userID string
		noTx   bool
		mutate mutation
		kind   ErrorKind
	}{
		{name: "no transaction", userID: "head-1", noTx: true, kind: KindValueMissing},
		{name: "no transaction id", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.TransactionID = "" }, kind: KindValueMissing},
		{name: "no original id", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.OriginalTransactionID = "" }, kind: KindValueMissing},
		{name: "no purchase date", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.PurchaseDate = 0 }, kind: KindValueMissing},
		{name: "no user", userID: "", kind: KindValueMissing},
		{name: "wrong environment", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.Environment = "Production" }, kind: KindEnvironmentMismatch},
		{name: "family shared", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.InAppOwnershipType = "FAMILY_SHARED" }, kind: KindOwnershipTypeInvalid},
		{name: "unknown product", userID: "head-1", mutate: func(tx *models.JWSTransaction) { tx.ProductID = "com.example.coins" }, kind: KindProductUnknown},
		{name: "member is not head", userID: "member-1", kind: KindNotFamilyHead},
		{name: "user without family", userID: "stranger", kind: KindNoFamily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTransaction("1001", "1000", 1_700_000_000_000)
			if tt.mutate != nil {
				tt.mutate(tx)
			}
			if tt.noTx {
				tx = nil
			}
			_, err := ledger.UpsertTransaction(context.Background(), tt.userID, nil, tx)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}

	rows, err := ledger.GetTransactions(context.Background(), "head-1")
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected observations never reach the ledger")
}

func TestLedgerService_FreezesEntitlements(t *testing.T) {
	ledger, _ := newTestLedger(t)

	stored, err := ledger.UpsertTransaction(context.Background(), "head-1", testRenewal("1000", 1), testTransaction("1001", "1000", 1_700_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, 4, stored.NumberOfFamilyMembers)
	assert.Equal(t, 4, stored.NumberOfDogs)
	assert.Equal(t, "head-1", stored.UserID)
	assert.True(t, stored.IsAutoRenewing())
	require.NotNil(t, stored.ExpiresDate)
}

func TestLedgerService_Upgrade(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.UpsertTransaction(ctx, "head-1", testRenewal("1000", 1), testTransaction("1001", "1000", 1_700_000_000_000))
	require.NoError(t, err)

	upgraded := testTransaction("1002", "1000", 1_700_000_100_000)
	upgraded.ProductID = testProduct2ID
	renewal := testRenewal("1000", 1)
	renewal.AutoRenewProductID = &upgraded.ProductID
	_, err = ledger.UpsertTransaction(ctx, "head-1", renewal, upgraded)
	require.NoError(t, err)

	assert.Equal(t, []string{"1002"}, autoRenewing(t, ledger, "head-1"))
	active, err := ledger.GetActiveTransaction(ctx, "head-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, testProduct2ID, active.ProductID)
	assert.Equal(t, 2, active.NumberOfFamilyMembers)
}

func TestLedgerService_Renewal(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.UpsertTransaction(ctx, "head-1", testRenewal("1000", 1), testTransaction("1001", "1000", 1_700_000_000_000))
	require.NoError(t, err)
	_, err = ledger.UpsertTransaction(ctx, "head-1", testRenewal("1000", 1), testTransaction("1001", "1000", 1_700_000_500_000))
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{"1001"}, autoRenewing(t, ledger, "head-1"))
}

func TestLedgerService_RefundFallsBackToPreviousTransaction(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.UpsertTransaction(ctx, "head-1", testRenewal("1000", 1), testTransaction("1001", "1000", 1_700_000_000_000))
	require.NoError(t, err)
	_, err = ledger.UpsertTransaction(ctx, "head-1", testRenewal("1000", 1), testTransaction("1002", "1000", 1_700_000_100_000))
	require.NoError(t, err)

	refunded := testTransaction("1002", "1000", 1_700_000_100_000)
	reason := 1
	refunded.RevocationReason = &reason
	revokedAt := int64(1_700_000_200_000)
	refunded.RevocationDate = &revokedAt
	_, err = ledger.UpsertTransaction(ctx, "head-1", nil, refunded)
	require.NoError(t, err)

	active, err := ledger.GetActiveTransaction(ctx, "head-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1001", active.TransactionID)
}

func TestLedgerService_ConcurrentUpsertsKeepOneActive(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := testTransaction(fmt.Sprintf("20%02d", i), "2000", 1_700_000_000_000+int64(i)*1000)
			_, err := ledger.UpsertTransaction(ctx, "head-1", testRenewal("2000", 1), tx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"2009"}, autoRenewing(t, ledger, "head-1"))
}

func TestLedgerService_FamilyHead(t *testing.T) {
	ledger, _ := newTestLedger(t)

	head, err := ledger.FamilyHead(context.Background(), "member-1")
	require.NoError(t, err)
	assert.Equal(t, "head-1", head)

	_, err = ledger.FamilyHead(context.Background(), "stranger")
	assert.True(t, IsKind(err, KindNoFamily))
}

func TestLedgerService_HasTransaction(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.UpsertTransaction(ctx, "head-1", nil, testTransaction("1001", "1000", 1_700_000_000_000))
	require.NoError(t, err)

	for _, tt := range []struct {
		name   string
		userID string
		id     string
		want   bool
	}{
		{name: "own transaction", userID: "head-1", id: "1001", want: true},
		{name: "own lineage", userID: "head-1", id: "1000", want: true},
		{name: "someone else", userID: "member-1", id: "1001", want: false},
		{name: "unknown", userID: "head-1", id: "4242", want: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.HasTransaction(ctx, tt.userID, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
