package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/adapters/storage"
	"loyalty/internal/adapters/storage/storagetest"
	domain "loyalty/internal/domain/transaction"
)

func newTxn(id, brandID, ref string, amount string) domain.Transaction {
	now := time.Now()
	amt := decimal.RequireFromString(amount)
	return domain.Transaction{
		ID:             id,
		BrandID:        brandID,
		MemberID:       "m-" + brandID,
		ReferenceID:    ref,
		ExternalUserID: "u1",
		Type:           "deposit",
		Direction:      domain.DirectionFor(amt),
		Amount:         amt,
		Status:         "pending",
		Details:        `{"remark":"first"}`,
		RawData:        `{"id":"` + ref + `"}`,
		CreatedAt:      now.Add(-time.Minute),
		SyncedAt:       now,
		UpdatedAt:      now,
	}
}

func setup(t *testing.T) (*SQLiteStore, context.Context) {
	t.Helper()
	db := storagetest.Open(t)
	for _, b := range []string{"b1", "b2"} {
		storagetest.InsertBrand(t, db, b)
		storagetest.InsertMember(t, db, "m-"+b, b, "u1")
	}
	return NewSQLiteStore(db), context.Background()
}

func TestSQLiteStore_CreateIfAbsentIsIdempotent(t *testing.T) {
	store, ctx := setup(t)

	created, err := store.CreateIfAbsent(ctx, newTxn("t1", "b1", "REF-1", "100.50"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, newTxn("t2", "b1", "REF-1", "999"))
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.GetByReference(ctx, "b1", "REF-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100.5")), "original amount kept")
	assert.Equal(t, domain.DirectionCredit, got.Direction)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.ProcessedAt.IsZero())

	// Reference ids are scoped per brand.
	created, err = store.CreateIfAbsent(ctx, newTxn("t3", "b2", "REF-1", "5"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSQLiteStore_UpdateMetadata(t *testing.T) {
	store, ctx := setup(t)
	_, err := store.CreateIfAbsent(ctx, newTxn("t1", "b1", "REF-1", "-20"))
	require.NoError(t, err)

	changed := newTxn("ignored", "b1", "REF-1", "777")
	changed.Status = "approved"
	changed.Description = "settled"
	changed.ProcessedAt = time.Now()
	require.NoError(t, store.UpdateMetadata(ctx, changed))

	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Status)
	assert.Equal(t, "settled", got.Description)
	assert.False(t, got.ProcessedAt.IsZero())
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(-20)), "amount is immutable")
	assert.Equal(t, domain.DirectionDebit, got.Direction)

	missing := newTxn("x", "b1", "NOPE", "1")
	assert.ErrorIs(t, store.UpdateMetadata(ctx, missing), storage.ErrNotFound)
}

func TestSQLiteStore_ListByMember(t *testing.T) {
	store, ctx := setup(t)
	first := newTxn("t1", "b1", "REF-1", "1")
	second := newTxn("t2", "b1", "REF-2", "2")
	second.SyncedAt = first.SyncedAt.Add(time.Second)
	_, err := store.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	_, err = store.CreateIfAbsent(ctx, second)
	require.NoError(t, err)

	list, err := store.ListByMember(ctx, "m-b1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "REF-2", list[0].ReferenceID)

	list, err = store.ListByMember(ctx, "m-b1", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
