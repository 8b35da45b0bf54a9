package identity_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scope = identity.Scope{RunId: 1, PropertyId: 10}

func TestRecordMappingIsCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	store := identity.NewStore(db)

	require.NoError(t, store.RecordMapping(ctx, scope, models.KindPartner, 7, nil, "Guest without documents"))
	res, err := store.LookupLocal(ctx, scope, models.KindPartner, 7)
	require.NoError(t, err)
	assert.Equal(t, identity.NotFound, res.Status)
	assert.True(t, res.Known, "a null mapping is still a known remote id")

	// a later pass that found a local partner fills the gap
	require.NoError(t, store.RecordMapping(ctx, scope, models.KindPartner, 7, testutil.IntPtr(42), "Guest"))
	// and nothing overwrites an existing local id
	require.NoError(t, store.RecordMapping(ctx, scope, models.KindPartner, 7, testutil.IntPtr(99), "Guest"))

	res, err = store.LookupLocal(ctx, scope, models.KindPartner, 7)
	require.NoError(t, err)
	assert.Equal(t, identity.Found, res.Status)
	assert.Equal(t, 42, res.LocalId)

	var n int64
	require.NoError(t, db.Model(&models.IdentityMapping{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	migrated, err := store.IsMigrated(ctx, scope, models.KindPartner, 7)
	require.NoError(t, err)
	assert.True(t, migrated)

	other := identity.Scope{RunId: 2, PropertyId: 10}
	migrated, err = store.IsMigrated(ctx, other, models.KindPartner, 7)
	require.NoError(t, err)
	assert.False(t, migrated, "mappings belong to their run")
}

func TestEmbeddedKindsUseRemoteIdColumn(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	store := identity.NewStore(db)

	testutil.MustCreate(t, db,
		&models.Folio{PropertyId: 10, RemoteId: testutil.IntPtr(100), Name: "F/100", State: models.ReservationStateConfirm},
		&models.Folio{PropertyId: 11, RemoteId: testutil.IntPtr(101), Name: "F/101", State: models.ReservationStateConfirm},
		&models.Payment{PropertyId: 10, RemoteId: testutil.IntPtr(55), RemoteLeg: models.LegSource, JournalId: 1, PaymentType: models.PaymentTypeInbound, Amount: decimal.NewFromInt(5)},
		&models.StatementLine{PropertyId: 10, StatementId: 1, RemoteId: testutil.IntPtr(56), RemoteLeg: models.LegSource, JournalId: 2, Amount: decimal.NewFromInt(-5)},
		&models.StatementLine{PropertyId: 10, StatementId: 2, RemoteId: testutil.IntPtr(57), RemoteLeg: models.LegDestination, JournalId: 3, Amount: decimal.NewFromInt(5)},
		&models.Payment{PropertyId: 10, RemoteId: testutil.IntPtr(9), RemoteLeg: models.LegReturn, JournalId: 1, PaymentType: models.PaymentTypeOutbound},
	)

	res, err := store.LookupLocal(ctx, scope, models.KindFolio, 100)
	require.NoError(t, err)
	assert.Equal(t, identity.Found, res.Status)

	res, err = store.LookupLocal(ctx, scope, models.KindFolio, 101)
	require.NoError(t, err)
	assert.Equal(t, identity.NotFound, res.Status, "other properties are invisible")

	ids, err := store.MigratedRemoteIds(ctx, scope, models.KindPayment, []int{55, 56, 57, 58})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{55, 56}, ids, "only source legs count as migrated payments")

	ids, err = store.MigratedRemoteIds(ctx, scope, models.KindPaymentReturn, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, ids)

	n, err := store.MigratedCount(ctx, scope, models.KindFolio)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = store.RecordMapping(ctx, scope, models.KindFolio, 100, testutil.IntPtr(1), "F/100")
	assert.Error(t, err, "embedded kinds never get side-table rows")
}

func TestUnmappedCountAndLocalIds(t *testing.T) {
	ctx := context.Background()
	store := identity.NewStore(testutil.OpenDB(t))

	require.NoError(t, store.RecordMapping(ctx, scope, models.KindRoom, 1, testutil.IntPtr(11), "101"))
	require.NoError(t, store.RecordMapping(ctx, scope, models.KindRoom, 2, nil, "102 (Obsoleta)"))
	require.NoError(t, store.RecordKeyedMapping(ctx, scope, models.KindChannelType, "door", 0, testutil.IntPtr(3), "Puerta", nil))

	n, err := store.UnmappedCount(ctx, scope, models.KindRoom)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byRemote, err := store.LocalIdsByRemote(ctx, scope, models.KindRoom)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 11}, byRemote)

	res, err := store.LookupKey(ctx, scope, models.KindChannelType, "door")
	require.NoError(t, err)
	assert.Equal(t, 3, res.LocalId)
}

func TestBatchResolverRemember(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	store := identity.NewStore(db)
	require.NoError(t, store.RecordMapping(ctx, scope, models.KindJournal, 4, testutil.IntPtr(40), "Cash"))

	r := identity.NewBatchResolver(store, scope)
	got, err := r.ResolveMany(ctx, models.KindJournal, []int{4, 5, 0})
	require.NoError(t, err)
	assert.Equal(t, 40, got[4].LocalId)
	assert.Equal(t, identity.NotFound, got[5].Status)
	assert.Equal(t, identity.NotFound, got[0].Status)

	r.Remember(ctx, models.KindJournal, 5, identity.Resolved(50))
	res, err := r.Resolve(ctx, models.KindJournal, 5)
	require.NoError(t, err)
	assert.Equal(t, 50, res.LocalId)
}

func TestFromCandidates(t *testing.T) {
	assert.Equal(t, identity.NotFound, identity.FromCandidates(nil).Status)
	assert.Equal(t, 3, identity.FromCandidates([]int{3}).LocalId)

	amb := identity.FromCandidates([]int{9, 2, 5})
	assert.Equal(t, identity.Ambiguous, amb.Status)
	lowest, ok := amb.Lowest()
	assert.True(t, ok)
	assert.Equal(t, 2, lowest)
	assert.Nil(t, amb.Ptr())
}
