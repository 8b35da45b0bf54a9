package migration_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/migration"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func mappingOf(t *testing.T, db *gorm.DB, runId int, kind models.EntityKind, key string) models.IdentityMapping {
	t.Helper()
	var m models.IdentityMapping
	require.NoError(t, db.Where("run_id = ? AND kind = ? AND remote_key = ?", runId, kind, key).Take(&m).Error,
		"mapping %s/%s", kind, key)
	return m
}

func TestImportUsersMapsSuperuserToBackendUser(t *testing.T) {
	ctx := context.Background()
	backend := models.User{Login: "__system__", Name: "Backend"}
	f := newFixture(t)
	testutil.MustCreate(t, f.db, &backend, &models.User{Login: "reception@hotel.es", Name: "Reception"})
	f.run.BackendUserId = &backend.ID
	require.NoError(t, f.db.Model(&f.run).Update("backend_user_id", backend.ID).Error)

	f.reader.
		add("res.users", map[string]any{"id": 1, "login": "admin", "active": true}).
		add("res.users", map[string]any{"id": 5, "login": "reception@hotel.es", "active": true}).
		add("res.users", map[string]any{"id": 6, "login": "former@hotel.es", "active": false}).
		add("res.users", map[string]any{"id": 7, "login": "public", "active": false})

	p, err := f.engine().ImportUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReported, p.Phase)
	assert.Equal(t, 3, p.Migrated)
	assert.Equal(t, 1, p.Skipped, "template logins are skipped")
	assert.Equal(t, 1, p.UnmappedLocal)

	admin := mappingOf(t, f.db, f.run.ID, models.KindUser, "1")
	require.NotNil(t, admin.LocalId)
	assert.Equal(t, backend.ID, *admin.LocalId)

	reception := mappingOf(t, f.db, f.run.ID, models.KindUser, "5")
	require.NotNil(t, reception.LocalId)
	assert.Equal(t, "reception@hotel.es", reception.RemoteName)

	assert.Nil(t, mappingOf(t, f.db, f.run.ID, models.KindUser, "6").LocalId)
}

func TestImportPricelistsMarksInactiveAsObsolete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	public := models.Pricelist{Name: "Public"}
	testutil.MustCreate(t, f.db, &public)
	f.reader.
		add("product.pricelist", map[string]any{"id": 3, "name": "Public", "active": true}).
		add("product.pricelist", map[string]any{"id": 4, "name": "Winter 2019", "active": false})

	e := f.engine()
	p, err := e.ImportPricelists(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Migrated)

	m := mappingOf(t, f.db, f.run.ID, models.KindPricelist, "3")
	require.NotNil(t, m.LocalId)
	assert.Equal(t, public.ID, *m.LocalId)

	old := mappingOf(t, f.db, f.run.ID, models.KindPricelist, "4")
	assert.Nil(t, old.LocalId)
	assert.Equal(t, "Winter 2019 (Obsoleta)", old.RemoteName)

	// a second import leaves existing mappings alone
	p, err = e.ImportPricelists(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Migrated)
	assert.Equal(t, 2, p.Skipped)
}

func TestImportRoomTypesRequiresClasses(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().ImportRoomTypes(context.Background())
	require.ErrorIs(t, err, migration.ErrRoomTypeClassesMissing)
	assert.Equal(t, 422, migration.StatusFor(err))
}

func TestImportRoomsMatchesByNumberAndCreatesMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(run *models.MigrationRun) { run.AutoCreateRooms = true })

	class := models.RoomTypeClass{Name: "Estandar", DefaultCode: "STD"}
	testutil.MustCreate(t, f.db, &class)
	double := models.RoomType{Name: "Doble", DefaultCode: "DBL", ClassId: &class.ID}
	testutil.MustCreate(t, f.db, &double)
	room101 := models.Room{PropertyId: testPropertyId, Name: "101", RoomTypeId: double.ID}
	otherHotel := models.Room{PropertyId: testPropertyId + 1, Name: "102", RoomTypeId: double.ID}
	testutil.MustCreate(t, f.db, &room101, &otherHotel)

	f.reader.
		add("hotel.room.type.class", map[string]any{"id": 10, "name": "Standard", "code_class": "STD", "active": true}).
		add("hotel.room.type", map[string]any{"id": 20, "name": "Double Room", "code_type": "DBL", "class_id": m2o(10, "Standard"), "active": true}).
		add("hotel.room", map[string]any{"id": 30, "name": "Room 101", "room_type_id": m2o(20, "Double Room"), "capacity": 2, "active": true}).
		add("hotel.room", map[string]any{"id": 31, "name": "Hab 102", "room_type_id": m2o(20, "Double Room"), "capacity": 2, "active": false}).
		add("hotel.room", map[string]any{"id": 32, "name": "Suite", "room_type_id": m2o(99, "Suite"), "active": true})

	e := f.engine()
	_, err := e.ImportRoomTypeClasses(ctx)
	require.NoError(t, err)
	_, err = e.ImportRoomTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, double.ID, *mappingOf(t, f.db, f.run.ID, models.KindRoomType, "20").LocalId)

	p, err := e.ImportRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Migrated)
	assert.Equal(t, 1, p.Failed)

	assert.Equal(t, room101.ID, *mappingOf(t, f.db, f.run.ID, models.KindRoom, "30").LocalId)

	created := mappingOf(t, f.db, f.run.ID, models.KindRoom, "31")
	require.NotNil(t, created.LocalId)
	assert.NotEqual(t, otherHotel.ID, *created.LocalId, "rooms of other properties never match")
	assert.Equal(t, "Hab 102 (Obsoleta)", created.RemoteName)
	var room models.Room
	require.NoError(t, f.db.Take(&room, *created.LocalId).Error)
	assert.Equal(t, "102", room.Name)
	assert.Equal(t, testPropertyId, room.PropertyId)
	assert.False(t, room.Active)

	var logs []models.MigrationLog
	require.NoError(t, f.db.Where("run_id = ? AND kind = ?", f.run.ID, models.KindRoom).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, 32, logs[0].RemoteId)
	assert.Equal(t, models.LogSeverityError, logs[0].Severity)
}

func TestImportProductsSkipsRoomProducts(t *testing.T) {
	ctx := context.Background()
	breakfast := models.Product{Name: "Desayuno", ConsumedOn: models.ConsumedOnAfter}
	dummy := models.Product{Name: "Migrated service", ConsumedOn: models.ConsumedOnBefore}
	f := newFixture(t)
	testutil.MustCreate(t, f.db, &breakfast, &dummy)
	f.run.DummyProductId = &dummy.ID

	f.reader.
		add("hotel.room.type", map[string]any{"id": 20, "name": "Double Room", "product_id": m2o(50, "Double Room"), "active": true}).
		add("product.product", map[string]any{"id": 50, "name": "Double Room", "active": true}).
		add("product.product", map[string]any{"id": 51, "name": "Desayuno", "active": true}).
		add("product.product", map[string]any{"id": 52, "name": "Parking", "active": false}).
		add("product.product", map[string]any{"id": 53, "name": "Spa", "active": true})

	p, err := f.engine().ImportProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Migrated)
	assert.Equal(t, 1, p.UnmappedLocal)

	var n int64
	require.NoError(t, f.db.Model(&models.IdentityMapping{}).Where("kind = ? AND remote_key = ?", models.KindProduct, "50").Count(&n).Error)
	assert.Zero(t, n, "room type products are not products")

	assert.Equal(t, breakfast.ID, *mappingOf(t, f.db, f.run.ID, models.KindProduct, "51").LocalId)
	parking := mappingOf(t, f.db, f.run.ID, models.KindProduct, "52")
	assert.Equal(t, dummy.ID, *parking.LocalId)
	assert.Equal(t, "Parking (Obsoleto)", parking.RemoteName)
	assert.Nil(t, mappingOf(t, f.db, f.run.ID, models.KindProduct, "53").LocalId, "no auto-create without the run flag")
}

func TestImportChannelTypesKeyedByCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	door := models.SaleChannel{Name: "Puerta"}
	web := models.SaleChannel{Name: "Website", IsOnLine: true}
	testutil.MustCreate(t, f.db, &door, &web)

	e := f.engine()
	p, err := e.ImportChannelTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migration.ChannelTypes), p.Migrated)
	assert.Equal(t, len(migration.ChannelTypes)-2, p.UnmappedLocal)

	m := mappingOf(t, f.db, f.run.ID, models.KindChannelType, "door")
	require.NotNil(t, m.LocalId)
	assert.Equal(t, door.ID, *m.LocalId)
	assert.Zero(t, m.RemoteId)
	assert.JSONEq(t, `{"sale_channel":"Puerta"}`, string(m.Metadata))
	assert.Equal(t, web.ID, *mappingOf(t, f.db, f.run.ID, models.KindChannelType, "web").LocalId)

	p, err = e.ImportChannelTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migration.ChannelTypes), p.Skipped)
}

func TestImportRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().Import(context.Background(), models.KindFolio)
	require.ErrorIs(t, err, migration.ErrUnknownKind)
}

func TestImportReferenceDataStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	// no room type class in the legacy database, so room types cannot run
	out, err := f.engine().ImportReferenceData(context.Background())
	require.ErrorIs(t, err, migration.ErrRoomTypeClassesMissing)
	require.Len(t, out, 3)
	assert.Equal(t, models.KindUser, out[0].Kind)
	assert.Equal(t, models.KindPricelist, out[1].Kind)
	assert.Equal(t, models.KindRoomTypeClass, out[2].Kind)
}
