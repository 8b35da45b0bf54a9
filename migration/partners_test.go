package migration_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigratePartnersByDocumentAndVat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	spain := models.Country{Name: "Spain", Code: "ES", CodeAlpha3: "ESP", InEurope: true}
	dni := models.PartnerIdCategory{Name: "DNI", Code: "D"}
	betaVat := "ESB87654321"
	beta := models.Partner{Name: "Beta Hotels", IsCompany: true, Vat: &betaVat}
	testutil.MustCreate(t, f.db, &spain, &dni, &beta)

	f.reader.
		add("res.country", map[string]any{"id": 68, "name": "Spain", "code": "ES"}).
		add("res.partner", map[string]any{
			"id": 101, "name": "Acme SL", "is_company": true, "vat": "B12345678",
			"country_id": m2o(68, "Spain"), "email": "info@acme.es", "city": "Madrid",
		}).
		add("res.partner", map[string]any{
			"id": 102, "firstname": "Ana", "lastname": "Lopez", "document_number": "12345678Z",
			"document_type": "D", "country_id": m2o(68, "Spain"),
		}).
		add("res.partner", map[string]any{"id": 103, "name": "Juan Perez", "vat": "X1234567L"}).
		add("res.partner", map[string]any{
			"id": 104, "name": "Beta SA", "is_company": true, "vat": "B87654321", "country_id": m2o(68, "Spain"),
		}).
		add("res.partner", map[string]any{"id": 105, "name": "Acme, Reception", "vat": "B12345678", "parent_id": m2o(101, "Acme SL")}).
		add("res.partner", map[string]any{"id": 106, "name": "Front desk", "vat": "B00000000", "user_ids": []int{5}}).
		add("res.partner", map[string]any{"id": 107, "name": "Walk-in"})

	e := f.engine()
	p, err := e.MigratePartners(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReported, p.Phase)
	assert.Equal(t, 4, p.Migrated)
	assert.Equal(t, 1, p.UnmappedLocal, "a person with only a VAT is recorded without a partner")
	assert.Zero(t, p.Failed)

	acme := mappingOf(t, f.db, f.run.ID, models.KindPartner, "101")
	require.NotNil(t, acme.LocalId)
	var company models.Partner
	require.NoError(t, f.db.Take(&company, *acme.LocalId).Error)
	assert.Equal(t, "Acme SL", company.Name)
	assert.True(t, company.IsCompany)
	require.NotNil(t, company.Vat)
	assert.Equal(t, "B12345678", *company.Vat)
	require.NotNil(t, company.CountryId)
	assert.Equal(t, spain.ID, *company.CountryId)

	guest := mappingOf(t, f.db, f.run.ID, models.KindPartner, "102")
	require.NotNil(t, guest.LocalId)
	var doc models.PartnerIdNumber
	require.NoError(t, f.db.Where("partner_id = ?", *guest.LocalId).Take(&doc).Error)
	assert.Equal(t, dni.ID, doc.CategoryId)
	assert.Equal(t, "12345678Z", doc.Name)
	var person models.Partner
	require.NoError(t, f.db.Take(&person, *guest.LocalId).Error)
	assert.Equal(t, "Ana Lopez", person.Name)
	assert.Nil(t, person.Vat)

	assert.Nil(t, mappingOf(t, f.db, f.run.ID, models.KindPartner, "103").LocalId)

	matched := mappingOf(t, f.db, f.run.ID, models.KindPartner, "104")
	require.NotNil(t, matched.LocalId)
	assert.Equal(t, beta.ID, *matched.LocalId, "the country prefix is ignored when matching VATs")

	var excluded int64
	require.NoError(t, f.db.Model(&models.IdentityMapping{}).
		Where("kind = ? AND remote_id IN ?", models.KindPartner, []int{105, 106, 107}).Count(&excluded).Error)
	assert.Zero(t, excluded, "contacts, users and undocumented partners stay behind")

	var before int64
	require.NoError(t, f.db.Model(&models.Partner{}).Count(&before).Error)
	assert.EqualValues(t, 4, before)

	p, err = e.MigratePartners(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Migrated)
	var after int64
	require.NoError(t, f.db.Model(&models.Partner{}).Count(&after).Error)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.reader.callCount("read", "res.partner"), "nothing left to read on the second run")
}

func TestMigratePartnerLinksExistingDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dni := models.PartnerIdCategory{Name: "DNI", Code: "D"}
	testutil.MustCreate(t, f.db, &dni)
	known := models.Partner{Name: "Ana L."}
	testutil.MustCreate(t, f.db, &known)
	testutil.MustCreate(t, f.db, &models.PartnerIdNumber{PartnerId: known.ID, CategoryId: dni.ID, Name: "12345678Z"})

	f.reader.add("res.partner", map[string]any{
		"id": 102, "name": "Ana Lopez", "document_number": "12345678Z", "document_type": "D",
	})

	p, err := f.engine().MigratePartners(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Migrated)
	assert.Equal(t, known.ID, *mappingOf(t, f.db, f.run.ID, models.KindPartner, "102").LocalId)

	var n int64
	require.NoError(t, f.db.Model(&models.PartnerIdNumber{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
