package mapper_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docKey struct {
	category int
	number   string
}

type fakeLookup struct {
	categories map[string]*models.PartnerIdCategory
	documents  map[docKey]int
	vats       map[string]int
}

func (l *fakeLookup) Category(_ context.Context, code string) (*models.PartnerIdCategory, error) {
	return l.categories[code], nil
}

func (l *fakeLookup) ByDocument(_ context.Context, categoryId int, number string) (identity.Resolution, error) {
	if id, ok := l.documents[docKey{categoryId, number}]; ok {
		return identity.Resolved(id), nil
	}
	return identity.Unresolved(), nil
}

func (l *fakeLookup) ByVat(_ context.Context, vat string, country *models.Country) (identity.Resolution, error) {
	var ids []int
	for _, form := range identity.VatForms(vat, country) {
		if id, ok := l.vats[form]; ok {
			ids = append(ids, id)
		}
	}
	return identity.FromCandidates(ids), nil
}

func newLookup() *fakeLookup {
	return &fakeLookup{
		categories: map[string]*models.PartnerIdCategory{"D": {ID: 1, Code: "D", Name: "DNI"}},
		documents:  map[docKey]int{},
		vats:       map[string]int{},
	}
}

func TestDecidePartnerDocumentWinsOverVat(t *testing.T) {
	lookup := newLookup()
	lookup.documents[docKey{1, "12345678Z"}] = 100
	lookup.vats["ES12345678Z"] = 200
	d := newDeps(fakeResolver{}, newFakeCatalog())

	dec, err := mapper.DecidePartner(context.Background(), d, lookup, mapper.PartnerInput{
		Partner:     remote.Partner{ID: 9, Name: "Ana", DocumentNumber: "12345678Z", DocumentType: "D", Vat: "12345678Z"},
		CountryCode: "ES",
	})
	require.NoError(t, err)
	assert.Equal(t, mapper.PartnerMatchedDocument, dec.Action)
	assert.Equal(t, 100, dec.LocalId)
}

func TestDecidePartnerCompanySkipsDocument(t *testing.T) {
	lookup := newLookup()
	lookup.documents[docKey{1, "B12345678"}] = 100
	lookup.vats["ESB12345678"] = 200
	d := newDeps(fakeResolver{}, newFakeCatalog())

	dec, err := mapper.DecidePartner(context.Background(), d, lookup, mapper.PartnerInput{
		Partner:     remote.Partner{ID: 9, Name: "Acme SL", IsCompany: true, DocumentNumber: "B12345678", DocumentType: "D", Vat: "B12345678"},
		CountryCode: "ES",
	})
	require.NoError(t, err)
	assert.Equal(t, mapper.PartnerMatchedVat, dec.Action)
	assert.Equal(t, 200, dec.LocalId)
}

func TestDecidePartnerCreatesCompany(t *testing.T) {
	d := newDeps(fakeResolver{}, newFakeCatalog())

	dec, err := mapper.DecidePartner(context.Background(), d, newLookup(), mapper.PartnerInput{
		Partner: remote.Partner{ID: 7, Name: "Acme SL", IsCompany: true, Vat: "B12345678", Phone: "912 345 678"},
		IneCode: "ES28",
	})
	require.NoError(t, err)
	require.Equal(t, mapper.PartnerCreate, dec.Action)
	require.NotNil(t, dec.Partner)
	assert.Equal(t, "B12345678", *dec.Partner.Vat)
	assert.Equal(t, 7, *dec.Partner.RemoteId)
	assert.Equal(t, 68, *dec.Partner.CountryId)
	assert.Equal(t, "+34912345678", dec.Partner.Phone)
	assert.Nil(t, dec.Document)
}

func TestDecidePartnerWithoutDocumentation(t *testing.T) {
	d := newDeps(fakeResolver{}, newFakeCatalog())
	cases := []struct {
		name    string
		partner remote.Partner
	}{
		{"no identifiers", remote.Partner{ID: 1, Name: "Walk-in"}},
		{"private person with vat only", remote.Partner{ID: 2, Name: "Luis", Vat: "X1234567L"}},
		{"unknown document category", remote.Partner{ID: 3, Name: "Eve", DocumentType: "Q", DocumentNumber: "77"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := mapper.DecidePartner(context.Background(), d, newLookup(), mapper.PartnerInput{Partner: tc.partner})
			require.NoError(t, err)
			assert.Equal(t, mapper.PartnerWithoutDocumentation, dec.Action)
			assert.Nil(t, dec.Partner)
		})
	}
}

func TestDecidePartnerCreatesGuestWithDocument(t *testing.T) {
	d := newDeps(fakeResolver{}, newFakeCatalog())

	dec, err := mapper.DecidePartner(context.Background(), d, newLookup(), mapper.PartnerInput{
		Partner: remote.Partner{
			ID: 11, Firstname: "Marie", Lastname: "Curie",
			DocumentType: "D", DocumentNumber: "99887766",
			DocumentExpeditionDate: day(2020, 3, 1),
		},
		CountryCode: "FR",
	})
	require.NoError(t, err)
	require.Equal(t, mapper.PartnerCreate, dec.Action)
	assert.Equal(t, "Marie Curie", dec.Partner.Name)
	require.NotNil(t, dec.Document)
	assert.Equal(t, 1, dec.Document.CategoryId)
	assert.Equal(t, "99887766", dec.Document.Name)
	assert.Equal(t, 75, *dec.Document.CountryId)
	require.NotNil(t, dec.Document.ValidFrom)
}

func TestDecidePartnerContactAndAgency(t *testing.T) {
	r := fakeResolver{}.set(models.KindPartner, 40, 400)
	d := newDeps(r, newFakeCatalog())
	d.Settings.DefaultChannelAgencyId = intPtr(77)

	dec, err := mapper.DecidePartner(context.Background(), d, newLookup(), mapper.PartnerInput{
		Partner: remote.Partner{ID: 41, Name: "Booking contact", IsCompany: true, IsTourOperator: true, Vat: "NL123", Parent: ref(40, "Booking")},
	})
	require.NoError(t, err)
	require.Equal(t, mapper.PartnerCreate, dec.Action)
	assert.Nil(t, dec.Partner.Vat)
	assert.Equal(t, 400, *dec.Partner.ParentId)
	assert.True(t, dec.Partner.IsAgency)
	assert.Equal(t, 77, *dec.Partner.SaleChannelId)
}
