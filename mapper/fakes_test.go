package mapper_test

import (
	"context"
	"time"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
)

type fakeResolver map[models.EntityKind]map[int]identity.Resolution

func (f fakeResolver) Resolve(_ context.Context, kind models.EntityKind, remoteId int) (identity.Resolution, error) {
	if r, ok := f[kind][remoteId]; ok {
		return r, nil
	}
	return identity.Unresolved(), nil
}

func (f fakeResolver) set(kind models.EntityKind, remoteId, localId int) fakeResolver {
	if f[kind] == nil {
		f[kind] = map[int]identity.Resolution{}
	}
	f[kind][remoteId] = identity.Resolved(localId)
	return f
}

type fakeCatalog struct {
	partners  map[int]*models.Partner
	channels  map[int]int
	perDay    map[int]bool
	taxes     map[string]models.Tax
	countries map[string]*models.Country
	closures  map[int]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		partners: map[int]*models.Partner{},
		channels: map[int]int{},
		perDay:   map[int]bool{},
		taxes:    map[string]models.Tax{},
		countries: map[string]*models.Country{
			"ES": {ID: 68, Code: "ES", CodeAlpha3: "ESP", InEurope: true},
			"FR": {ID: 75, Code: "FR", CodeAlpha3: "FRA", InEurope: true},
		},
		closures: map[int]string{},
	}
}

func (c *fakeCatalog) Partner(_ context.Context, id int) (*models.Partner, error) {
	return c.partners[id], nil
}

func (c *fakeCatalog) PartnerSaleChannel(_ context.Context, partnerId int) (*int, error) {
	if id, ok := c.channels[partnerId]; ok {
		return &id, nil
	}
	return nil, nil
}

func (c *fakeCatalog) ProductPerDay(_ context.Context, productId int) (bool, error) {
	return c.perDay[productId], nil
}

func (c *fakeCatalog) ClosureReasonName(_ context.Context, id int) (string, error) {
	return c.closures[id], nil
}

func (c *fakeCatalog) TaxesByName(_ context.Context, names []string) ([]models.Tax, error) {
	var out []models.Tax
	for _, n := range names {
		if t, ok := c.taxes[n]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *fakeCatalog) CountryByCode(_ context.Context, code string) (*models.Country, error) {
	return c.countries[code], nil
}

func (c *fakeCatalog) CountryByAlpha3(_ context.Context, code string) (*models.Country, error) {
	for _, country := range c.countries {
		if country.CodeAlpha3 == code {
			return country, nil
		}
	}
	return nil, nil
}

func intPtr(v int) *int { return &v }

func day(y int, m time.Month, d int) remote.Date {
	return remote.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ref(id int, name string) remote.Many2One { return remote.Many2One{ID: id, Name: name} }

func newDeps(r fakeResolver, c *fakeCatalog) mapper.Deps {
	return mapper.Deps{
		Resolver: r,
		Catalog:  c,
		Settings: mapper.Settings{
			PropertyId:           10,
			FolioPrefix:          "M/",
			DummyClosureReasonId: intPtr(3),
			DummyProductId:       intPtr(900),
			DefaultOtaChannelId:  intPtr(20),
			DirectChannelId:      intPtr(21),
			BookingAgencyId:      intPtr(30),
			ExpediaAgencyId:      intPtr(31),
			HotelbedsAgencyId:    intPtr(32),
			ThinkinAgencyId:      intPtr(33),
			Sh360AgencyId:        intPtr(34),
			BackendUserId:        intPtr(1),
			CompanyPartnerId:     intPtr(2),
			LegacyFiscalCutoff:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Users:        map[int]int{5: 50},
		UserLogins:   map[int]string{5: "reception@hotel.es", 6: "bot@thinkin.es", 7: "api@sh360.es"},
		ChannelTypes: map[string]int{"door": 40, "phone": 41},
	}
}
