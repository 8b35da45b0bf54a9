package mapper

import (
	"context"
	"time"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
)

// Settings are the per-run values mappers fall back on.
type Settings struct {
	PropertyId             int
	FolioPrefix            string
	DummyClosureReasonId   *int
	DummyProductId         *int
	DefaultChannelAgencyId *int
	DefaultOtaChannelId    *int
	DirectChannelId        *int
	BookingAgencyId        *int
	ExpediaAgencyId        *int
	HotelbedsAgencyId      *int
	ThinkinAgencyId        *int
	Sh360AgencyId          *int
	BackendUserId          *int
	CompanyPartnerId       *int
	LegacyFiscalCutoff     time.Time
}

func SettingsFromRun(run *models.MigrationRun, property *models.Property, t config.Tunables) Settings {
	s := Settings{
		PropertyId:             run.PropertyId,
		FolioPrefix:            run.FolioPrefix,
		DummyClosureReasonId:   run.DummyClosureReasonId,
		DummyProductId:         run.DummyProductId,
		DefaultChannelAgencyId: run.DefaultChannelAgencyId,
		DefaultOtaChannelId:    run.DefaultOtaChannelId,
		DirectChannelId:        run.DirectChannelId,
		BookingAgencyId:        run.BookingAgencyId,
		ExpediaAgencyId:        run.ExpediaAgencyId,
		HotelbedsAgencyId:      run.HotelbedsAgencyId,
		ThinkinAgencyId:        run.ThinkinAgencyId,
		Sh360AgencyId:          run.Sh360AgencyId,
		BackendUserId:          run.BackendUserId,
		LegacyFiscalCutoff:     t.LegacyFiscalCutoff,
	}
	if property != nil {
		s.CompanyPartnerId = property.CompanyPartnerId
	}
	return s
}

// Catalog answers questions about local records that mappers need but that
// are not identity lookups.
type Catalog interface {
	Partner(ctx context.Context, id int) (*models.Partner, error)
	PartnerSaleChannel(ctx context.Context, partnerId int) (*int, error)
	ProductPerDay(ctx context.Context, productId int) (bool, error)
	ClosureReasonName(ctx context.Context, id int) (string, error)
	TaxesByName(ctx context.Context, names []string) ([]models.Tax, error)
	CountryByCode(ctx context.Context, code string) (*models.Country, error)
	CountryByAlpha3(ctx context.Context, code string) (*models.Country, error)
}

// Deps is everything a mapper may consult. It is built once per chunk.
type Deps struct {
	Resolver identity.Resolver
	Catalog  Catalog
	Settings Settings
	// Users maps remote user ids to local users.
	Users map[int]int
	// UserLogins holds the legacy login of every remote user.
	UserLogins map[int]string
	// ChannelTypes maps legacy channel-type codes to local sale channels.
	ChannelTypes map[string]int
}

// UserId maps a legacy user, falling back to the backend user.
func (d Deps) UserId(ref remote.Many2One) *int {
	if ref.IsSet() {
		if id, ok := d.Users[ref.ID]; ok {
			return &id
		}
	}
	return d.Settings.BackendUserId
}

func (d Deps) resolve(ctx context.Context, kind models.EntityKind, ref remote.Many2One) (identity.Resolution, error) {
	if !ref.IsSet() {
		return identity.Unresolved(), nil
	}
	return d.Resolver.Resolve(ctx, kind, ref.ID)
}

// required resolves a reference whose absence rejects the owning record.
func (d Deps) required(ctx context.Context, owner models.EntityKind, ownerId int, field string, kind models.EntityKind, ref remote.Many2One) (int, error) {
	if !ref.IsSet() {
		return 0, mappingError(owner, ownerId, field, ErrMissingValue)
	}
	res, err := d.Resolver.Resolve(ctx, kind, ref.ID)
	if err != nil {
		return 0, err
	}
	switch res.Status {
	case identity.Found:
		return res.LocalId, nil
	case identity.Ambiguous:
		return 0, mappingError(owner, ownerId, field, ErrAmbiguousReference)
	}
	return 0, mappingError(owner, ownerId, field, ErrReferenceNotFound)
}

// optional resolves a reference that degrades to nil.
func (d Deps) optional(ctx context.Context, kind models.EntityKind, ref remote.Many2One) (*int, error) {
	res, err := d.resolve(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	return res.Ptr(), nil
}
