package mapper

import (
	"context"
	"strings"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
)

// PartnerLookup finds existing local partners. identity.PartnerIndex implements it.
type PartnerLookup interface {
	Category(ctx context.Context, code string) (*models.PartnerIdCategory, error)
	ByDocument(ctx context.Context, categoryId int, number string) (identity.Resolution, error)
	ByVat(ctx context.Context, vat string, country *models.Country) (identity.Resolution, error)
}

type PartnerAction int

const (
	PartnerMatchedDocument PartnerAction = iota + 1
	PartnerMatchedVat
	PartnerCreate
	PartnerWithoutDocumentation
)

func (a PartnerAction) String() string {
	switch a {
	case PartnerMatchedDocument:
		return "matched_document"
	case PartnerMatchedVat:
		return "matched_vat"
	case PartnerCreate:
		return "create"
	}
	return "without_documentation"
}

// PartnerInput is a legacy partner with the codes of its country references.
type PartnerInput struct {
	Partner     remote.Partner
	CountryCode string
	IneCode     string
}

// PartnerDecision says what to do with one legacy partner. LocalId is set for
// matches; Partner (and Document when known) for creations.
type PartnerDecision struct {
	Action   PartnerAction
	LocalId  int
	Partner  *models.Partner
	Document *models.PartnerIdNumber
	Country  *models.Country
}

// DecidePartner applies document, then VAT, then creation. Companies and OTAs
// never match by document.
func DecidePartner(ctx context.Context, d Deps, lookup PartnerLookup, in PartnerInput) (PartnerDecision, error) {
	p := in.Partner
	country, err := partnerCountry(ctx, d.Catalog, in)
	if err != nil {
		return PartnerDecision{}, err
	}

	var doc *models.PartnerIdNumber
	number := strings.TrimSpace(p.DocumentNumber)
	if number != "" && p.DocumentType != "" && !p.IsCompany && !p.IsTourOperator {
		cat, err := lookup.Category(ctx, p.DocumentType)
		if err != nil {
			return PartnerDecision{}, err
		}
		if cat != nil {
			res, err := lookup.ByDocument(ctx, cat.ID, number)
			if err != nil {
				return PartnerDecision{}, err
			}
			if id, ok := res.Lowest(); ok {
				return PartnerDecision{Action: PartnerMatchedDocument, LocalId: id, Country: country}, nil
			}
			doc = &models.PartnerIdNumber{
				CategoryId: cat.ID,
				Name:       number,
				ValidFrom:  p.DocumentExpeditionDate.Ptr(),
			}
			if country != nil {
				doc.CountryId = &country.ID
			}
		}
	}

	vat := strings.TrimSpace(p.Vat)
	if vat != "" {
		res, err := lookup.ByVat(ctx, vat, country)
		if err != nil {
			return PartnerDecision{}, err
		}
		if id, ok := res.Lowest(); ok {
			return PartnerDecision{Action: PartnerMatchedVat, LocalId: id, Country: country}, nil
		}
	}

	if doc == nil && (vat == "" || !(p.IsCompany || p.IsTourOperator)) {
		return PartnerDecision{Action: PartnerWithoutDocumentation, Country: country}, nil
	}

	partner, err := newPartner(ctx, d, p, vat, country)
	if err != nil {
		return PartnerDecision{}, err
	}
	return PartnerDecision{Action: PartnerCreate, Partner: partner, Document: doc, Country: country}, nil
}

func newPartner(ctx context.Context, d Deps, p remote.Partner, vat string, country *models.Country) (*models.Partner, error) {
	name := strings.TrimSpace(p.DisplayName())
	if name == "" {
		return nil, mappingError(models.KindPartner, p.ID, "name", ErrMissingValue)
	}
	parentId, err := d.optional(ctx, models.KindPartner, p.Parent)
	if err != nil {
		return nil, err
	}
	// contacts inherit the fiscal identity of their parent
	if parentId != nil {
		vat = ""
	}
	region := ""
	out := &models.Partner{
		Name:      name,
		IsCompany: p.IsCompany,
		IsAgency:  p.IsTourOperator,
		ParentId:  parentId,
		Vat:       utils.NilIfZero(vat),
		Email:     strings.TrimSpace(p.Email),
		Street:    joinNonEmpty(", ", p.Street, p.Street2),
		City:      p.City,
		Zip:       p.Zip,
		Comment:   p.Comment,
		RemoteId:  &p.ID,
	}
	if country != nil {
		out.CountryId = &country.ID
		region = country.Code
	}
	out.Phone = utils.NormalizePhoneNumber(p.Phone, region)
	out.Mobile = utils.NormalizePhoneNumber(p.Mobile, region)
	if p.IsTourOperator {
		out.SaleChannelId = d.Settings.DefaultChannelAgencyId
	}
	return out, nil
}

// PartnerForInvoice builds the partner of an invoice customer that partner
// migration left without a local record. The VAT is kept whatever the partner type.
func PartnerForInvoice(ctx context.Context, d Deps, in PartnerInput) (*models.Partner, error) {
	country, err := partnerCountry(ctx, d.Catalog, in)
	if err != nil {
		return nil, err
	}
	return newPartner(ctx, d, in.Partner, strings.TrimSpace(in.Partner.Vat), country)
}

// partnerCountry takes the legacy country, or derives it from the INE code
// (Spanish province codes contain "ES", the rest are alpha-3 country codes).
func partnerCountry(ctx context.Context, c Catalog, in PartnerInput) (*models.Country, error) {
	if code := strings.TrimSpace(in.CountryCode); code != "" {
		return c.CountryByCode(ctx, code)
	}
	ine := strings.TrimSpace(in.IneCode)
	if ine == "" {
		return nil, nil
	}
	if strings.Contains(ine, "ES") {
		return c.CountryByCode(ctx, "ES")
	}
	return c.CountryByAlpha3(ctx, ine)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
