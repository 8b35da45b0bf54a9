package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/hotel_migration/models"
	"gorm.io/gorm"
)

// PartnerIndex finds local partners by identity document or VAT number.
type PartnerIndex struct {
	db *gorm.DB
}

func NewPartnerIndex(db *gorm.DB) *PartnerIndex {
	return &PartnerIndex{db: db}
}

// Category returns the document category with code, or nil.
func (x *PartnerIndex) Category(ctx context.Context, code string) (*models.PartnerIdCategory, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var cat models.PartnerIdCategory
	err := x.db.WithContext(ctx).Where("code = ?", code).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// ByDocument matches the exact document number within a category.
func (x *PartnerIndex) ByDocument(ctx context.Context, categoryId int, number string) (Resolution, error) {
	number = strings.TrimSpace(number)
	if categoryId <= 0 || number == "" {
		return Unresolved(), nil
	}
	var ids []int
	err := x.db.WithContext(ctx).Model(&models.PartnerIdNumber{}).
		Where("category_id = ? AND name = ?", categoryId, number).
		Order("partner_id").
		Pluck("partner_id", &ids).Error
	if err != nil {
		return Resolution{}, err
	}
	return FromCandidates(ids), nil
}

// ByVat matches a VAT number written with or without its country prefix.
func (x *PartnerIndex) ByVat(ctx context.Context, vat string, country *models.Country) (Resolution, error) {
	forms := VatForms(vat, country)
	if len(forms) == 0 {
		return Unresolved(), nil
	}
	var ids []int
	err := x.db.WithContext(ctx).Model(&models.Partner{}).
		Where("UPPER(REPLACE(vat, ' ', '')) IN ?", forms).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return Resolution{}, err
	}
	return FromCandidates(ids), nil
}

// vatPrefix is the VAT prefix of a country when it differs from its ISO code.
var vatPrefix = map[string]string{"GR": "EL"}

// VatForms returns the normalised VAT with and without the country prefix.
// Without a country only the normalised input is returned.
func VatForms(vat string, country *models.Country) []string {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vat), " ", ""))
	if clean == "" {
		return nil
	}
	if country == nil || country.Code == "" || len(clean) < 2 {
		return []string{clean}
	}
	code := strings.ToUpper(country.Code)
	if p, ok := vatPrefix[code]; ok && country.InEurope {
		code = p
	}
	prefix, number := clean[:2], clean[2:]
	if prefix == code {
		return uniqueForms(clean, number)
	}
	return uniqueForms(code+clean, clean)
}

func uniqueForms(withCode, withoutCode string) []string {
	if withoutCode == "" || withCode == withoutCode {
		return []string{withCode}
	}
	return []string{withCode, withoutCode}
}
