package migration

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"gorm.io/gorm"
)

// dbCatalog answers mapper questions from the local database.
type dbCatalog struct {
	db *gorm.DB
}

var _ mapper.Catalog = (*dbCatalog)(nil)

func takeOrNil[T any](tx *gorm.DB) (*T, error) {
	var out T
	if err := tx.Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *dbCatalog) Partner(ctx context.Context, id int) (*models.Partner, error) {
	return takeOrNil[models.Partner](c.db.WithContext(ctx).Where("id = ?", id))
}

func (c *dbCatalog) PartnerSaleChannel(ctx context.Context, partnerId int) (*int, error) {
	p, err := c.Partner(ctx, partnerId)
	if err != nil || p == nil {
		return nil, err
	}
	return p.SaleChannelId, nil
}

func (c *dbCatalog) ProductPerDay(ctx context.Context, productId int) (bool, error) {
	p, err := takeOrNil[models.Product](c.db.WithContext(ctx).Where("id = ?", productId))
	if err != nil || p == nil {
		return false, err
	}
	return p.PerDay, nil
}

func (c *dbCatalog) ClosureReasonName(ctx context.Context, id int) (string, error) {
	r, err := takeOrNil[models.ClosureReason](c.db.WithContext(ctx).Where("id = ?", id))
	if err != nil || r == nil {
		return "", err
	}
	return r.Name, nil
}

func (c *dbCatalog) TaxesByName(ctx context.Context, names []string) ([]models.Tax, error) {
	var taxes []models.Tax
	if len(names) == 0 {
		return taxes, nil
	}
	err := c.db.WithContext(ctx).Where("name IN ?", names).Order("id").Find(&taxes).Error
	return taxes, err
}

func (c *dbCatalog) CountryByCode(ctx context.Context, code string) (*models.Country, error) {
	return takeOrNil[models.Country](c.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))))
}

func (c *dbCatalog) CountryByAlpha3(ctx context.Context, code string) (*models.Country, error) {
	return takeOrNil[models.Country](c.db.WithContext(ctx).Where("code_alpha3 = ?", strings.ToUpper(strings.TrimSpace(code))))
}
