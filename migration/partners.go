package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
)

// MigratePartners migrates top-level legacy partners carrying a VAT or an
// identity document.
func (e *Engine) MigratePartners(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MigratePartners", models.KindPartner)
	defer span.End()
	return e.runKind(ctx, models.KindPartner, e.preparePartners)
}

func (e *Engine) preparePartners(ctx context.Context, _ *chunk) (prepared, error) {
	domain := remote.And(
		remote.Eq("parent_id", false),
		remote.Eq("user_ids", false),
		remote.ActiveAny(),
		remote.Or(remote.Cond("vat", "!=", false), remote.Cond("document_number", "!=", false)),
	)
	candidates, err := e.reader.SearchIds(ctx, remote.ModelPartner, domain, remote.Order("id asc"))
	if err != nil {
		return prepared{}, err
	}
	migrated, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindPartner, candidates)
	if err != nil {
		return prepared{}, err
	}
	return prepared{sets: []workSet{{RemoteIds: utils.Difference(candidates, migrated)}}}, nil
}

func (e *Engine) partnerChunk(ctx context.Context, c *chunk) error {
	partners, bad, err := remote.PartnerSpec.Read(ctx, e.reader, c.task.RemoteIds)
	if err != nil {
		return err
	}
	e.failDecoded(ctx, c, models.KindPartner, bad)

	inputs, err := e.partnerInputs(ctx, partners)
	if err != nil {
		return err
	}
	done, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindPartner, idsOf(partners, func(p remote.Partner) int { return p.ID }))
	if err != nil {
		return err
	}
	migrated := intSet(done)
	index := identity.NewPartnerIndex(e.db)

	for _, in := range inputs {
		if migrated[in.Partner.ID] {
			c.result.Skipped++
			continue
		}
		if _, err := e.migratePartner(ctx, c, index, in); err != nil {
			e.fail(ctx, c, models.KindPartner, in.Partner.ID, err)
			continue
		}
		c.result.Migrated++
	}
	return nil
}

// partnerInputs attaches country and INE codes read in two bulk calls.
func (e *Engine) partnerInputs(ctx context.Context, partners []remote.Partner) ([]mapper.PartnerInput, error) {
	var countryIds, ineIds []int
	for _, p := range partners {
		if p.Country.IsSet() {
			countryIds = append(countryIds, p.Country.ID)
		}
		if p.CodeIne.IsSet() {
			ineIds = append(ineIds, p.CodeIne.ID)
		}
	}
	countryCodes := map[int]string{}
	if len(countryIds) > 0 {
		countries, _, err := remote.CountrySpec.Read(ctx, e.reader, utils.UniqueSlice(countryIds))
		if err != nil {
			return nil, err
		}
		for _, c := range countries {
			countryCodes[c.ID] = c.Code
		}
	}
	ineCodes := map[int]string{}
	if len(ineIds) > 0 {
		codes, _, err := remote.IneCodeSpec.Read(ctx, e.reader, utils.UniqueSlice(ineIds))
		if err != nil {
			return nil, err
		}
		for _, c := range codes {
			ineCodes[c.ID] = c.Code
		}
	}
	out := make([]mapper.PartnerInput, 0, len(partners))
	for _, p := range partners {
		out = append(out, mapper.PartnerInput{
			Partner:     p,
			CountryCode: countryCodes[p.Country.ID],
			IneCode:     ineCodes[p.CodeIne.ID],
		})
	}
	return out, nil
}

// migratePartner applies the partner decision and records the mapping. It
// returns the local partner id, or nil for a partner recorded without
// documentation.
func (e *Engine) migratePartner(ctx context.Context, c *chunk, index *identity.PartnerIndex, in mapper.PartnerInput) (*int, error) {
	decision, err := mapper.DecidePartner(ctx, c.deps, index, in)
	if err != nil {
		return nil, err
	}
	p := in.Partner
	var localId *int
	switch decision.Action {
	case mapper.PartnerMatchedDocument, mapper.PartnerMatchedVat:
		id := decision.LocalId
		localId = &id
	case mapper.PartnerCreate:
		id, err := e.createPartner(ctx, c, decision.Partner, decision.Document)
		if err != nil {
			return nil, err
		}
		localId = &id
	}
	if err := e.store.RecordMapping(ctx, e.scope(), models.KindPartner, p.ID, localId, p.DisplayName()); err != nil {
		return nil, err
	}
	return localId, nil
}

// createPartner inserts a partner and its identity document. When a
// concurrent chunk already created the same VAT or document, the winner is
// linked instead and its blank fields are filled.
func (e *Engine) createPartner(ctx context.Context, c *chunk, partner *models.Partner, doc *models.PartnerIdNumber) (int, error) {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(partner).Error; err != nil {
			return err
		}
		if doc != nil {
			doc.PartnerId = partner.ID
			if err := tx.Create(doc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return partner.ID, nil
	}
	if !utils.IsDuplicateKeyError(err) {
		return 0, err
	}

	winner, werr := e.partnerWinner(ctx, partner, doc)
	if werr != nil {
		return 0, fmt.Errorf("%w (re-match failed: %v)", err, werr)
	}
	if err := e.fillPartnerBlanks(ctx, winner, partner); err != nil {
		return 0, err
	}
	remoteId := utils.DereferencePtr(partner.RemoteId)
	e.logRecord(ctx, c, models.KindPartner, remoteId, models.LogCodeDuplicateRetry, models.LogSeverityInfo,
		fmt.Sprintf("linked to existing partner %d", winner.ID), map[string]any{"partner_id": winner.ID})
	return winner.ID, nil
}

func (e *Engine) partnerWinner(ctx context.Context, partner *models.Partner, doc *models.PartnerIdNumber) (*models.Partner, error) {
	db := e.db.WithContext(ctx)
	if doc != nil {
		var number models.PartnerIdNumber
		err := db.Where("category_id = ? AND name = ?", doc.CategoryId, doc.Name).Take(&number).Error
		if err == nil {
			var winner models.Partner
			return &winner, db.Take(&winner, number.PartnerId).Error
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	if partner.Vat != nil {
		var winner models.Partner
		return &winner, db.Where("vat = ?", *partner.Vat).Take(&winner).Error
	}
	return nil, fmt.Errorf("partner %q has neither document nor vat", partner.Name)
}

func (e *Engine) fillPartnerBlanks(ctx context.Context, winner, loser *models.Partner) error {
	updates := map[string]interface{}{}
	blank := func(col, have, want string) {
		if strings.TrimSpace(have) == "" && strings.TrimSpace(want) != "" {
			updates[col] = want
		}
	}
	blank("email", winner.Email, loser.Email)
	blank("phone", winner.Phone, loser.Phone)
	blank("mobile", winner.Mobile, loser.Mobile)
	blank("street", winner.Street, loser.Street)
	blank("city", winner.City, loser.City)
	blank("zip", winner.Zip, loser.Zip)
	if winner.CountryId == nil && loser.CountryId != nil {
		updates["country_id"] = *loser.CountryId
	}
	if len(updates) == 0 {
		return nil
	}
	return e.db.WithContext(ctx).Model(&models.Partner{}).Where("id = ?", winner.ID).Updates(updates).Error
}
