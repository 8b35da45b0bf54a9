package reconcile

import (
	"context"
	"errors"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
)

// LegKey identifies one migrated leg of a legacy payment.
type LegKey struct {
	RemoteId int
	Leg      string
}

// MigratedLegs returns the legs of remoteIds already present as bank payments
// or cash statement lines.
func MigratedLegs(ctx context.Context, db *gorm.DB, propertyId int, remoteIds []int) (map[LegKey]bool, error) {
	out := make(map[LegKey]bool)
	for _, chunk := range utils.Chunk(remoteIds, 1000) {
		for _, model := range []interface{}{&models.Payment{}, &models.StatementLine{}} {
			var rows []struct {
				RemoteId  int
				RemoteLeg string
			}
			err := db.WithContext(ctx).Model(model).Select("remote_id, remote_leg").
				Where("property_id = ? AND remote_id IN ? AND remote_leg IN ?", propertyId, chunk, []string{models.LegSource, models.LegDestination}).
				Find(&rows).Error
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				out[LegKey{r.RemoteId, r.RemoteLeg}] = true
			}
		}
	}
	return out, nil
}

// StatementLineFromLeg builds the unsaved cash line of a leg.
func StatementLineFromLeg(propertyId int, leg mapper.Leg) models.StatementLine {
	remoteId := leg.RemoteId
	return models.StatementLine{
		PropertyId:         propertyId,
		RemoteId:           &remoteId,
		RemoteLeg:          leg.Leg,
		JournalId:          leg.JournalId,
		Date:               utils.DateOnly(leg.Date),
		Amount:             leg.Amount,
		Residual:           leg.Amount,
		PartnerId:          leg.PartnerId,
		FolioId:            leg.FolioId,
		Ref:                leg.Ref,
		IsInternalTransfer: leg.IsInternalTransfer,
		CreateUid:          leg.CreateUid,
	}
}

// PostBankLeg writes a leg on a bank journal as a posted payment. An existing
// payment for the same leg is returned unchanged with created false.
func PostBankLeg(ctx context.Context, db *gorm.DB, propertyId int, leg mapper.Leg) (*models.Payment, bool, error) {
	var existing models.Payment
	err := db.WithContext(ctx).
		Where("property_id = ? AND remote_id = ? AND remote_leg = ?", propertyId, leg.RemoteId, leg.Leg).
		Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	remoteId := leg.RemoteId
	p := &models.Payment{
		PropertyId:         propertyId,
		RemoteId:           &remoteId,
		RemoteLeg:          leg.Leg,
		JournalId:          leg.JournalId,
		PartnerId:          leg.PartnerId,
		FolioId:            leg.FolioId,
		PaymentType:        leg.PaymentType,
		PartnerType:        leg.PartnerType,
		IsInternalTransfer: leg.IsInternalTransfer,
		Amount:             leg.Amount.Abs(),
		ResidualAmount:     leg.Amount.Abs(),
		Date:               utils.DateOnly(leg.Date),
		Ref:                leg.Ref,
		State:              models.PaymentStatePosted,
		CreateUid:          leg.CreateUid,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return p, false, nil
		}
		return nil, false, err
	}
	return p, true, nil
}
