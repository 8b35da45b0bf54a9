package migration

import (
	"context"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
)

// auditFields are the legacy columns copied over the migration operator's
// audit trail.
type auditFields struct {
	ID         int             `json:"id" validate:"required,gt=0"`
	CreateUid  remote.Many2One `json:"create_uid"`
	CreateDate remote.Date     `json:"create_date"`
}

// auditTarget is one local table whose rows carry a remote id.
type auditTarget struct {
	kind        models.EntityKind
	model       any
	remoteModel string
	legs        []string
	hasCreator  bool
}

var auditTargets = []auditTarget{
	{kind: models.KindFolio, model: &models.Folio{}, remoteModel: remote.ModelFolio, hasCreator: true},
	{kind: models.KindReservation, model: &models.Reservation{}, remoteModel: remote.ModelReservation, hasCreator: true},
	{kind: models.KindCheckin, model: &models.Checkin{}, remoteModel: remote.ModelCheckinPartner},
	{kind: models.KindService, model: &models.Service{}, remoteModel: remote.ModelService},
	{kind: models.KindPayment, model: &models.Payment{}, remoteModel: remote.ModelPayment, legs: []string{models.LegSource, models.LegDestination}, hasCreator: true},
	{kind: models.KindPayment, model: &models.StatementLine{}, remoteModel: remote.ModelPayment, legs: []string{models.LegSource, models.LegDestination}, hasCreator: true},
	{kind: models.KindPaymentReturn, model: &models.Payment{}, remoteModel: remote.ModelPaymentReturn, legs: []string{models.LegReturn}, hasCreator: true},
	{kind: models.KindInvoice, model: &models.Invoice{}, remoteModel: remote.ModelInvoice, hasCreator: true},
}

// UpdateSpecialFieldNames copies the legacy creator and creation time onto
// every migrated record. Rows are updated without touching updated_at.
func (e *Engine) UpdateSpecialFieldNames(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "UpdateSpecialFieldNames", models.KindSpecialFields)
	defer span.End()
	return e.simpleKind(ctx, models.KindSpecialFields, func(ctx context.Context, c *chunk) error {
		for _, t := range auditTargets {
			if err := e.updateAuditFields(ctx, c, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) updateAuditFields(ctx context.Context, c *chunk, t auditTarget) error {
	var rows []struct {
		ID       int
		RemoteId int
	}
	q := e.db.WithContext(ctx).Model(t.model).Select("id, remote_id").
		Where("property_id = ? AND remote_id IS NOT NULL", e.run.PropertyId)
	if len(t.legs) > 0 {
		q = q.Where("remote_leg IN ?", t.legs)
	}
	if err := q.Order("id").Scan(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	localIds := map[int][]int{}
	var remoteIds []int
	for _, r := range rows {
		if _, ok := localIds[r.RemoteId]; !ok {
			remoteIds = append(remoteIds, r.RemoteId)
		}
		localIds[r.RemoteId] = append(localIds[r.RemoteId], r.ID)
	}

	spec := remote.NewSpec[auditFields](t.remoteModel)
	for _, ids := range utils.Chunk(remoteIds, e.tunables.ChunkSize) {
		records, bad, err := spec.Read(ctx, e.reader, ids)
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, t.kind, bad)
		for _, rec := range records {
			updates := map[string]interface{}{}
			if !rec.CreateDate.IsZero() {
				updates["created_at"] = rec.CreateDate.Time
			}
			if t.hasCreator {
				if uid := c.deps.UserId(rec.CreateUid); uid != nil {
					updates["create_uid"] = *uid
				}
			}
			if len(updates) == 0 {
				c.result.Skipped++
				continue
			}
			err := e.db.WithContext(ctx).Model(t.model).Where("id IN ?", localIds[rec.ID]).UpdateColumns(updates).Error
			if err != nil {
				e.fail(ctx, c, t.kind, rec.ID, err)
				continue
			}
			c.result.Migrated++
		}
	}
	return nil
}
