package migration

import (
	"context"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
)

// MigratePaymentReturns migrates finished legacy returns of payments that are
// already migrated.
func (e *Engine) MigratePaymentReturns(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MigratePaymentReturns", models.KindPaymentReturn)
	defer span.End()
	return e.runKind(ctx, models.KindPaymentReturn, e.prepareReturns)
}

func (e *Engine) prepareReturns(ctx context.Context, _ *chunk) (prepared, error) {
	scope := e.scope()
	payments, err := e.store.MigratedRemoteIds(ctx, scope, models.KindPayment, nil)
	if err != nil || len(payments) == 0 {
		return prepared{}, err
	}
	moveLines, err := e.reader.SearchIds(ctx, remote.ModelMoveLine, remote.In("payment_id", payments))
	if err != nil || len(moveLines) == 0 {
		return prepared{}, err
	}
	lines, err := e.reader.SearchRead(ctx, remote.ModelPaymentReturnLine, remote.In("move_line_ids", moveLines), []string{"id", "return_id"})
	if err != nil {
		return prepared{}, err
	}
	returnIds := rowRefs(lines, "return_id")
	if len(returnIds) == 0 {
		return prepared{}, nil
	}
	candidates, err := e.reader.SearchIds(ctx, remote.ModelPaymentReturn,
		remote.And(remote.In("id", returnIds), remote.Eq("state", "done")), remote.Order("id asc"))
	if err != nil {
		return prepared{}, err
	}
	migrated, err := e.store.MigratedRemoteIds(ctx, scope, models.KindPaymentReturn, candidates)
	if err != nil {
		return prepared{}, err
	}
	return prepared{sets: []workSet{{RemoteIds: utils.Difference(candidates, migrated)}}}, nil
}

func (e *Engine) returnChunk(ctx context.Context, c *chunk) error {
	returns, bad, err := remote.PaymentReturnSpec.Read(ctx, e.reader, c.task.RemoteIds)
	if err != nil {
		return err
	}
	e.failDecoded(ctx, c, models.KindPaymentReturn, bad)
	if len(returns) == 0 {
		return nil
	}

	lines, badLines, lineRows, err := readChildren(ctx, e.reader, remote.PaymentReturnLineSpec,
		remote.In("return_id", idsOf(returns, func(r remote.PaymentReturn) int { return r.ID })))
	if err != nil {
		return err
	}
	broken := map[int]error{}
	lineReturn := owners(lineRows, "return_id")
	for _, b := range badLines {
		if r := lineReturn[b.RemoteId]; r > 0 {
			broken[r] = b
		}
	}

	// legacy payment given back by each return, through its move lines
	var moveLineIds []int
	for _, l := range lines {
		moveLineIds = append(moveLineIds, l.MoveLineIds...)
	}
	paymentOfMove := map[int]int{}
	if len(moveLineIds) > 0 {
		moves, _, err := remote.MoveLineSpec.Read(ctx, e.reader, utils.UniqueSlice(moveLineIds))
		if err != nil {
			return err
		}
		for _, m := range moves {
			paymentOfMove[m.ID] = m.Payment.ID
		}
	}
	returned := map[int]int{}
	for _, l := range lines {
		if _, ok := returned[l.Return.ID]; ok {
			continue
		}
		for _, mid := range l.MoveLineIds {
			if pid := paymentOfMove[mid]; pid > 0 {
				returned[l.Return.ID] = pid
				break
			}
		}
	}
	paymentIds := make([]int, 0, len(returned))
	for _, pid := range returned {
		paymentIds = append(paymentIds, pid)
	}
	legacyPayments := map[int]remote.Payment{}
	if len(paymentIds) > 0 {
		ps, _, err := remote.PaymentSpec.Read(ctx, e.reader, utils.UniqueSlice(paymentIds))
		if err != nil {
			return err
		}
		for _, p := range ps {
			legacyPayments[p.ID] = p
		}
	}

	done, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindPaymentReturn, c.task.RemoteIds)
	if err != nil {
		return err
	}
	migrated := intSet(done)

	for _, r := range returns {
		if migrated[r.ID] {
			c.result.Skipped++
			continue
		}
		if berr, ok := broken[r.ID]; ok {
			e.fail(ctx, c, models.KindPaymentReturn, r.ID, berr)
			continue
		}
		b := mapper.ReturnBundle{Return: r}
		for _, l := range lines {
			if l.Return.ID == r.ID {
				b.Lines = append(b.Lines, l)
			}
		}
		if p, ok := legacyPayments[returned[r.ID]]; ok {
			b.ReturnedPayment = &p
		}
		out, err := mapper.MapPaymentReturn(ctx, c.deps, b)
		if err != nil {
			e.fail(ctx, c, models.KindPaymentReturn, r.ID, err)
			continue
		}
		if b.ReturnedPayment != nil {
			out.ReturnedPaymentId, err = e.localPayment(ctx, b.ReturnedPayment.ID)
			if err != nil {
				e.fail(ctx, c, models.KindPaymentReturn, r.ID, err)
				continue
			}
		}
		if err := e.db.WithContext(ctx).Create(out).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				c.result.Skipped++
				e.logRecord(ctx, c, models.KindPaymentReturn, r.ID, models.LogCodeDuplicateRetry, models.LogSeverityInfo, "return already written by another task", nil)
				continue
			}
			e.fail(ctx, c, models.KindPaymentReturn, r.ID, err)
			continue
		}
		c.result.Migrated++
	}
	return nil
}

// localPayment finds the bank payment of a legacy payment's source leg. Cash
// legs have no payment row and yield nil.
func (e *Engine) localPayment(ctx context.Context, remoteId int) (*int, error) {
	var ids []int
	err := e.db.WithContext(ctx).Model(&models.Payment{}).
		Where("property_id = ? AND remote_id = ? AND remote_leg = ?", e.run.PropertyId, remoteId, models.LegSource).
		Limit(1).Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return &ids[0], nil
}
