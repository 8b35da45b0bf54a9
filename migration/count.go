package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
)

const countCacheTTL = 10 * time.Minute

// RemoteCount is the legacy side of one kind's counters.
type RemoteCount struct {
	Kind   models.EntityKind `json:"kind"`
	Total  int               `json:"total"`
	Target int               `json:"target"`
}

func (e *Engine) countCacheKey() string {
	return fmt.Sprintf("hotel-migration:run:%d:counts:%t", e.run.ID, e.final)
}

type countQuery struct {
	kind   models.EntityKind
	model  string
	total  remote.Domain
	target remote.Domain
}

func (e *Engine) countQueries() []countQuery {
	documented := remote.Or(remote.Cond("vat", "!=", false), remote.Cond("document_number", "!=", false))
	written := e.window("write_date")
	return []countQuery{
		{models.KindPartner, remote.ModelPartner, remote.Domain{}, documented},
		{models.KindFolio, remote.ModelFolio, remote.Domain{}, e.folioDomain()},
		{models.KindReservation, remote.ModelReservation, remote.Domain{}, written},
		{models.KindCheckin, remote.ModelCheckinPartner, remote.Domain{}, written},
		{models.KindService, remote.ModelService, remote.Domain{}, written},
		{models.KindPayment, remote.ModelPayment, remote.Domain{}, e.paymentDomain(nil)},
		{models.KindPaymentReturn, remote.ModelPaymentReturn, remote.Domain{}, remote.And(written, remote.Eq("state", "done"))},
		{models.KindInvoice, remote.ModelInvoice, remote.Domain{}, e.invoiceDomain()},
		{models.KindUser, remote.ModelUser, remote.ActiveAny(), remote.ActiveAny()},
		{models.KindPricelist, remote.ModelPricelist, remote.ActiveAny(), remote.ActiveAny()},
		{models.KindRoomTypeClass, remote.ModelRoomTypeClass, remote.ActiveAny(), remote.ActiveAny()},
		{models.KindRoomType, remote.ModelRoomType, remote.ActiveAny(), remote.ActiveAny()},
		{models.KindRoom, remote.ModelRoom, remote.ActiveAny(), remote.ActiveAny()},
		{models.KindBoardService, remote.ModelBoardService, remote.Domain{}, remote.Domain{}},
		{models.KindBoardServiceRoomType, remote.ModelBoardServiceRoomType, remote.Domain{}, remote.Domain{}},
		{models.KindJournal, remote.ModelJournal, remote.ActiveAny(), remote.ActiveAny()},
	}
}

// remoteCounts asks the legacy server for totals, through the run's redis
// cache when one is configured.
func (e *Engine) remoteCounts(ctx context.Context) ([]RemoteCount, error) {
	var cached []RemoteCount
	if ok, err := config.GetRedisObject(ctx, e.countCacheKey(), &cached); err == nil && ok {
		return cached, nil
	}

	var out []RemoteCount
	for _, q := range e.countQueries() {
		total, err := e.reader.Count(ctx, q.model, q.total)
		if err != nil {
			return nil, err
		}
		target, err := e.reader.Count(ctx, q.model, q.target)
		if err != nil {
			return nil, err
		}
		out = append(out, RemoteCount{Kind: q.kind, Total: total, Target: target})
	}

	// room type products are not migrated as products
	roomTypes, _, err := remote.RoomTypeSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
	if err != nil {
		return nil, err
	}
	var roomProducts []int
	for _, rt := range roomTypes {
		if rt.Product.IsSet() {
			roomProducts = append(roomProducts, rt.Product.ID)
		}
	}
	products, err := e.reader.Count(ctx, remote.ModelProduct, remote.And(remote.ActiveAny(), remote.NotIn("id", roomProducts)))
	if err != nil {
		return nil, err
	}
	out = append(out, RemoteCount{Kind: models.KindProduct, Total: products, Target: products})

	if err := config.SetRedisObject(ctx, e.countCacheKey(), out, countCacheTTL); err != nil {
		config.LogWarning(e.logger, moduleName, "remoteCounts", "cache counts", nil, err.Error())
	}
	return out, nil
}

// CountRemote refreshes total, target, migrated and unmapped counters of every
// kind without changing phases.
func (e *Engine) CountRemote(ctx context.Context) ([]models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "CountRemote", "")
	defer span.End()

	counts, err := e.remoteCounts(ctx)
	if err != nil {
		return nil, err
	}
	scope := e.scope()
	now := e.now()
	for _, rc := range counts {
		migrated, err := e.store.MigratedCount(ctx, scope, rc.Kind)
		if err != nil {
			return nil, err
		}
		unmapped, err := e.store.UnmappedCount(ctx, scope, rc.Kind)
		if err != nil {
			return nil, err
		}
		p, err := e.progress(ctx, rc.Kind)
		if err != nil {
			return nil, err
		}
		err = e.db.WithContext(ctx).Model(&models.MigrationProgress{}).Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"total":          rc.Total,
				"target":         rc.Target,
				"migrated":       migrated,
				"unmapped_local": unmapped,
				"last_count_at":  now,
			}).Error
		if err != nil {
			return nil, err
		}
	}
	return e.Progress(ctx)
}
