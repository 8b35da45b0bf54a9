package migration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigrateFolios migrates folios with reservations or services inside the run
// window. A non-empty ids restricts the candidates to those remote folios.
func (e *Engine) MigrateFolios(ctx context.Context, ids []int) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MigrateFolios", models.KindFolio)
	defer span.End()
	return e.runKind(ctx, models.KindFolio, func(ctx context.Context, _ *chunk) (prepared, error) {
		return e.prepareFolios(ctx, ids)
	})
}

func (e *Engine) folioDomain() remote.Domain {
	return remote.And(
		e.window("write_date"),
		remote.Or(remote.Cond("room_lines", "!=", false), remote.Cond("service_ids", "!=", false)),
	)
}

func (e *Engine) prepareFolios(ctx context.Context, ids []int) (prepared, error) {
	domain := e.folioDomain()
	if len(ids) > 0 {
		domain = remote.And(domain, remote.In("id", ids))
	}
	candidates, err := e.reader.SearchIds(ctx, remote.ModelFolio, domain, remote.Order("id asc"))
	if err != nil {
		return prepared{}, err
	}
	migrated, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindFolio, candidates)
	if err != nil {
		return prepared{}, err
	}
	return prepared{sets: []workSet{{RemoteIds: utils.Difference(candidates, migrated)}}}, nil
}

var ErrAlreadyMigrated = errors.New("already migrated")

// MigrateFolio migrates one folio by remote id or by name, outside any batch.
// Errors are returned instead of logged.
func (e *Engine) MigrateFolio(ctx context.Context, ref string) (*models.Folio, error) {
	ctx, span := e.start(ctx, "MigrateFolio", models.KindFolio)
	defer span.End()

	ref = strings.TrimSpace(ref)
	id, err := strconv.Atoi(ref)
	if err != nil {
		found, err := e.reader.SearchIds(ctx, remote.ModelFolio, remote.Eq("name", ref), remote.Limit(1))
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("legacy folio %q: %w", ref, utils.ErrorRecordNotFound)
		}
		id = found[0]
	}

	if done, err := e.store.IsMigrated(ctx, e.scope(), models.KindFolio, id); err != nil {
		return nil, err
	} else if done {
		return nil, fmt.Errorf("legacy folio %d: %w", id, ErrAlreadyMigrated)
	}

	bundles, failed, err := e.readFolioBundles(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	if ferr, ok := failed[id]; ok {
		return nil, ferr
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("legacy folio %d: %w", id, utils.ErrorRecordNotFound)
	}
	deps, err := e.deps(ctx)
	if err != nil {
		return nil, err
	}
	// one record: nothing to batch
	deps.Resolver = identity.NewStoreResolver(e.store, e.scope())
	folio, err := mapper.MapFolio(ctx, deps, bundles[0])
	if err != nil {
		return nil, err
	}
	if err := e.writeFolio(ctx, folio); err != nil {
		return nil, err
	}
	return folio, nil
}

func (e *Engine) folioChunk(ctx context.Context, c *chunk) error {
	bundles, failed, err := e.readFolioBundles(ctx, c.task.RemoteIds)
	if err != nil {
		return err
	}
	for id, ferr := range failed {
		e.fail(ctx, c, models.KindFolio, id, ferr)
	}
	done, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindFolio, c.task.RemoteIds)
	if err != nil {
		return err
	}
	migrated := intSet(done)

	for _, b := range bundles {
		id := b.Folio.ID
		if migrated[id] {
			c.result.Skipped++
			continue
		}
		folio, err := mapper.MapFolio(ctx, c.deps, b)
		if err != nil {
			e.fail(ctx, c, models.KindFolio, id, err)
			continue
		}
		if err := e.writeFolio(ctx, folio); err != nil {
			if utils.IsDuplicateKeyError(err) {
				c.result.Skipped++
				e.logRecord(ctx, c, models.KindFolio, id, models.LogCodeDuplicateRetry, models.LogSeverityInfo, "folio already written by another task", nil)
				continue
			}
			e.fail(ctx, c, models.KindFolio, id, err)
			continue
		}
		if folio.Incongruent {
			e.warn(ctx, c, models.KindFolio, id, models.LogCodeReconciliationWarning,
				fmt.Sprintf("folio %s total %s differs from legacy %s", folio.Name, folio.AmountTotal.StringFixed(2), folio.RemoteAmount.StringFixed(2)), nil)
		}
		c.result.Migrated++
	}
	return nil
}

// migrateFoliosInline migrates folios another kind depends on. The records
// are logged as folios under the caller's job; the caller's counters are left
// alone.
func (e *Engine) migrateFoliosInline(ctx context.Context, c *chunk, ids []int) (ChunkResult, error) {
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return ChunkResult{}, nil
	}
	fc := &chunk{task: c.task, deps: c.deps}
	fc.task.RemoteIds = ids
	err := e.folioChunk(ctx, fc)
	return fc.result, err
}

// readChildren search-reads a child model and keeps the raw rows so decode
// failures can be traced back to their folio.
func readChildren[T any](ctx context.Context, r remote.Reader, spec remote.Spec[T], domain remote.Domain) ([]T, []*remote.DecodeError, []remote.Row, error) {
	rows, err := r.SearchRead(ctx, spec.Model, domain, spec.Fields())
	if err != nil {
		return nil, nil, nil, err
	}
	recs, bad := spec.Decode(rows)
	return recs, bad, rows, nil
}

// readFolioBundles reads folios and everything they own in one call per
// child model. A child record that fails to decode fails its whole folio.
func (e *Engine) readFolioBundles(ctx context.Context, ids []int) ([]mapper.FolioBundle, map[int]error, error) {
	failed := map[int]error{}
	folios, bad, err := remote.FolioSpec.Read(ctx, e.reader, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range bad {
		failed[b.RemoteId] = b
	}
	if len(folios) == 0 {
		return nil, failed, nil
	}
	folioIds := idsOf(folios, func(f remote.Folio) int { return f.ID })

	reservations, bad, resRows, err := readChildren(ctx, e.reader, remote.ReservationSpec, remote.In("folio_id", folioIds))
	if err != nil {
		return nil, nil, err
	}
	resFolio := owners(resRows, "folio_id")
	blame := func(bad []*remote.DecodeError, folioOf func(id int) int) {
		for _, b := range bad {
			if f := folioOf(b.RemoteId); f > 0 {
				if _, ok := failed[f]; !ok {
					failed[f] = b
				}
			}
		}
	}
	blame(bad, func(id int) int { return resFolio[id] })

	resIds := make([]int, 0, len(resRows))
	for id := range resFolio {
		resIds = append(resIds, id)
	}
	viaReservation := func(rows []remote.Row) func(int) int {
		own := owners(rows, "reservation_id")
		return func(id int) int { return resFolio[own[id]] }
	}

	var (
		lines    []remote.ReservationLine
		checkins []remote.CheckinPartner
		bindings []remote.ReservationBinding
	)
	if len(resIds) > 0 {
		var rows []remote.Row
		lines, bad, rows, err = readChildren(ctx, e.reader, remote.ReservationLineSpec, remote.In("reservation_id", resIds))
		if err != nil {
			return nil, nil, err
		}
		blame(bad, viaReservation(rows))

		checkins, bad, rows, err = readChildren(ctx, e.reader, remote.CheckinPartnerSpec, remote.In("reservation_id", resIds))
		if err != nil {
			return nil, nil, err
		}
		blame(bad, viaReservation(rows))

		bindings, bad, rows, err = readChildren(ctx, e.reader, remote.ReservationBindingSpec, remote.In("odoo_id", resIds))
		if err != nil {
			return nil, nil, err
		}
		own := owners(rows, "odoo_id")
		blame(bad, func(id int) int { return resFolio[own[id]] })
	}

	services, bad, svcRows, err := readChildren(ctx, e.reader, remote.ServiceSpec, remote.In("folio_id", folioIds))
	if err != nil {
		return nil, nil, err
	}
	svcFolio := owners(svcRows, "folio_id")
	blame(bad, func(id int) int { return svcFolio[id] })

	var serviceLines []remote.ServiceLine
	if len(svcFolio) > 0 {
		svcIds := make([]int, 0, len(svcFolio))
		for id := range svcFolio {
			svcIds = append(svcIds, id)
		}
		var rows []remote.Row
		serviceLines, bad, rows, err = readChildren(ctx, e.reader, remote.ServiceLineSpec, remote.In("service_id", svcIds))
		if err != nil {
			return nil, nil, err
		}
		own := owners(rows, "service_id")
		blame(bad, func(id int) int { return svcFolio[own[id]] })
	}

	byFolio := make(map[int]*mapper.FolioBundle, len(folios))
	out := make([]mapper.FolioBundle, 0, len(folios))
	for _, f := range folios {
		if _, ok := failed[f.ID]; ok {
			continue
		}
		out = append(out, mapper.FolioBundle{Folio: f})
	}
	for i := range out {
		byFolio[out[i].Folio.ID] = &out[i]
	}
	for _, r := range reservations {
		if b, ok := byFolio[r.Folio.ID]; ok {
			b.Reservations = append(b.Reservations, r)
		}
	}
	for _, l := range lines {
		if b, ok := byFolio[resFolio[l.Reservation.ID]]; ok {
			b.Lines = append(b.Lines, l)
		}
	}
	for _, ci := range checkins {
		if b, ok := byFolio[resFolio[ci.Reservation.ID]]; ok {
			b.Checkins = append(b.Checkins, ci)
		}
	}
	for _, bd := range bindings {
		if b, ok := byFolio[resFolio[bd.Odoo.ID]]; ok {
			b.Bindings = append(b.Bindings, bd)
		}
	}
	for _, s := range services {
		if b, ok := byFolio[s.Folio.ID]; ok {
			b.Services = append(b.Services, s)
		}
	}
	for _, l := range serviceLines {
		if b, ok := byFolio[svcFolio[l.Service.ID]]; ok {
			b.ServiceLines = append(b.ServiceLines, l)
		}
	}
	return out, failed, nil
}

// writeFolio persists a mapped folio and everything under it in one
// transaction.
func (e *Engine) writeFolio(ctx context.Context, f *models.Folio) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(f).Error; err != nil {
			return err
		}
		for i := range f.Services {
			s := &f.Services[i]
			s.FolioId = f.ID
			if err := createService(tx, s); err != nil {
				return err
			}
		}
		for i := range f.Reservations {
			r := &f.Reservations[i]
			r.FolioId = f.ID
			if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
				return err
			}
			for j := range r.Lines {
				r.Lines[j].ReservationId = r.ID
			}
			if len(r.Lines) > 0 {
				if err := tx.Create(&r.Lines).Error; err != nil {
					return err
				}
			}
			for j := range r.Checkins {
				r.Checkins[j].ReservationId = r.ID
				r.Checkins[j].FolioId = f.ID
			}
			if len(r.Checkins) > 0 {
				if err := tx.Create(&r.Checkins).Error; err != nil {
					return err
				}
			}
			for j := range r.Services {
				s := &r.Services[j]
				s.FolioId = f.ID
				s.ReservationId = &r.ID
				if err := createService(tx, s); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func createService(tx *gorm.DB, s *models.Service) error {
	if err := tx.Omit(clause.Associations).Create(s).Error; err != nil {
		return err
	}
	for i := range s.Lines {
		s.Lines[i].ServiceId = s.ID
	}
	if len(s.Lines) == 0 {
		return nil
	}
	return tx.Create(&s.Lines).Error
}
