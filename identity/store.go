package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
)

// Scope pins lookups to one run and the property it migrates into.
type Scope struct {
	RunId      int
	PropertyId int
}

// lookupBatch bounds IN lists sent to the database.
const lookupBatch = 1000

// Store is the identity map. Kinds listed in models.EmbeddedKinds are answered
// from the remote_id column of the local table; every other kind lives in
// identity_mappings.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *gorm.DB { return s.db }

type embeddedTable struct {
	model any
	legs  []string
}

func embeddedTables(kind models.EntityKind) []embeddedTable {
	switch kind {
	case models.KindFolio:
		return []embeddedTable{{model: &models.Folio{}}}
	case models.KindReservation:
		return []embeddedTable{{model: &models.Reservation{}}}
	case models.KindCheckin:
		return []embeddedTable{{model: &models.Checkin{}}}
	case models.KindService:
		return []embeddedTable{{model: &models.Service{}}}
	case models.KindInvoice:
		return []embeddedTable{{model: &models.Invoice{}}}
	case models.KindPayment:
		// bank legs are payments, cash legs are statement lines
		return []embeddedTable{
			{model: &models.Payment{}, legs: []string{models.LegSource}},
			{model: &models.StatementLine{}, legs: []string{models.LegSource}},
		}
	case models.KindPaymentReturn:
		return []embeddedTable{{model: &models.Payment{}, legs: []string{models.LegReturn}}}
	}
	return nil
}

type remoteRow struct {
	ID       int
	RemoteId int
}

func (s *Store) embeddedRows(ctx context.Context, scope Scope, kind models.EntityKind, remoteIds []int) ([]remoteRow, error) {
	var out []remoteRow
	for _, t := range embeddedTables(kind) {
		query := func(ids []int) error {
			var rows []remoteRow
			q := s.db.WithContext(ctx).Model(t.model).
				Select("id, remote_id").
				Where("property_id = ? AND remote_id IS NOT NULL", scope.PropertyId)
			if ids != nil {
				q = q.Where("remote_id IN ?", ids)
			}
			if len(t.legs) > 0 {
				q = q.Where("remote_leg IN ?", t.legs)
			}
			if err := q.Order("id").Scan(&rows).Error; err != nil {
				return err
			}
			out = append(out, rows...)
			return nil
		}
		if remoteIds == nil {
			if err := query(nil); err != nil {
				return nil, err
			}
			continue
		}
		for _, chunk := range utils.Chunk(remoteIds, lookupBatch) {
			if err := query(chunk); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) mappingRows(ctx context.Context, scope Scope, kind models.EntityKind, keys []string) ([]models.IdentityMapping, error) {
	var out []models.IdentityMapping
	query := func(keys []string) error {
		var rows []models.IdentityMapping
		q := s.db.WithContext(ctx).Where("run_id = ? AND kind = ?", scope.RunId, kind)
		if keys != nil {
			q = q.Where("remote_key IN ?", keys)
		}
		if err := q.Order("id").Find(&rows).Error; err != nil {
			return err
		}
		out = append(out, rows...)
		return nil
	}
	if keys == nil {
		return out, query(nil)
	}
	for _, chunk := range utils.Chunk(keys, lookupBatch) {
		if err := query(chunk); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LookupMany resolves several remote ids of one kind at once.
func (s *Store) LookupMany(ctx context.Context, scope Scope, kind models.EntityKind, remoteIds []int) (map[int]Resolution, error) {
	out := make(map[int]Resolution, len(remoteIds))
	if len(remoteIds) == 0 {
		return out, nil
	}
	if models.EmbeddedKinds[kind] {
		rows, err := s.embeddedRows(ctx, scope, kind, remoteIds)
		if err != nil {
			return nil, err
		}
		if kind == models.KindPayment {
			// a cash leg only exists as a statement line; the payment row wins when both exist
			rows = firstPerRemote(rows)
		}
		found := map[int][]int{}
		for _, r := range rows {
			found[r.RemoteId] = append(found[r.RemoteId], r.ID)
		}
		for _, id := range remoteIds {
			out[id] = FromCandidates(found[id])
		}
		return out, nil
	}

	keys := make([]string, 0, len(remoteIds))
	for _, id := range remoteIds {
		keys = append(keys, models.RemoteKeyFromId(id))
	}
	rows, err := s.mappingRows(ctx, scope, kind, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.IdentityMapping, len(rows))
	for _, r := range rows {
		byKey[r.RemoteKey] = r
	}
	for _, id := range remoteIds {
		m, ok := byKey[models.RemoteKeyFromId(id)]
		out[id] = mappingResolution(m, ok)
	}
	return out, nil
}

func firstPerRemote(rows []remoteRow) []remoteRow {
	seen := map[int]bool{}
	out := make([]remoteRow, 0, len(rows))
	for _, r := range rows {
		if seen[r.RemoteId] {
			continue
		}
		seen[r.RemoteId] = true
		out = append(out, r)
	}
	return out
}

func mappingResolution(m models.IdentityMapping, ok bool) Resolution {
	if !ok {
		return Unresolved()
	}
	if m.LocalId == nil {
		return Resolution{Status: NotFound, Known: true}
	}
	return Resolved(*m.LocalId)
}

// LookupLocal resolves one remote id of kind.
func (s *Store) LookupLocal(ctx context.Context, scope Scope, kind models.EntityKind, remoteId int) (Resolution, error) {
	res, err := s.LookupMany(ctx, scope, kind, []int{remoteId})
	if err != nil {
		return Resolution{}, err
	}
	return res[remoteId], nil
}

// LookupKey resolves a mapping keyed by something other than a remote id,
// e.g. a legacy channel-type code.
func (s *Store) LookupKey(ctx context.Context, scope Scope, kind models.EntityKind, key string) (Resolution, error) {
	rows, err := s.mappingRows(ctx, scope, kind, []string{key})
	if err != nil {
		return Resolution{}, err
	}
	if len(rows) == 0 {
		return Unresolved(), nil
	}
	return mappingResolution(rows[0], true), nil
}

// RecordMapping stores remoteId -> localId for a side-table kind. localId may
// be nil to record a remote record that deliberately has no local counterpart.
func (s *Store) RecordMapping(ctx context.Context, scope Scope, kind models.EntityKind, remoteId int, localId *int, name string) error {
	return s.RecordKeyedMapping(ctx, scope, kind, models.RemoteKeyFromId(remoteId), remoteId, localId, name, nil)
}

// RecordKeyedMapping creates the mapping if absent. An existing row keeps its
// local id unless it had none; its name and sync time are refreshed.
func (s *Store) RecordKeyedMapping(ctx context.Context, scope Scope, kind models.EntityKind, key string, remoteId int, localId *int, name string, metadata any) error {
	if models.EmbeddedKinds[kind] {
		return fmt.Errorf("kind %s keeps remote_id on the local record", kind)
	}
	if key == "" {
		return errors.New("mapping key is required")
	}
	now := s.now()
	upsert := func() error {
		var existing models.IdentityMapping
		err := s.db.WithContext(ctx).
			Where("run_id = ? AND kind = ? AND remote_key = ?", scope.RunId, kind, key).
			First(&existing).Error
		if err == nil {
			updates := map[string]any{"remote_name": name, "last_sync_at": now}
			if existing.LocalId == nil && localId != nil {
				updates["local_id"] = *localId
			}
			if metadata != nil {
				updates["metadata"] = utils.ToJSONColumn(metadata)
			}
			return s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return s.db.WithContext(ctx).Create(&models.IdentityMapping{
			RunId:      scope.RunId,
			Kind:       kind,
			RemoteKey:  key,
			RemoteId:   remoteId,
			LocalId:    localId,
			RemoteName: name,
			Metadata:   utils.ToJSONColumn(metadata),
			LastSyncAt: now,
		}).Error
	}
	err := upsert()
	if utils.IsDuplicateKeyError(err) {
		// another worker inserted the same key first
		err = upsert()
	}
	return err
}

// IsMigrated reports whether remoteId was already handled in this run,
// including mappings recorded without a local record.
func (s *Store) IsMigrated(ctx context.Context, scope Scope, kind models.EntityKind, remoteId int) (bool, error) {
	ids, err := s.MigratedRemoteIds(ctx, scope, kind, []int{remoteId})
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// MigratedRemoteIds returns which of candidates are already migrated. A nil
// candidates slice returns every migrated remote id of kind.
func (s *Store) MigratedRemoteIds(ctx context.Context, scope Scope, kind models.EntityKind, candidates []int) ([]int, error) {
	if candidates != nil && len(candidates) == 0 {
		return []int{}, nil
	}
	var ids []int
	if models.EmbeddedKinds[kind] {
		rows, err := s.embeddedRows(ctx, scope, kind, candidates)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			ids = append(ids, r.RemoteId)
		}
	} else {
		var keys []string
		if candidates != nil {
			keys = make([]string, 0, len(candidates))
			for _, id := range candidates {
				keys = append(keys, models.RemoteKeyFromId(id))
			}
		}
		rows, err := s.mappingRows(ctx, scope, kind, keys)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.RemoteId > 0 {
				ids = append(ids, r.RemoteId)
			} else if n, err := strconv.Atoi(r.RemoteKey); err == nil {
				ids = append(ids, n)
			}
		}
	}
	return utils.UniqueSlice(ids), nil
}

// MigratedCount counts distinct migrated remote records of kind.
func (s *Store) MigratedCount(ctx context.Context, scope Scope, kind models.EntityKind) (int, error) {
	if models.EmbeddedKinds[kind] {
		ids, err := s.MigratedRemoteIds(ctx, scope, kind, nil)
		return len(ids), err
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.IdentityMapping{}).
		Where("run_id = ? AND kind = ?", scope.RunId, kind).
		Count(&n).Error
	return int(n), err
}

// UnmappedCount counts mappings of kind recorded without a local record.
func (s *Store) UnmappedCount(ctx context.Context, scope Scope, kind models.EntityKind) (int, error) {
	if models.EmbeddedKinds[kind] {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.IdentityMapping{}).
		Where("run_id = ? AND kind = ? AND local_id IS NULL", scope.RunId, kind).
		Count(&n).Error
	return int(n), err
}

// Mappings lists every mapping of a side-table kind.
func (s *Store) Mappings(ctx context.Context, scope Scope, kind models.EntityKind) ([]models.IdentityMapping, error) {
	return s.mappingRows(ctx, scope, kind, nil)
}

// LocalIdsByRemote is Mappings reduced to remote id -> local id, skipping
// mappings without a local record.
func (s *Store) LocalIdsByRemote(ctx context.Context, scope Scope, kind models.EntityKind) (map[int]int, error) {
	rows, err := s.Mappings(ctx, scope, kind)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		if r.LocalId != nil && r.RemoteId > 0 {
			out[r.RemoteId] = *r.LocalId
		}
	}
	return out, nil
}
