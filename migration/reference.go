package migration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"gorm.io/gorm"
)

// Suffixes given to the mapping name of inactive legacy records.
const (
	obsoleteSuffix     = " (Obsoleta)"
	obsoleteSuffixMale = " (Obsoleto)"
)

// legacy logins that are templates, never people
var skippedLogins = map[string]bool{"default": true, "portaltemplate": true, "public": true}

// backendRemoteUser is the legacy superuser, mapped to the run's backend user.
const backendRemoteUser = 1

// ChannelType is a legacy channel-type code and the local sale channel name it maps to.
type ChannelType struct {
	Code string
	Name string
}

var ChannelTypes = []ChannelType{
	{"door", "Puerta"},
	{"mail", "Mail"},
	{"phone", "Telefono"},
	{"call", "Call Center"},
	{"web", "Website"},
	{"agency", "Agencia"},
	{"operator", "Touroperador"},
	{"virtualdoor", "Virtual Door"},
	{"detour", "Desvío"},
}

func displayName(name string, active bool, suffix string) string {
	if active {
		return name
	}
	return name + suffix
}

// matchIds returns the ids of local rows of model matching the condition.
func matchIds(ctx context.Context, db *gorm.DB, model any, query string, args ...any) (identity.Resolution, error) {
	var ids []int
	if err := db.WithContext(ctx).Model(model).Where(query, args...).Order("id").Pluck("id", &ids).Error; err != nil {
		return identity.Resolution{}, err
	}
	return identity.FromCandidates(ids), nil
}

// recordRef stores a reference mapping and counts it. Ambiguous and missing
// matches are stored without a local record.
func (e *Engine) recordRef(ctx context.Context, c *chunk, kind models.EntityKind, remoteId int, localId *int, name string) {
	if err := e.store.RecordMapping(ctx, e.scope(), kind, remoteId, localId, name); err != nil {
		e.fail(ctx, c, kind, remoteId, err)
		return
	}
	c.result.Migrated++
}

// pending drops the remote ids of kind that already have a mapping.
func pending[T any](ctx context.Context, e *Engine, c *chunk, kind models.EntityKind, records []T, id func(T) int) ([]T, error) {
	done, err := e.store.MigratedRemoteIds(ctx, e.scope(), kind, idsOf(records, id))
	if err != nil {
		return nil, err
	}
	skip := intSet(done)
	out := make([]T, 0, len(records))
	for _, r := range records {
		if skip[id(r)] {
			c.result.Skipped++
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ImportUsers maps legacy users to local users by login. The legacy
// superuser maps to the backend user; unknown logins are recorded without a
// local user so they fall back to the backend user.
func (e *Engine) ImportUsers(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportUsers", models.KindUser)
	defer span.End()
	return e.simpleKind(ctx, models.KindUser, func(ctx context.Context, c *chunk) error {
		users, bad, err := remote.UserSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindUser, bad)
		users, err = pending(ctx, e, c, models.KindUser, users, func(u remote.User) int { return u.ID })
		if err != nil {
			return err
		}
		for _, u := range users {
			if skippedLogins[u.Login] {
				c.result.Skipped++
				continue
			}
			var localId *int
			if u.ID == backendRemoteUser {
				localId = e.run.BackendUserId
			} else {
				res, err := matchIds(ctx, e.db, &models.User{}, "login = ?", u.Login)
				if err != nil {
					return err
				}
				localId = res.Ptr()
			}
			e.recordRef(ctx, c, models.KindUser, u.ID, localId, u.Login)
		}
		return nil
	})
}

func (e *Engine) ImportPricelists(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportPricelists", models.KindPricelist)
	defer span.End()
	return e.simpleKind(ctx, models.KindPricelist, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.PricelistSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindPricelist, bad)
		records, err = pending(ctx, e, c, models.KindPricelist, records, func(r remote.Pricelist) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			res, err := matchIds(ctx, e.db, &models.Pricelist{}, "name = ?", r.Name)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindPricelist, r.ID, res.Ptr(), displayName(r.Name, r.Active, obsoleteSuffix))
		}
		return nil
	})
}

func (e *Engine) ImportRoomTypeClasses(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportRoomTypeClasses", models.KindRoomTypeClass)
	defer span.End()
	return e.simpleKind(ctx, models.KindRoomTypeClass, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.RoomTypeClassSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindRoomTypeClass, bad)
		records, err = pending(ctx, e, c, models.KindRoomTypeClass, records, func(r remote.RoomTypeClass) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			res, err := matchIds(ctx, e.db, &models.RoomTypeClass{}, "name = ? OR (default_code <> '' AND default_code = ?)", r.Name, r.CodeClass)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindRoomTypeClass, r.ID, res.Ptr(), displayName(r.Name, r.Active, obsoleteSuffix))
		}
		return nil
	})
}

// ErrRoomTypeClassesMissing is returned by ImportRoomTypes before room type
// classes were imported.
var ErrRoomTypeClassesMissing = errors.New("import room type classes before room types")

func (e *Engine) ImportRoomTypes(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportRoomTypes", models.KindRoomType)
	defer span.End()
	classes, err := e.store.MigratedCount(ctx, e.scope(), models.KindRoomTypeClass)
	if err != nil {
		return nil, err
	}
	if classes == 0 {
		return nil, ErrRoomTypeClassesMissing
	}
	return e.simpleKind(ctx, models.KindRoomType, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.RoomTypeSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindRoomType, bad)
		records, err = pending(ctx, e, c, models.KindRoomType, records, func(r remote.RoomType) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			res, err := matchIds(ctx, e.db, &models.RoomType{}, "name = ? OR (default_code <> '' AND default_code = ?)", r.Name, r.CodeType)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindRoomType, r.ID, res.Ptr(), displayName(r.Name, r.Active, obsoleteSuffix))
		}
		return nil
	})
}

// roomNumber returns the only numeric token of a room name, or "".
func roomNumber(name string) string {
	var found []string
	for _, tok := range strings.Fields(name) {
		if n, err := strconv.Atoi(tok); err == nil && n >= 0 {
			found = append(found, strconv.Itoa(n))
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return ""
}

// ImportRooms matches legacy rooms by name or by room number inside the
// property. Unmatched rooms are created when the run allows it.
func (e *Engine) ImportRooms(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportRooms", models.KindRoom)
	defer span.End()
	return e.simpleKind(ctx, models.KindRoom, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.RoomSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindRoom, bad)
		records, err = pending(ctx, e, c, models.KindRoom, records, func(r remote.Room) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			clean := r.Name
			if !r.SharedRoom.IsSet() {
				clean = roomNumber(r.Name)
			}
			res, err := matchIds(ctx, e.db, &models.Room{}, "property_id = ? AND (name = ? OR name = ?)", e.run.PropertyId, r.Name, clean)
			if err != nil {
				return err
			}
			name := displayName(r.Name, r.Active, obsoleteSuffix)
			if res.Status != identity.NotFound || !e.run.AutoCreateRooms {
				e.recordRef(ctx, c, models.KindRoom, r.ID, res.Ptr(), name)
				continue
			}

			roomType, err := c.deps.Resolver.Resolve(ctx, models.KindRoomType, r.RoomType.ID)
			if err != nil {
				return err
			}
			if !roomType.IsFound() {
				e.fail(ctx, c, models.KindRoom, r.ID, fmt.Errorf("room type %q is not mapped", r.RoomType.Name))
				continue
			}
			room := models.Room{
				PropertyId: e.run.PropertyId,
				Name:       r.Name,
				RoomTypeId: roomType.LocalId,
				Capacity:   r.Capacity,
				Active:     r.Active,
			}
			if clean != "" {
				room.Name = clean
			}
			if room.Capacity <= 0 {
				room.Capacity = 1
			}
			err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Create(&room).Error; err != nil {
					return err
				}
				if r.Active {
					return nil
				}
				// active defaults to true on insert
				return tx.Model(&room).Update("active", false).Error
			})
			if err != nil {
				e.fail(ctx, c, models.KindRoom, r.ID, err)
				continue
			}
			e.recordRef(ctx, c, models.KindRoom, r.ID, &room.ID, name)
		}
		return nil
	})
}

// roomTypeProducts lists the legacy products behind room types; they are
// never migrated as products.
func (e *Engine) roomTypeProducts(ctx context.Context) (map[int]bool, error) {
	roomTypes, _, err := remote.RoomTypeSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
	if err != nil {
		return nil, err
	}
	out := map[int]bool{}
	for _, rt := range roomTypes {
		if rt.Product.IsSet() {
			out[rt.Product.ID] = true
		}
	}
	return out, nil
}

// ImportProducts matches legacy products by name. Inactive unmatched
// products map to the dummy product; active ones are created when the run
// allows it.
func (e *Engine) ImportProducts(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportProducts", models.KindProduct)
	defer span.End()
	return e.simpleKind(ctx, models.KindProduct, func(ctx context.Context, c *chunk) error {
		discard, err := e.roomTypeProducts(ctx)
		if err != nil {
			return err
		}
		records, bad, err := remote.ProductSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindProduct, bad)
		kept := records[:0]
		for _, r := range records {
			if !discard[r.ID] {
				kept = append(kept, r)
			}
		}
		records, err = pending(ctx, e, c, models.KindProduct, kept, func(r remote.Product) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			name := displayName(r.Name, r.Active, obsoleteSuffixMale)
			res, err := matchIds(ctx, e.db, &models.Product{}, "name = ?", r.Name)
			if err != nil {
				return err
			}
			switch {
			case res.Status != identity.NotFound:
				e.recordRef(ctx, c, models.KindProduct, r.ID, res.Ptr(), name)
			case !r.Active:
				e.recordRef(ctx, c, models.KindProduct, r.ID, e.run.DummyProductId, name)
			case e.run.AutoCreateProducts:
				p := models.Product{
					Name:        r.Name,
					DefaultCode: r.DefaultCode,
					PerDay:      r.PerDay,
					PerPerson:   r.PerPerson,
					ConsumedOn:  r.ConsumedOn,
					ListPrice:   r.ListPrice,
					Active:      true,
				}
				if p.ConsumedOn == "" {
					p.ConsumedOn = models.ConsumedOnBefore
				}
				if err := e.db.WithContext(ctx).Create(&p).Error; err != nil {
					e.fail(ctx, c, models.KindProduct, r.ID, err)
					continue
				}
				e.recordRef(ctx, c, models.KindProduct, r.ID, &p.ID, name)
			default:
				e.recordRef(ctx, c, models.KindProduct, r.ID, nil, name)
			}
		}
		return nil
	})
}

func (e *Engine) ImportBoardServices(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportBoardServices", models.KindBoardService)
	defer span.End()
	return e.simpleKind(ctx, models.KindBoardService, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.BoardServiceSpec.SearchRead(ctx, e.reader, remote.Domain{})
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindBoardService, bad)
		records, err = pending(ctx, e, c, models.KindBoardService, records, func(r remote.BoardService) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			res, err := matchIds(ctx, e.db, &models.BoardService{}, "name = ?", r.Name)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindBoardService, r.ID, res.Ptr(), r.Name)
		}
		return nil
	})
}

// ImportBoardServiceRoomTypes matches board service assignments through the
// mapped room type and board service. A missing mapping of either fails the
// record.
func (e *Engine) ImportBoardServiceRoomTypes(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportBoardServiceRoomTypes", models.KindBoardServiceRoomType)
	defer span.End()
	return e.simpleKind(ctx, models.KindBoardServiceRoomType, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.BoardServiceRoomTypeSpec.SearchRead(ctx, e.reader, remote.Domain{})
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindBoardServiceRoomType, bad)
		records, err = pending(ctx, e, c, models.KindBoardServiceRoomType, records, func(r remote.BoardServiceRoomType) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			roomType, err := c.deps.Resolver.Resolve(ctx, models.KindRoomType, r.RoomType.ID)
			if err != nil {
				return err
			}
			if !roomType.IsFound() {
				e.fail(ctx, c, models.KindBoardServiceRoomType, r.ID, fmt.Errorf("room type %q is not mapped", r.RoomType.Name))
				continue
			}
			board, err := c.deps.Resolver.Resolve(ctx, models.KindBoardService, r.BoardService.ID)
			if err != nil {
				return err
			}
			if !board.IsFound() {
				e.fail(ctx, c, models.KindBoardServiceRoomType, r.ID, fmt.Errorf("board service %q is not mapped", r.BoardService.Name))
				continue
			}
			res, err := matchIds(ctx, e.db, &models.BoardServiceRoomType{}, "board_service_id = ? AND room_type_id = ?", board.LocalId, roomType.LocalId)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindBoardServiceRoomType, r.ID, res.Ptr(), r.Name)
		}
		return nil
	})
}

// ImportJournals matches legacy journals by name among the property's journals.
func (e *Engine) ImportJournals(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportJournals", models.KindJournal)
	defer span.End()
	return e.simpleKind(ctx, models.KindJournal, func(ctx context.Context, c *chunk) error {
		records, bad, err := remote.JournalSpec.SearchRead(ctx, e.reader, remote.ActiveAny())
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindJournal, bad)
		records, err = pending(ctx, e, c, models.KindJournal, records, func(r remote.Journal) int { return r.ID })
		if err != nil {
			return err
		}
		for _, r := range records {
			res, err := matchIds(ctx, e.db, &models.Journal{}, "property_id = ? AND name = ?", e.run.PropertyId, r.Name)
			if err != nil {
				return err
			}
			e.recordRef(ctx, c, models.KindJournal, r.ID, res.Ptr(), displayName(r.Name, r.Active, obsoleteSuffixMale))
		}
		return nil
	})
}

// ImportChannelTypes maps the fixed legacy channel-type codes to local sale
// channels by name.
func (e *Engine) ImportChannelTypes(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "ImportChannelTypes", models.KindChannelType)
	defer span.End()
	return e.simpleKind(ctx, models.KindChannelType, func(ctx context.Context, c *chunk) error {
		existing, err := e.store.Mappings(ctx, e.scope(), models.KindChannelType)
		if err != nil {
			return err
		}
		known := map[string]bool{}
		for _, m := range existing {
			known[m.RemoteKey] = true
		}
		for _, ch := range ChannelTypes {
			if known[ch.Code] {
				c.result.Skipped++
				continue
			}
			res, err := matchIds(ctx, e.db, &models.SaleChannel{}, "name = ?", ch.Name)
			if err != nil {
				return err
			}
			if err := e.store.RecordKeyedMapping(ctx, e.scope(), models.KindChannelType, ch.Code, 0, res.Ptr(), ch.Code, map[string]string{"sale_channel": ch.Name}); err != nil {
				e.fail(ctx, c, models.KindChannelType, 0, err)
				continue
			}
			c.result.Migrated++
		}
		return nil
	})
}
