// Package migration orchestrates the legacy-to-local migration of one run:
// candidate selection, chunking, dispatch, per-record logging and progress.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const moduleName = "migration"

var tracer = otel.Tracer("hotel_migration/migration")

// Engine runs operator commands for one migration run. It owns the remote
// session; nothing in the package reaches for a global connection.
type Engine struct {
	db         *gorm.DB
	reader     remote.Reader
	run        models.MigrationRun
	property   models.Property
	store      *identity.Store
	catalog    *dbCatalog
	tunables   config.Tunables
	dispatcher Dispatcher
	logger     *logrus.Logger
	now        func() time.Time
	sleep      func(time.Duration)
	final      bool
}

type Option func(*Engine)

// WithFinalWindow selects records dated on or after the run's end date instead
// of the [from, to] window. Used for the go-live catch-up.
func WithFinalWindow() Option {
	return func(e *Engine) { e.final = true }
}

func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

func WithTunables(t config.Tunables) Option {
	return func(e *Engine) { e.tunables = t }
}

func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(db *gorm.DB, reader remote.Reader, run models.MigrationRun, property models.Property, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		reader:   reader,
		run:      run,
		property: property,
		store:    identity.NewStore(db),
		catalog:  &dbCatalog{db: db},
		tunables: config.DefaultTunables(),
		logger:   config.GetLogger(),
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tunables.ChunkSize <= 0 {
		e.tunables.ChunkSize = config.DefaultTunables().ChunkSize
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDispatcher(e.tunables)
	}
	return e
}

// RemoteConfig builds the legacy connection settings of a run.
func RemoteConfig(run models.MigrationRun, t config.Tunables) remote.Config {
	return remote.Config{
		Host:              run.RemoteHost,
		Protocol:          run.RemoteProtocol,
		Port:              run.RemotePort,
		Database:          run.RemoteDatabase,
		User:              run.RemoteUser,
		Password:          run.RemotePassword,
		Timeout:           t.RemoteTimeout,
		RequestsPerSecond: t.RemoteRPS,
	}
}

// Open loads a run and its property and logs into the legacy server.
func Open(ctx context.Context, db *gorm.DB, runId int, t config.Tunables, opts ...Option) (*Engine, error) {
	run, property, err := LoadRun(ctx, db, runId)
	if err != nil {
		return nil, err
	}
	session, err := remote.Connect(ctx, RemoteConfig(*run, t))
	if err != nil {
		return nil, err
	}
	return New(db, session, *run, *property, append([]Option{WithTunables(t)}, opts...)...), nil
}

func LoadRun(ctx context.Context, db *gorm.DB, runId int) (*models.MigrationRun, *models.Property, error) {
	ctx = utils.WithoutPropertyScope(ctx)
	var run models.MigrationRun
	if err := db.WithContext(ctx).Take(&run, runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("migration run %d: %w", runId, utils.ErrorRecordNotFound)
		}
		return nil, nil, err
	}
	var property models.Property
	if err := db.WithContext(ctx).Take(&property, run.PropertyId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("property %d: %w", run.PropertyId, utils.ErrorRecordNotFound)
		}
		return nil, nil, err
	}
	return &run, &property, nil
}

func (e *Engine) Run() models.MigrationRun { return e.run }

func (e *Engine) scope() identity.Scope {
	return identity.Scope{RunId: e.run.ID, PropertyId: e.run.PropertyId}
}

func (e *Engine) scoped(ctx context.Context) context.Context {
	ctx = utils.SetRunIdInContext(ctx, e.run.ID)
	return utils.SetPropertyIdInContext(ctx, e.run.PropertyId)
}

// start opens the span of a command.
func (e *Engine) start(ctx context.Context, name string, kind models.EntityKind) (context.Context, trace.Span) {
	ctx = utils.SetEntityKindInContext(e.scoped(ctx), string(kind))
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("run.id", e.run.ID),
		attribute.String("entity.kind", string(kind)),
	))
}

// window restricts field to the run's date window, or to dates on or after
// the end date in final mode.
func (e *Engine) window(field string) remote.Domain {
	to := remote.FormatDate(e.run.DateTo)
	if e.final {
		return remote.Cond(field, ">=", to)
	}
	return remote.And(
		remote.Cond(field, ">=", remote.FormatDate(e.run.DateFrom)),
		remote.Cond(field, "<=", to),
	)
}

// deps gathers what mappers consult. The resolver is new on every call so its
// cache never outlives one chunk.
func (e *Engine) deps(ctx context.Context) (mapper.Deps, error) {
	scope := e.scope()
	users, err := e.store.LocalIdsByRemote(ctx, scope, models.KindUser)
	if err != nil {
		return mapper.Deps{}, err
	}
	userRows, err := e.store.Mappings(ctx, scope, models.KindUser)
	if err != nil {
		return mapper.Deps{}, err
	}
	logins := make(map[int]string, len(userRows))
	for _, m := range userRows {
		logins[m.RemoteId] = m.RemoteName
	}
	channelRows, err := e.store.Mappings(ctx, scope, models.KindChannelType)
	if err != nil {
		return mapper.Deps{}, err
	}
	channels := make(map[string]int, len(channelRows))
	for _, m := range channelRows {
		if m.LocalId != nil {
			channels[m.RemoteKey] = *m.LocalId
		}
	}
	return mapper.Deps{
		Resolver:     identity.NewBatchResolver(e.store, scope),
		Catalog:      e.catalog,
		Settings:     mapper.SettingsFromRun(&e.run, &e.property, e.tunables),
		Users:        users,
		UserLogins:   logins,
		ChannelTypes: channels,
	}, nil
}

func (e *Engine) lock(ctx context.Context, kind models.EntityKind) (func(), error) {
	return utils.ObtainLock(ctx, fmt.Sprintf("hotel-migration:run:%d:%s", e.run.ID, kind), e.tunables.LockTTL)
}

func (e *Engine) setRunStatus(ctx context.Context, status string) {
	err := e.db.WithContext(ctx).Model(&models.MigrationRun{}).Where("id = ?", e.run.ID).
		Updates(map[string]interface{}{"status": status}).Error
	if err != nil {
		config.LogError(e.logger, moduleName, "setRunStatus", "update run", map[string]any{"run_id": e.run.ID}, err)
	}
}
