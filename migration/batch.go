package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// maxTaskAttempts bounds in-process retries of a chunk failing on transport.
const maxTaskAttempts = 3

// workSet is a group of remote ids prepared for one kind. Payment sets belong
// to one local journal and are never split.
type workSet struct {
	JournalId *int
	RemoteIds []int
}

// prepared is what a command's preparation step hands to runKind. rejected
// counts records refused before chunking; they are already logged.
type prepared struct {
	sets     []workSet
	rejected ChunkResult
}

// runKind drives PREPARING -> CHUNKING -> RUNNING -> AGGREGATING -> REPORTED
// for one kind.
func (e *Engine) runKind(ctx context.Context, kind models.EntityKind, prepare func(ctx context.Context, c *chunk) (prepared, error)) (*models.MigrationProgress, error) {
	unlock, err := e.lock(ctx, kind)
	if err != nil {
		return nil, err
	}
	defer unlock()
	e.setRunStatus(ctx, models.RunStatusRunning)
	defer e.setRunStatus(ctx, models.RunStatusIdle)

	batch := uuid.NewString()
	if err := e.setPhase(ctx, kind, models.PhasePreparing, map[string]interface{}{"batch": batch}); err != nil {
		return nil, err
	}

	deps, err := e.deps(ctx)
	if err != nil {
		return nil, e.failKind(ctx, kind, err)
	}
	pc := &chunk{task: Task{RunId: e.run.ID, Kind: kind, Batch: batch, ChunkIndex: -1}, deps: deps}
	prep, err := prepare(ctx, pc)
	if err != nil {
		return nil, e.failKind(ctx, kind, err)
	}
	prep.rejected.add(pc.result)

	if err := e.setPhase(ctx, kind, models.PhaseChunking, nil); err != nil {
		return nil, err
	}
	tasks, err := e.createJobs(ctx, kind, batch, prep)
	if err != nil {
		return nil, e.failKind(ctx, kind, err)
	}

	if len(tasks) > 0 {
		if err := e.setPhase(ctx, kind, models.PhaseRunning, nil); err != nil {
			return nil, err
		}
		if err := e.dispatcher.Dispatch(ctx, tasks, e.ExecuteTask); err != nil {
			config.LogError(e.logger, moduleName, "runKind", "dispatch", map[string]any{"run_id": e.run.ID, "kind": kind, "batch": batch}, err)
			if e.dispatcher.Async() {
				e.failQueuedJobs(ctx, batch, err)
			}
		}
		if e.dispatcher.Async() {
			if _, err := e.aggregateIfDrained(ctx, kind, batch); err != nil {
				return nil, err
			}
			return e.progress(ctx, kind)
		}
	}
	return e.aggregate(ctx, kind, batch)
}

// createJobs stores one queued job per task plus a finished job holding the
// records rejected during preparation.
func (e *Engine) createJobs(ctx context.Context, kind models.EntityKind, batch string, prep prepared) ([]Task, error) {
	now := e.now()
	prepJob := models.MigrationJob{
		RunId:      e.run.ID,
		Kind:       kind,
		Batch:      batch,
		TaskId:     batch + "-prepare",
		ChunkIndex: -1,
		Status:     models.JobStatusDone,
		Processed:  prep.rejected.Processed,
		Skipped:    prep.rejected.Skipped,
		Failed:     prep.rejected.Failed,
		StartedAt:  &now,
		FinishedAt: &now,
	}
	if err := e.db.WithContext(ctx).Create(&prepJob).Error; err != nil {
		return nil, err
	}

	var tasks []Task
	for _, set := range prep.sets {
		groups := [][]int{set.RemoteIds}
		if set.JournalId == nil {
			groups = utils.Chunk(set.RemoteIds, e.tunables.ChunkSize)
		}
		for _, ids := range groups {
			if len(ids) == 0 {
				continue
			}
			t := Task{
				RunId:      e.run.ID,
				Kind:       kind,
				Batch:      batch,
				TaskId:     fmt.Sprintf("%s-%d", batch, len(tasks)),
				ChunkIndex: len(tasks),
				JournalId:  set.JournalId,
				RemoteIds:  ids,
				Final:      e.final,
			}
			job := models.MigrationJob{
				RunId:      e.run.ID,
				Kind:       kind,
				Batch:      batch,
				TaskId:     t.TaskId,
				ChunkIndex: t.ChunkIndex,
				JournalId:  t.JournalId,
				RemoteIds:  utils.ToJSONColumn(ids),
				Status:     models.JobStatusQueued,
			}
			if err := e.db.WithContext(ctx).Create(&job).Error; err != nil {
				return nil, err
			}
			t.JobId = job.ID
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// ExecuteTask runs one chunk and records its outcome on the job row. Remote
// transport failures are retried in place; any other chunk failure marks the
// job failed without touching sibling chunks. The returned error only reports
// bookkeeping failures.
func (e *Engine) ExecuteTask(ctx context.Context, t Task) error {
	ctx = utils.SetEntityKindInContext(e.scoped(ctx), string(t.Kind))
	ctx, span := tracer.Start(ctx, "migration.chunk", trace.WithAttributes(
		attribute.Int("run.id", e.run.ID),
		attribute.String("entity.kind", string(t.Kind)),
		attribute.Int("chunk.index", t.ChunkIndex),
	))
	defer span.End()

	var job models.MigrationJob
	if err := e.db.WithContext(ctx).Where("task_id = ?", t.TaskId).Take(&job).Error; err != nil {
		return fmt.Errorf("load job %s: %w", t.TaskId, err)
	}
	if job.Status == models.JobStatusDone {
		// redelivered
		return nil
	}
	t.JobId = job.ID

	var (
		result ChunkResult
		runErr error
	)
	for attempt := 1; ; attempt++ {
		started := e.now()
		err := e.db.WithContext(ctx).Model(&job).Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"attempts":   job.Attempts + 1,
			"started_at": started,
		}).Error
		if err != nil {
			return err
		}
		job.Attempts++

		result, runErr = e.runChunk(ctx, t)
		if runErr == nil || !remote.IsRetryable(runErr) || attempt >= maxTaskAttempts {
			break
		}
		config.LogWarning(e.logger, moduleName, "ExecuteTask", "retry chunk",
			map[string]any{"run_id": e.run.ID, "kind": t.Kind, "task_id": t.TaskId, "attempt": attempt}, runErr.Error())
		e.sleep(time.Duration(attempt) * time.Second)
	}

	finished := e.now()
	updates := map[string]interface{}{
		"status":      models.JobStatusDone,
		"processed":   result.Processed,
		"migrated":    result.Migrated,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"error":       "",
		"finished_at": finished,
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		updates["status"] = models.JobStatusFailed
		updates["error"] = runErr.Error()
		updates["failed"] = len(t.RemoteIds) - result.Migrated - result.Skipped
		c := &chunk{task: t}
		e.logRecord(ctx, c, t.Kind, 0, logCode(runErr), models.LogSeverityError, runErr.Error(), map[string]any{"remote_ids": t.RemoteIds})
		config.LogError(e.logger, moduleName, "ExecuteTask", "run chunk", map[string]any{"run_id": e.run.ID, "kind": t.Kind, "task_id": t.TaskId}, runErr)
	}
	if err := e.db.WithContext(ctx).Model(&job).Updates(updates).Error; err != nil {
		return err
	}

	if e.dispatcher.Async() {
		if _, err := e.aggregateIfDrained(ctx, t.Kind, t.Batch); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runChunk(ctx context.Context, t Task) (ChunkResult, error) {
	deps, err := e.deps(ctx)
	if err != nil {
		return ChunkResult{}, err
	}
	c := &chunk{task: t, deps: deps}
	switch t.Kind {
	case models.KindPartner:
		err = e.partnerChunk(ctx, c)
	case models.KindFolio:
		err = e.folioChunk(ctx, c)
	case models.KindPayment:
		if t.JournalId == nil {
			return ChunkResult{}, errors.New("payment task without journal")
		}
		err = e.paymentJournalTask(ctx, c)
	case models.KindPaymentReturn:
		err = e.returnChunk(ctx, c)
	case models.KindInvoice:
		err = e.invoiceChunk(ctx, c)
	default:
		return ChunkResult{}, fmt.Errorf("kind %s is not chunked", t.Kind)
	}
	c.result.Processed = len(t.RemoteIds)
	return c.result, err
}

func (e *Engine) failQueuedJobs(ctx context.Context, batch string, cause error) {
	err := e.db.WithContext(ctx).Model(&models.MigrationJob{}).
		Where("run_id = ? AND batch = ? AND status = ?", e.run.ID, batch, models.JobStatusQueued).
		Updates(map[string]interface{}{"status": models.JobStatusFailed, "error": cause.Error()}).Error
	if err != nil {
		config.LogError(e.logger, moduleName, "failQueuedJobs", "update jobs", map[string]any{"batch": batch}, err)
	}
}

func (e *Engine) failKind(ctx context.Context, kind models.EntityKind, cause error) error {
	if err := e.setPhase(ctx, kind, models.PhaseFailed, nil); err != nil {
		config.LogError(e.logger, moduleName, "failKind", "set phase", map[string]any{"run_id": e.run.ID, "kind": kind}, err)
	}
	e.logRecord(ctx, nil, kind, 0, logCode(cause), models.LogSeverityError, cause.Error(), nil)
	return cause
}

// aggregateIfDrained aggregates the batch once no job of it is queued or running.
func (e *Engine) aggregateIfDrained(ctx context.Context, kind models.EntityKind, batch string) (bool, error) {
	var pending int64
	err := e.db.WithContext(ctx).Model(&models.MigrationJob{}).
		Where("run_id = ? AND batch = ? AND status IN ?", e.run.ID, batch, []string{models.JobStatusQueued, models.JobStatusRunning}).
		Count(&pending).Error
	if err != nil || pending > 0 {
		return false, err
	}
	_, err = e.aggregate(ctx, kind, batch)
	return err == nil, err
}

// aggregate folds the batch's job counters into the progress row. Migrated
// and unmapped counts are read back from the identity store, so they hold
// across runs of the same command.
func (e *Engine) aggregate(ctx context.Context, kind models.EntityKind, batch string) (*models.MigrationProgress, error) {
	if err := e.setPhase(ctx, kind, models.PhaseAggregating, nil); err != nil {
		return nil, err
	}
	var jobs []models.MigrationJob
	if err := e.db.WithContext(ctx).Where("run_id = ? AND batch = ?", e.run.ID, batch).Find(&jobs).Error; err != nil {
		return nil, err
	}
	var sum ChunkResult
	chunks, failedChunks := 0, 0
	for _, j := range jobs {
		sum.add(ChunkResult{Skipped: j.Skipped, Failed: j.Failed})
		if j.ChunkIndex < 0 {
			continue
		}
		chunks++
		if j.Status == models.JobStatusFailed {
			failedChunks++
		}
	}

	scope := e.scope()
	migrated, err := e.store.MigratedCount(ctx, scope, kind)
	if err != nil {
		return nil, err
	}
	unmapped, err := e.store.UnmappedCount(ctx, scope, kind)
	if err != nil {
		return nil, err
	}
	phase := models.PhaseReported
	if chunks > 0 && failedChunks == chunks {
		phase = models.PhaseFailed
	}
	if err := e.setPhase(ctx, kind, phase, map[string]interface{}{
		"migrated":       migrated,
		"unmapped_local": unmapped,
		"skipped":        sum.Skipped,
		"failed":         sum.Failed,
	}); err != nil {
		return nil, err
	}
	e.touchLastImport(ctx, kind)
	if err := config.RemoveRedisKey(ctx, e.countCacheKey()); err != nil {
		config.LogWarning(e.logger, moduleName, "aggregate", "drop count cache", nil, err.Error())
	}
	return e.progress(ctx, kind)
}

var lastImportColumn = map[models.EntityKind]string{
	models.KindPartner:       "last_import_partners",
	models.KindFolio:         "last_import_folios",
	models.KindPayment:       "last_import_payments",
	models.KindPaymentReturn: "last_import_returns",
	models.KindInvoice:       "last_import_invoices",
}

func (e *Engine) touchLastImport(ctx context.Context, kind models.EntityKind) {
	col, ok := lastImportColumn[kind]
	if !ok {
		return
	}
	err := e.db.WithContext(ctx).Model(&models.MigrationRun{}).Where("id = ?", e.run.ID).
		Updates(map[string]interface{}{col: e.now()}).Error
	if err != nil {
		config.LogError(e.logger, moduleName, "touchLastImport", "update run", map[string]any{"run_id": e.run.ID, "kind": kind}, err)
	}
}

// progress returns the progress row of kind, creating it when missing.
func (e *Engine) progress(ctx context.Context, kind models.EntityKind) (*models.MigrationProgress, error) {
	p := models.MigrationProgress{RunId: e.run.ID, Kind: kind, Phase: models.PhaseIdle}
	err := e.db.WithContext(ctx).Where("run_id = ? AND kind = ?", e.run.ID, kind).FirstOrCreate(&p).Error
	if utils.IsDuplicateKeyError(err) {
		err = e.db.WithContext(ctx).Where("run_id = ? AND kind = ?", e.run.ID, kind).Take(&p).Error
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (e *Engine) setPhase(ctx context.Context, kind models.EntityKind, phase string, extra map[string]interface{}) error {
	p, err := e.progress(ctx, kind)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{"phase": phase}
	for k, v := range extra {
		updates[k] = v
	}
	return e.db.WithContext(ctx).Model(&models.MigrationProgress{}).Where("id = ?", p.ID).Updates(updates).Error
}

// Progress lists the progress rows of the run.
func (e *Engine) Progress(ctx context.Context) ([]models.MigrationProgress, error) {
	var rows []models.MigrationProgress
	err := e.db.WithContext(ctx).Where("run_id = ?", e.run.ID).Order("id").Find(&rows).Error
	return rows, err
}

// simpleKind tracks a command that is not chunked, such as a reference import.
func (e *Engine) simpleKind(ctx context.Context, kind models.EntityKind, fn func(ctx context.Context, c *chunk) error) (*models.MigrationProgress, error) {
	unlock, err := e.lock(ctx, kind)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := e.setPhase(ctx, kind, models.PhaseRunning, map[string]interface{}{"batch": ""}); err != nil {
		return nil, err
	}
	deps, err := e.deps(ctx)
	if err != nil {
		return nil, e.failKind(ctx, kind, err)
	}
	c := &chunk{task: Task{RunId: e.run.ID, Kind: kind}, deps: deps}
	if err := fn(ctx, c); err != nil {
		return nil, e.failKind(ctx, kind, err)
	}
	scope := e.scope()
	updates := map[string]interface{}{
		"skipped": c.result.Skipped,
		"failed":  c.result.Failed,
	}
	if !models.EmbeddedKinds[kind] && kind != models.KindInvoiceMatching && kind != models.KindSpecialFields {
		migrated, err := e.store.MigratedCount(ctx, scope, kind)
		if err != nil {
			return nil, err
		}
		unmapped, err := e.store.UnmappedCount(ctx, scope, kind)
		if err != nil {
			return nil, err
		}
		updates["migrated"] = migrated
		updates["unmapped_local"] = unmapped
	} else {
		updates["migrated"] = c.result.Migrated
	}
	if err := e.setPhase(ctx, kind, models.PhaseReported, updates); err != nil {
		return nil, err
	}
	return e.progress(ctx, kind)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
