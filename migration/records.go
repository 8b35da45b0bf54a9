package migration

import (
	"context"
	"errors"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/reconcile"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
)

// ChunkResult counts what one task did with its remote ids.
type ChunkResult struct {
	Processed int `json:"processed"`
	Migrated  int `json:"migrated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r *ChunkResult) add(o ChunkResult) {
	r.Processed += o.Processed
	r.Migrated += o.Migrated
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// chunk is the working state of one task while it runs.
type chunk struct {
	task   Task
	deps   mapper.Deps
	result ChunkResult
}

func (c *chunk) jobId() *int {
	if c == nil || c.task.JobId == 0 {
		return nil
	}
	id := c.task.JobId
	return &id
}

// logCode classifies a per-record error for the migration log.
func logCode(err error) string {
	var (
		me  *mapper.MappingError
		de  *remote.DecodeError
		te  *remote.TransportError
		rle *remote.RemoteLogicError
		rw  reconcile.ReconciliationWarning
	)
	switch {
	case errors.As(err, &me):
		if errors.Is(err, mapper.ErrReferenceNotFound) || errors.Is(err, mapper.ErrJournalsNotAssigned) || errors.Is(err, mapper.ErrJournalNotMapped) {
			return models.LogCodeMissingDependency
		}
		return models.LogCodeMappingError
	case errors.As(err, &de):
		return models.LogCodeInvalidPayload
	case errors.As(err, &te):
		return models.LogCodeTransportError
	case errors.As(err, &rle):
		return models.LogCodeRemoteError
	case errors.As(err, &rw):
		return models.LogCodeReconciliationWarning
	case utils.IsDuplicateKeyError(err):
		return models.LogCodeDuplicateRetry
	case errors.Is(err, mapper.ErrJournalNotMapped):
		return models.LogCodeMissingDependency
	}
	return models.LogCodeMappingError
}

// logRecord stores one operator-facing log row. A failure to store it is only
// written to the process log.
func (e *Engine) logRecord(ctx context.Context, c *chunk, kind models.EntityKind, remoteId int, code, severity, message string, payload any) {
	rec := models.MigrationLog{
		RunId:    e.run.ID,
		Kind:     kind,
		RemoteId: remoteId,
		JobId:    c.jobId(),
		Code:     code,
		Severity: severity,
		Message:  message,
		Payload:  utils.ToJSONColumn(payload),
	}
	if err := e.db.WithContext(ctx).Create(&rec).Error; err != nil {
		config.LogError(e.logger, moduleName, "logRecord", "create migration log", rec, err)
	}
}

// fail records a rejected remote record. It never aborts the chunk.
func (e *Engine) fail(ctx context.Context, c *chunk, kind models.EntityKind, remoteId int, err error) {
	if c != nil {
		c.result.Failed++
	}
	data := map[string]any{"run_id": e.run.ID, "kind": kind, "remote_id": remoteId}
	config.LogError(e.logger, moduleName, "migrate", string(kind), data, err)
	e.logRecord(ctx, c, kind, remoteId, logCode(err), models.LogSeverityError, err.Error(), nil)
}

// skip records a remote record left out on purpose.
func (e *Engine) skip(ctx context.Context, c *chunk, kind models.EntityKind, remoteId int, message string, payload any) {
	if c != nil {
		c.result.Skipped++
	}
	e.logRecord(ctx, c, kind, remoteId, models.LogCodeSkipped, models.LogSeverityInfo, message, payload)
}

func (e *Engine) warn(ctx context.Context, c *chunk, kind models.EntityKind, remoteId int, code, message string, payload any) {
	config.LogWarning(e.logger, moduleName, "migrate", string(kind), map[string]any{"run_id": e.run.ID, "remote_id": remoteId}, message)
	e.logRecord(ctx, c, kind, remoteId, code, models.LogSeverityWarning, message, payload)
}

func (e *Engine) failDecoded(ctx context.Context, c *chunk, kind models.EntityKind, bad []*remote.DecodeError) {
	for _, b := range bad {
		e.fail(ctx, c, kind, b.RemoteId, b)
	}
}
