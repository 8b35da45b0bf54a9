package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LogCodeInvalidPayload        = "invalid_payload"
	LogCodeRemoteError           = "remote_error"
	LogCodeTransportError        = "transport_error"
	LogCodeMappingError          = "mapping_error"
	LogCodeMissingDependency     = "missing_dependency"
	LogCodeReconciliationWarning = "reconciliation_warning"
	LogCodeDuplicateRetry        = "duplicate_retry"
	LogCodeSkipped               = "skipped"
)

const (
	LogSeverityInfo    = "info"
	LogSeverityWarning = "warning"
	LogSeverityError   = "error"
)

// MigrationLog is the operator-facing record of one failed, skipped or suspicious
// remote record.
type MigrationLog struct {
	ID        int            `gorm:"primary_key" json:"id"`
	RunId     int            `gorm:"index:idx_migration_log_run,priority:1;not null" json:"run_id"`
	Kind      EntityKind     `gorm:"index:idx_migration_log_run,priority:2;size:40;not null" json:"kind"`
	RemoteId  int            `gorm:"index" json:"remote_id"`
	JobId     *int           `json:"job_id"`
	Code      string         `gorm:"size:40;not null" json:"code"`
	Severity  string         `gorm:"size:10;not null" json:"severity"`
	Message   string         `gorm:"type:text" json:"message"`
	Payload   datatypes.JSON `gorm:"type:json" json:"payload"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
