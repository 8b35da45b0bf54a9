package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	ProgressSheet = "Progress"
	LogSheet      = "Log"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// LogFilter narrows the log rows of a run. Zero fields match everything.
type LogFilter struct {
	Kind     models.EntityKind `form:"kind"`
	Severity string            `form:"severity" binding:"omitempty,oneof=info warning error"`
	Code     string            `form:"code"`
	RemoteId int               `form:"remote_id"`
	Limit    int               `form:"limit"`
	Offset   int               `form:"offset"`
}

func ListLogs(ctx context.Context, db *gorm.DB, runId int, f LogFilter) ([]models.MigrationLog, error) {
	started := time.Now()
	defer logSlowReport(ctx, "ListLogs", started, map[string]any{"run_id": runId})

	q := db.WithContext(ctx).Where("run_id = ?", runId)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Code != "" {
		q = q.Where("code = ?", f.Code)
	}
	if f.RemoteId > 0 {
		q = q.Where("remote_id = ?", f.RemoteId)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var rows []models.MigrationLog
	err := q.Order("id").Find(&rows).Error
	return rows, err
}

// BuildLogWorkbook writes the run's counters and log rows to an xlsx file with
// one sheet each.
func BuildLogWorkbook(progress []models.MigrationProgress, logs []models.MigrationLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProgressSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(LogSheet); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(ProgressSheet, "A1", &[]interface{}{
		"Kind", "Phase", "Total", "Target", "Migrated", "Failed", "Skipped", "UnmappedLocal", "Complete",
	}); err != nil {
		return nil, err
	}
	for i, p := range progress {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ProgressSheet, cell, &[]interface{}{
			string(p.Kind), p.Phase, p.Total, p.Target, p.Migrated, p.Failed, p.Skipped, p.UnmappedLocal, p.Complete(),
		}); err != nil {
			return nil, err
		}
	}

	if err := f.SetSheetRow(LogSheet, "A1", &[]interface{}{
		"Date", "Kind", "RemoteId", "Severity", "Code", "Message", "Payload",
	}); err != nil {
		return nil, err
	}
	for i, l := range logs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(LogSheet, cell, &[]interface{}{
			l.CreatedAt.UTC().Format(time.DateTime), string(l.Kind), l.RemoteId, l.Severity, l.Code, l.Message, string(l.Payload),
		}); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LogWorkbookName is the object name of a run's exported log.
func LogWorkbookName(runId int, at time.Time) string {
	return fmt.Sprintf("migration-logs/%d/%s.xlsx", runId, at.UTC().Format("20060102T150405Z"))
}

// UploadLogWorkbook stores the workbook in the configured bucket and returns
// its location.
func UploadLogWorkbook(ctx context.Context, runId int, data []byte, at time.Time) (string, error) {
	return utils.UploadToGCS(ctx, LogWorkbookName(runId, at), data, xlsxContentType)
}

// ContentType of the exported workbook, for download responses.
func ContentType() string { return xlsxContentType }
