package migration

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/models/reports"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
)

// CreateRunRequest is the body of POST /runs. The password never leaves the
// service once stored.
type CreateRunRequest struct {
	models.MigrationRun
	RemotePassword string `json:"remote_password" validate:"required"`
}

type idsRequest struct {
	Ids []int `json:"ids"`
}

type directFolioRequest struct {
	Folio string `json:"folio"`
}

var validate = validator.New()

// RegisterRoutes mounts the operator API on r. db supplies the local
// connection; open builds the engine of a run for each command.
func RegisterRoutes(r gin.IRouter, db func() *gorm.DB, open EngineFactory) {
	runs := r.Group("/runs")
	runs.POST("", createRunHandler(db))
	runs.GET("/:id", getRunHandler(db))
	runs.GET("/:id/progress", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.Progress(ctx)
	}))
	runs.POST("/:id/count", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.CountRemote(ctx)
	}))
	runs.POST("/:id/partners", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.MigratePartners(ctx)
	}))
	runs.POST("/:id/folios", engineHandler(open, func(ctx context.Context, e *Engine, c *gin.Context) (any, error) {
		var req idsRequest
		if err := bindOptional(c, &req); err != nil {
			return nil, err
		}
		return e.MigrateFolios(ctx, req.Ids)
	}))
	runs.POST("/:id/folios/direct", engineHandler(open, func(ctx context.Context, e *Engine, c *gin.Context) (any, error) {
		var req directFolioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		if strings.TrimSpace(req.Folio) == "" {
			return nil, badRequest(errors.New("folio is required"))
		}
		return e.MigrateFolio(ctx, req.Folio)
	}))
	runs.POST("/:id/payments", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.MigratePayments(ctx)
	}))
	runs.POST("/:id/payment-returns", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.MigratePaymentReturns(ctx)
	}))
	runs.POST("/:id/invoices", engineHandler(open, func(ctx context.Context, e *Engine, c *gin.Context) (any, error) {
		var req idsRequest
		if err := bindOptional(c, &req); err != nil {
			return nil, err
		}
		return e.MigrateInvoices(ctx, req.Ids)
	}))
	runs.POST("/:id/special-fields", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.UpdateSpecialFieldNames(ctx)
	}))
	runs.POST("/:id/invoice-matching", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.MatchInvoicePayments(ctx)
	}))
	runs.POST("/:id/import", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.ImportReferenceData(ctx)
	}))
	runs.POST("/:id/import/:kind", engineHandler(open, func(ctx context.Context, e *Engine, c *gin.Context) (any, error) {
		return e.Import(ctx, models.EntityKind(c.Param("kind")))
	}))
	runs.POST("/:id/all", engineHandler(open, func(ctx context.Context, e *Engine, _ *gin.Context) (any, error) {
		return e.MigrateAll(ctx)
	}))
	runs.GET("/:id/logs", listLogsHandler(db))
	runs.POST("/:id/logs/export", exportLogsHandler(db))
}

func runIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return id, true
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, dest any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		return badRequest(err)
	}
	return nil
}

// StatusFor maps command errors to HTTP statuses.
func StatusFor(err error) int {
	var (
		reqErr     *requestError
		authErr    *remote.AuthError
		transport  *remote.TransportError
		logicErr   *remote.RemoteLogicError
		mappingErr *mapper.MappingError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrLockNotObtained):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorRecordNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyMigrated):
		return http.StatusConflict
	case errors.Is(err, mapper.ErrJournalsNotAssigned), errors.Is(err, ErrRoomTypeClassesMissing),
		errors.Is(err, ErrUnknownKind), errors.Is(err, ErrAsyncDispatcher), errors.As(err, &mappingErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &authErr), errors.As(err, &transport), errors.As(err, &logicErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func engineHandler(open EngineFactory, fn func(ctx context.Context, e *Engine, c *gin.Context) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := runIdParam(c)
		if !ok {
			return
		}
		final := strings.EqualFold(c.Query("final"), "true")
		ctx := c.Request.Context()
		e, err := open(ctx, runId, final)
		if err != nil {
			c.JSON(StatusFor(err), gin.H{"error": err.Error()})
			return
		}
		out, err := fn(ctx, e, c)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "engineHandler", c.FullPath(), map[string]any{"run_id": runId}, err)
			c.JSON(StatusFor(err), gin.H{"error": err.Error(), "result": out})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func createRunHandler(db func() *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		run := req.MigrationRun
		run.ID = 0
		run.Status = models.RunStatusIdle
		run.RemotePassword = req.RemotePassword
		if run.DateFrom.IsZero() || run.DateTo.IsZero() || run.DateTo.Before(run.DateFrom) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_from must not be after date_to"})
			return
		}

		ctx := utils.WithoutPropertyScope(c.Request.Context())
		var property models.Property
		if err := db().WithContext(ctx).Take(&property, run.PropertyId).Error; err != nil {
			c.JSON(StatusFor(err), gin.H{"error": err.Error()})
			return
		}
		if err := db().WithContext(ctx).Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, run)
	}
}

func getRunHandler(db func() *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := runIdParam(c)
		if !ok {
			return
		}
		run, _, err := LoadRun(c.Request.Context(), db(), runId)
		if err != nil {
			c.JSON(StatusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func listLogsHandler(db func() *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := runIdParam(c)
		if !ok {
			return
		}
		var f reports.LogFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if f.Limit <= 0 || f.Limit > 1000 {
			f.Limit = 200
		}
		ctx := utils.SetRunIdInContext(utils.WithoutPropertyScope(c.Request.Context()), runId)
		rows, err := reports.ListLogs(ctx, db(), runId, f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// exportLogsHandler returns the run's log workbook, or stores it in the bucket
// and returns the location when upload=true.
func exportLogsHandler(db func() *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := runIdParam(c)
		if !ok {
			return
		}
		ctx := utils.SetRunIdInContext(utils.WithoutPropertyScope(c.Request.Context()), runId)
		if _, _, err := LoadRun(ctx, db(), runId); err != nil {
			c.JSON(StatusFor(err), gin.H{"error": err.Error()})
			return
		}
		var progress []models.MigrationProgress
		if err := db().WithContext(ctx).Where("run_id = ?", runId).Order("id").Find(&progress).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logs, err := reports.ListLogs(ctx, db(), runId, reports.LogFilter{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		data, err := reports.BuildLogWorkbook(progress, logs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		if strings.EqualFold(c.Query("upload"), "true") {
			location, err := reports.UploadLogWorkbook(ctx, runId, data, now)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"location": location})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=migration-log-"+strconv.Itoa(runId)+".xlsx")
		c.Data(http.StatusOK, reports.ContentType(), data)
	}
}
