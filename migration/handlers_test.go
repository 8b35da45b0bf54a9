package migration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/migration"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"lock", fmt.Errorf("folio: %w", utils.ErrLockNotObtained), http.StatusConflict},
		{"missing run", fmt.Errorf("run 3: %w", utils.ErrorRecordNotFound), http.StatusNotFound},
		{"already migrated", migration.ErrAlreadyMigrated, http.StatusConflict},
		{"journals", mapper.ErrJournalsNotAssigned, http.StatusUnprocessableEntity},
		{"mapping", &mapper.MappingError{Kind: models.KindFolio, RemoteId: 1, Field: "pricelist_id", Err: mapper.ErrReferenceNotFound}, http.StatusUnprocessableEntity},
		{"unknown kind", migration.ErrUnknownKind, http.StatusUnprocessableEntity},
		{"auth", &remote.AuthError{Database: "playa", User: "admin", Err: errors.New("denied")}, http.StatusBadGateway},
		{"transport", &remote.TransportError{Op: "search", StatusCode: 502, Err: errors.New("bad gateway")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, migration.StatusFor(tc.err))
		})
	}
}

func newRouter(db *gorm.DB, open migration.EngineFactory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	migration.RegisterRoutes(r.Group("/api/migration"), func() *gorm.DB { return db }, open)
	r.POST("/pubsub/push", migration.PubSubPushHandler(open))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRunValidatesBody(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.db, nil)

	valid := map[string]any{
		"name": "second", "property_id": testPropertyId,
		"remote_host": "legacy.test", "remote_database": "playa", "remote_user": "admin", "remote_password": "secret",
		"date_from": "2024-01-01T00:00:00Z", "date_to": "2024-03-31T00:00:00Z",
	}

	missing := map[string]any{}
	for k, v := range valid {
		missing[k] = v
	}
	delete(missing, "remote_password")
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/migration/runs", missing).Code)

	reversed := map[string]any{}
	for k, v := range valid {
		reversed[k] = v
	}
	reversed["date_from"] = "2024-04-01T00:00:00Z"
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/migration/runs", reversed).Code)

	unknown := map[string]any{}
	for k, v := range valid {
		unknown[k] = v
	}
	unknown["property_id"] = 999
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodPost, "/api/migration/runs", unknown).Code)

	w := doJSON(r, http.MethodPost, "/api/migration/runs", valid)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret", "the password is never echoed")

	var run models.MigrationRun
	require.NoError(t, f.db.Where("name = ?", "second").Take(&run).Error)
	assert.Equal(t, "secret", run.RemotePassword)
	assert.Equal(t, models.RunStatusIdle, run.Status)
}

func TestEngineRoutesReportFactoryErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.db, func(_ context.Context, runId int, _ bool) (*migration.Engine, error) {
		return nil, fmt.Errorf("migration run %d: %w", runId, utils.ErrorRecordNotFound)
	})

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/migration/runs/abc/folios", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodPost, "/api/migration/runs/42/folios", nil).Code)
}

func TestGetRunAndProgress(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.db, func(_ context.Context, _ int, _ bool) (*migration.Engine, error) {
		return f.engine(), nil
	})

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/migration/runs/%d", f.run.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remote_host":"legacy.test"`)

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/migration/runs/%d/import/%s", f.run.ID, models.KindUser), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/migration/runs/%d/import/bogus", f.run.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func pushBody(t *testing.T, data []byte) map[string]any {
	t.Helper()
	return map[string]any{
		"message":      map[string]any{"data": data, "messageId": "m-1"},
		"subscription": "projects/p/subscriptions/migration",
	}
}

func TestPubSubPushIgnoresInvalidPayloads(t *testing.T) {
	calls := 0
	r := newRouter(nil, func(context.Context, int, bool) (*migration.Engine, error) {
		calls++
		return nil, errors.New("unreachable")
	})

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodPost, "/pubsub/push", pushBody(t, []byte(`{"run_id":0}`)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, calls)
}

func TestPubSubPushOpensTheRunOfTheTask(t *testing.T) {
	var gotRun int
	var gotFinal bool
	r := newRouter(nil, func(_ context.Context, runId int, final bool) (*migration.Engine, error) {
		gotRun, gotFinal = runId, final
		return nil, errors.New("legacy server down")
	})
	task := migration.Task{RunId: 3, Kind: models.KindFolio, TaskId: "b-0", Batch: "b", RemoteIds: []int{1, 2}, Final: true}
	data, err := json.Marshal(task)
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/pubsub/push", pushBody(t, data))
	assert.Equal(t, http.StatusNoContent, w.Code, "failures are acknowledged")
	assert.Equal(t, 3, gotRun)
	assert.True(t, gotFinal)
}
