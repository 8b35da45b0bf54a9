package migration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/hotel_migration/config"
	"gorm.io/gorm"
)

type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		ID         string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// EngineFactory opens the engine of a run. final selects the go-live window.
type EngineFactory func(ctx context.Context, runId int, final bool) (*Engine, error)

// OpenWithDB returns a factory opening engines on db with tunables from env.
// The push endpoint needs a factory with the Pub/Sub dispatcher so the last
// chunk of a batch aggregates it.
func OpenWithDB(db func() *gorm.DB, opts ...Option) EngineFactory {
	return func(ctx context.Context, runId int, final bool) (*Engine, error) {
		t := config.LoadTunables()
		o := append([]Option{}, opts...)
		if final {
			o = append(o, WithFinalWindow())
		}
		return Open(ctx, db(), runId, t, o...)
	}
}

// PubSubPushHandler runs one chunk delivered by a push subscription. It
// always answers 204: a chunk that fails is recorded on its job row and
// redelivery would not fix it.
func PubSubPushHandler(open EngineFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_MIGRATION_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var task Task
		if err := json.Unmarshal(envelope.Message.Data, &task); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if task.RunId == 0 || task.TaskId == "" || task.Kind == "" {
			c.Status(http.StatusNoContent)
			return
		}

		ctx := c.Request.Context()
		logger := config.GetLogger()
		e, err := open(ctx, task.RunId, task.Final)
		if err != nil {
			config.LogError(logger, moduleName, "PubSubPushHandler", "open engine",
				map[string]any{"run_id": task.RunId, "task_id": task.TaskId, "message_id": envelope.Message.ID}, err)
			c.Status(http.StatusNoContent)
			return
		}
		if err := e.ExecuteTask(ctx, task); err != nil {
			config.LogError(logger, moduleName, "PubSubPushHandler", "execute task",
				map[string]any{"run_id": task.RunId, "task_id": task.TaskId, "message_id": envelope.Message.ID}, err)
		}
		c.Status(http.StatusNoContent)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
