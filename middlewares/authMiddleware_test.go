package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/hotel_migration/utils"
)

func authRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		if claim := CtxValue(c.Request.Context()); claim != nil {
			*seen = claim.Operator
		}
		c.Status(http.StatusOK)
	})
	return r
}

func get(r http.Handler, auth string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthMiddlewareOpenWithoutSecret(t *testing.T) {
	t.Setenv("MIGRATION_API_SECRET", "")
	var seen string
	if code := get(authRouter(&seen), ""); code != http.StatusOK {
		t.Fatalf("expected 200 without a secret, got %d", code)
	}
}

func TestAuthMiddlewareRequiresBearerToken(t *testing.T) {
	t.Setenv("MIGRATION_API_SECRET", "s3cret")
	var seen string
	r := authRouter(&seen)

	for _, auth := range []string{"", "Bearer", "Basic abc", "Bearer not-a-token"} {
		if code := get(r, auth); code != http.StatusUnauthorized {
			t.Fatalf("auth %q: expected 401, got %d", auth, code)
		}
	}

	token, err := utils.JwtGenerate("maria", "operator", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code := get(r, "bearer "+token); code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d", code)
	}
	if seen != "maria" {
		t.Fatalf("expected the operator claim in context, got %q", seen)
	}
}
