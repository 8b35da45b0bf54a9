package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/hotel_migration/utils"
)

type authString string

// AuthMiddleware requires a bearer operator token once MIGRATION_API_SECRET
// is set. Without a secret every request passes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(utils.APISecret()) == 0 {
			c.Next()
			return
		}

		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		bearer := "bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		validate, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearer):]))
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, _ := validate.Claims.(*utils.OperatorClaim)

		ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.OperatorClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.OperatorClaim)
	return raw
}
