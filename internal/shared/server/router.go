package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"letters-backend/internal/letters"
	"letters-backend/internal/services/health"
	"letters-backend/internal/shared/config"
	"letters-backend/internal/shared/metrics"
	"letters-backend/internal/shared/server/middleware"
	"letters-backend/internal/shared/server/respond"
	"letters-backend/internal/uploads"
)

// RouterDeps are the handlers mounted by NewRouter.
type RouterDeps struct {
	Config  config.Config
	Health  *health.Service
	Imports *letters.Handler
	Uploads *uploads.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		status := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	if deps.Imports != nil {
		deps.Imports.RegisterRoutes(api)
	}
	deps.Uploads.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
