package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/api/middleware"
	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

const apiBasePath = "/api/v1"

// defaultAllowedOrigins is used when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, session middleware.SessionConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))
	router.Use(middleware.MustOpenAPIValidator(apiBasePath))

	v1 := router.Group(apiBasePath)
	{
		v1.GET("/health/live", server.GetLiveness)
		v1.GET("/health/ready", server.GetReadiness)

		v1.GET("/oauth/clients/:client_id/redirect", server.RedirectToProvider)
		v1.GET("/oauth/:provider/callback", server.HandleCallback)
		v1.POST("/oauth/:provider/token", server.LoginWithAccessToken)

		v1.GET("/me", middleware.SessionAuth(session), server.GetMe)
	}
	return router
}

// buildCORSConfig maps server settings to gin-contrib/cors.
// A wildcard origin is honored only with unsafe_allow_all_origins, and
// then credentials are never allowed.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		logger.Warn("CORS allows every origin; credentials disabled")
		c.AllowAllOrigins = true
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			logger.Warn("Ignoring wildcard CORS origin", zap.String("hint", "set server.unsafe_allow_all_origins"))
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
