package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/po-tool/internal/api/handlers"
	"github.com/andresuchdata/po-tool/internal/api/middleware"
	"github.com/andresuchdata/po-tool/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	POService *service.POService
	// CacheAdmin serves the reference cache routes under /api/dev/cache.
	CacheAdmin http.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	if services == nil {
		return router
	}

	if services.POService != nil {
		poHandler := handlers.NewPOHandler(services.POService)
		poGroup := apiGroup.Group("/purchase-orders")
		{
			poGroup.GET("", poHandler.List)
			poGroup.POST("", poHandler.Create)
			poGroup.GET("/:id", poHandler.Get)
			poGroup.PATCH("/:id", poHandler.Update)
			poGroup.DELETE("/:id", poHandler.Delete)
			poGroup.POST("/:id/stages/:stage", poHandler.RunStage)
			poGroup.POST("/:id/undo", poHandler.Undo)
		}

		settingsHandler := handlers.NewSettingsHandler(services.POService)
		settingsGroup := apiGroup.Group("/settings")
		{
			settingsGroup.GET("/breakdown", settingsHandler.GetBreakdown)
			settingsGroup.PATCH("/breakdown", settingsHandler.PatchBreakdown)
			settingsGroup.GET("/catalog", settingsHandler.GetCatalog)
			settingsGroup.PUT("/catalog", settingsHandler.PutCatalog)
		}
	}

	if services.CacheAdmin != nil {
		apiGroup.Any("/dev/cache/*path", gin.WrapH(services.CacheAdmin))
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
