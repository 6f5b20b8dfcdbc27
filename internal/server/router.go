package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qavanin/ingest-backend/internal/handlers"
)

type RouterConfig struct {
	DocumentHandler  *handlers.DocumentHandler
	LegalUnitHandler *handlers.LegalUnitHandler
	SyncHandler      *handlers.SyncHandler
	AllowOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Documents
		api.POST("/documents", cfg.DocumentHandler.Create)
		api.GET("/documents", cfg.DocumentHandler.List)
		api.GET("/documents/:id", cfg.DocumentHandler.Get)
		api.PUT("/documents/:id", cfg.DocumentHandler.Update)
		api.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
		api.GET("/documents/:id/active", cfg.DocumentHandler.ActiveUnits)

		// Units
		api.POST("/units", cfg.LegalUnitHandler.Create)
		api.GET("/units/:id", cfg.LegalUnitHandler.Get)
		api.PUT("/units/:id", cfg.LegalUnitHandler.Update)
		api.DELETE("/units/:id", cfg.LegalUnitHandler.Delete)
		api.POST("/units/:id/reprocess", cfg.LegalUnitHandler.Reprocess)
		api.POST("/units/:id/changes", cfg.LegalUnitHandler.ApplyChange)
		api.GET("/units/:id/changes", cfg.LegalUnitHandler.Timeline)
		api.GET("/units/:id/consistency", cfg.LegalUnitHandler.CheckConsistency)

		// Sync
		api.GET("/sync/status", cfg.SyncHandler.Status)
		api.POST("/sync/run", cfg.SyncHandler.Run)
		api.POST("/sync/verify", cfg.SyncHandler.Verify)
		api.POST("/sync/cleanup", cfg.SyncHandler.Cleanup)
		api.POST("/sync/resync", cfg.SyncHandler.Resync)
	}

	return router
}
