package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/qavanin/ingest-backend/internal/clients/coreindex"
	"github.com/qavanin/ingest-backend/internal/clients/openai"
	"github.com/qavanin/ingest-backend/internal/db"
	"github.com/qavanin/ingest-backend/internal/handlers"
	"github.com/qavanin/ingest-backend/internal/jobs"
	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/server"
	"github.com/qavanin/ingest-backend/internal/services"
	"github.com/qavanin/ingest-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8080", log)
	coreBaseURL := utils.GetEnv("CORE_BASE_URL", "http://localhost:9000", log)
	coreAPIKey := utils.GetEnv("CORE_API_KEY", "", log)
	coreTimeout := utils.GetEnvAsInt("CORE_TIMEOUT_SECONDS", 30, log)
	syncCfg := services.LoadSyncConfig(log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewLegalDocumentRepo(thePG, log)
	unitRepo := repos.NewLegalUnitRepo(thePG, log)
	changeRepo := repos.NewUnitChangeRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)
	syncRecordRepo := repos.NewSyncRecordRepo(thePG, log)
	deletionLogRepo := repos.NewDeletionLogRepo(thePG, log)
	syncStatsRepo := repos.NewSyncStatsRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	coreClient, err := coreindex.New(log, coreindex.Config{
		BaseURL: coreBaseURL,
		APIKey:  coreAPIKey,
		Timeout: time.Duration(coreTimeout) * time.Second,
	})
	if err != nil {
		log.Fatal("Core client init failed", "error", err)
	}
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}

	// Services
	log.Info("Setting up Services from main...")
	syncEngine := services.NewSyncEngine(
		thePG, syncCfg,
		documentRepo, unitRepo, chunkRepo, embeddingRepo,
		syncRecordRepo, deletionLogRepo, syncStatsRepo,
		coreClient, log,
	)
	ingestService := services.NewIngestService(thePG, syncCfg, unitRepo, chunkRepo, embeddingRepo, openaiClient, syncEngine, log)
	changeService := services.NewChangeService(thePG, unitRepo, changeRepo, embeddingRepo, log)
	unitService := services.NewUnitService(thePG, unitRepo, ingestService, syncEngine, log)
	documentService := services.NewDocumentService(thePG, documentRepo, unitRepo, syncEngine, log)

	// Worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := jobs.NewSyncWorker(syncEngine, syncCfg, log)
	worker.Start(ctx)

	// Handlers
	log.Info("Setting up Handlers from main...")
	documentHandler := handlers.NewDocumentHandler(log, documentService, changeService)
	legalUnitHandler := handlers.NewLegalUnitHandler(log, unitService, changeService)
	syncHandler := handlers.NewSyncHandler(log, syncEngine)

	// Router
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:  documentHandler,
		LegalUnitHandler: legalUnitHandler,
		SyncHandler:      syncHandler,
	})

	log.Info("Starting server...", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
