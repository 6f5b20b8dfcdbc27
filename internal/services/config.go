package services

import (
	"time"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/utils"
)

// SyncConfig carries every tunable of the ingest and sync pipeline. It is
// built once at startup and passed to the services that need it; nothing
// reads the environment after boot.
type SyncConfig struct {
	// Chunking
	ChunkMaxTokens     int
	ChunkOverlapTokens int

	// Push
	SyncBatchSize   int
	MaxSyncErrorLen int

	// Verification
	VerifyGracePeriod time.Duration
	VerifyBatchSize   int
	VerifyMaxRetries  int
	VerifyRatePerSec  float64

	// Cleanup
	CleanupBatchSize int

	// Worker cadence
	SyncInterval    time.Duration
	VerifyInterval  time.Duration
	CleanupInterval time.Duration
	StatsInterval   time.Duration
}

func LoadSyncConfig(log *logger.Logger) SyncConfig {
	return SyncConfig{
		ChunkMaxTokens:     utils.GetEnvAsInt("CHUNK_MAX_TOKENS", 512, log),
		ChunkOverlapTokens: utils.GetEnvAsInt("CHUNK_OVERLAP_TOKENS", 64, log),

		SyncBatchSize:   utils.GetEnvAsInt("SYNC_BATCH_SIZE", 100, log),
		MaxSyncErrorLen: utils.GetEnvAsInt("SYNC_MAX_ERROR_LEN", 500, log),

		VerifyGracePeriod: time.Duration(utils.GetEnvAsInt("VERIFY_GRACE_SECONDS", 60, log)) * time.Second,
		VerifyBatchSize:   utils.GetEnvAsInt("VERIFY_BATCH_SIZE", 100, log),
		VerifyMaxRetries:  utils.GetEnvAsInt("VERIFY_MAX_RETRIES", 3, log),
		VerifyRatePerSec:  float64(utils.GetEnvAsInt("VERIFY_RATE_PER_SEC", 10, log)),

		CleanupBatchSize: utils.GetEnvAsInt("CLEANUP_BATCH_SIZE", 100, log),

		SyncInterval:    time.Duration(utils.GetEnvAsInt("SYNC_INTERVAL_SECONDS", 30, log)) * time.Second,
		VerifyInterval:  time.Duration(utils.GetEnvAsInt("VERIFY_INTERVAL_SECONDS", 120, log)) * time.Second,
		CleanupInterval: time.Duration(utils.GetEnvAsInt("CLEANUP_INTERVAL_SECONDS", 600, log)) * time.Second,
		StatsInterval:   time.Duration(utils.GetEnvAsInt("STATS_INTERVAL_SECONDS", 300, log)) * time.Second,
	}
}
