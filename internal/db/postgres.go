package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
	"github.com/qavanin/ingest-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "qavanin", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.LegalDocument{},
		&types.LegalUnit{},
		&types.UnitChange{},
		&types.Chunk{},
		&types.Embedding{},
		&types.SyncRecord{},
		&types.DeletionLog{},
		&types.SyncStats{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for _, ddl := range []string{
		`ALTER TABLE "legal_unit"
		 ADD CONSTRAINT "fk_legal_unit_document_id"
		 FOREIGN KEY ("document_id") REFERENCES "legal_document"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "unit_change"
		 ADD CONSTRAINT "fk_unit_change_unit_id"
		 FOREIGN KEY ("unit_id") REFERENCES "legal_unit"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "chunk"
		 ADD CONSTRAINT "fk_chunk_unit_id"
		 FOREIGN KEY ("unit_id") REFERENCES "legal_unit"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "embedding"
		 ADD CONSTRAINT "fk_embedding_chunk_id"
		 FOREIGN KEY ("chunk_id") REFERENCES "chunk"("id")
		 ON DELETE CASCADE`,
	} {
		if err := s.db.Exec(ddl).Error; err != nil {
			// Re-running migrations hits duplicate_object; that is fine.
			s.log.Debug("FK constraint not applied", "error", err)
		}
	}

	// SyncRecord intentionally has NO foreign key on chunk_id: an orphaned
	// record (chunk gone, remote node possibly alive) is a state the cleanup
	// job must be able to observe, not one the database should prevent.
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
