package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"api-tracking/internal/config"
)

type Database struct {
	DB     *sql.DB
	logger *zap.Logger
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*Database, error) {
	// Build PostgreSQL connection string
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully",
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	database := &Database{
		DB:     db,
		logger: logger,
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return database.Close()
		},
	})

	return database, nil
}

// New wraps an already opened handle, used by tests and tools
func New(db *sql.DB, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{DB: db, logger: logger}
}

func (d *Database) Migrate() error {
	// Append-only audit table, one row per logged request
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS api_request_logs (
		id BIGSERIAL PRIMARY KEY,
		requested_at TIMESTAMPTZ NOT NULL,
		response_ms BIGINT NOT NULL DEFAULT 0,
		path VARCHAR(1024) NOT NULL DEFAULT '',
		view VARCHAR(255) DEFAULT '',
		view_method VARCHAR(64) DEFAULT '',
		host VARCHAR(255) DEFAULT '',
		method VARCHAR(16) NOT NULL,
		remote_addr VARCHAR(64) DEFAULT '',
		query_params JSONB,
		data JSONB,
		response JSONB,
		streamed BOOLEAN NOT NULL DEFAULT FALSE,
		errors JSONB,
		status_code INTEGER NOT NULL,
		user_id VARCHAR(255),
		username_persistent VARCHAR(255) DEFAULT ''
	);
	`

	_, err := d.DB.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create api_request_logs table: %w", err)
	}

	// Create indexes separately
	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_api_request_logs_requested_at ON api_request_logs(requested_at);
	CREATE INDEX IF NOT EXISTS idx_api_request_logs_path ON api_request_logs(path);
	`
	_, err = d.DB.Exec(createIndexSQL)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}
