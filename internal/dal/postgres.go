package dal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresDAL implements Store using PostgreSQL
type PostgresDAL struct {
	*sqlStore
}

// NewPostgresDAL creates a new PostgreSQL data access layer optimized for CloudNativePG
func NewPostgresDAL(connString string) (*PostgresDAL, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	// CloudNativePG optimization: Configure connection pool settings
	db.SetMaxOpenConns(25)                 // Limit max connections (CloudNativePG default max_connections is 100)
	db.SetMaxIdleConns(5)                  // Keep some idle connections for quick reuse
	db.SetConnMaxLifetime(5 * time.Minute) // Recycle connections to handle failovers gracefully
	db.SetConnMaxIdleTime(1 * time.Minute) // Close idle connections to reduce load

	// Retry the first ping while Kubernetes DNS settles
	maxRetries := 5
	retryDelay := 5 * time.Second
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	dal := &PostgresDAL{sqlStore: &sqlStore{db: db, dollar: true}}
	if err := dal.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return dal, nil
}

func (p *PostgresDAL) initSchema() error {
	// data is TEXT rather than JSONB so stored documents keep their exact bytes
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		code TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- CloudNativePG optimization: index the restore scan
	CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
	CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	return nil
}
