package dal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDAL implements Store using SQLite
type SQLiteDAL struct {
	*sqlStore
}

// NewSQLiteDAL creates a new SQLite data access layer
func NewSQLiteDAL(dbPath string) (*SQLiteDAL, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite locks the whole file anyway
	db.SetMaxOpenConns(1)

	dal := &SQLiteDAL{sqlStore: &sqlStore{db: db}}
	if err := dal.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return dal, nil
}

func (s *SQLiteDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		code TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	return nil
}
