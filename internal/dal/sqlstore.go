package dal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Records are stored as JSON documents next to an integer version column;
// the version guard lives in the UPDATE's WHERE clause.
type sqlStore struct {
	db     *sql.DB
	dollar bool
}

// bind rewrites ? placeholders to $n for drivers that need it
func (s *sqlStore) bind(query string) string {
	if !s.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) GetDraft(ctx context.Context, id string) (DraftRecord, error) {
	var data string
	var rec DraftRecord
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT version, data FROM drafts WHERE id = ?`), id).Scan(&rec.Version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return DraftRecord{}, ErrNotFound
	}
	if err != nil {
		return DraftRecord{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Session); err != nil {
		return DraftRecord{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return rec, nil
}

func (s *sqlStore) CreateDraft(ctx context.Context, d models.DraftSession) (DraftRecord, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return DraftRecord{}, fmt.Errorf("encode draft %s: %w", d.ID, err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO drafts (id, version, status, data, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), d.ID, string(d.Saved.Status()), string(data), time.Now().UnixMilli())
	if err != nil {
		return DraftRecord{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return DraftRecord{}, err
	} else if n == 0 {
		return DraftRecord{}, ErrExists
	}
	return DraftRecord{Session: d.Clone(), Version: 1}, nil
}

func (s *sqlStore) SwapDraft(ctx context.Context, id string, expected int64, next models.DraftSession) (DraftRecord, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return DraftRecord{}, fmt.Errorf("encode draft %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE drafts SET version = version + 1, status = ?, data = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`), string(next.Saved.Status()), string(data), time.Now().UnixMilli(), id, expected)
	if err != nil {
		return DraftRecord{}, err
	}
	if err := s.checkSwap(ctx, res, "drafts", "id", id); err != nil {
		return DraftRecord{}, err
	}
	return DraftRecord{Session: next.Clone(), Version: expected + 1}, nil
}

func (s *sqlStore) ListActiveDrafts(ctx context.Context) ([]DraftRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, version, data FROM drafts WHERE status = ? ORDER BY id
	`), string(models.StatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DraftRecord{}
	for rows.Next() {
		var id, data string
		var rec DraftRecord
		if err := rows.Scan(&id, &rec.Version, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &rec.Session); err != nil {
			return nil, fmt.Errorf("decode draft %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetRoom(ctx context.Context, code string) (RoomRecord, error) {
	var data string
	var rec RoomRecord
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT version, data FROM rooms WHERE code = ?`), code).Scan(&rec.Version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomRecord{}, ErrNotFound
	}
	if err != nil {
		return RoomRecord{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Room); err != nil {
		return RoomRecord{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	return rec, nil
}

func (s *sqlStore) CreateRoom(ctx context.Context, r models.RoomSession) (RoomRecord, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("encode room %s: %w", r.Code, err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO rooms (code, version, status, data, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING
	`), r.Code, string(r.Status), string(data), time.Now().UnixMilli())
	if err != nil {
		return RoomRecord{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return RoomRecord{}, err
	} else if n == 0 {
		return RoomRecord{}, ErrExists
	}
	return RoomRecord{Room: r.Clone(), Version: 1}, nil
}

func (s *sqlStore) SwapRoom(ctx context.Context, code string, expected int64, next models.RoomSession) (RoomRecord, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("encode room %s: %w", code, err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE rooms SET version = version + 1, status = ?, data = ?, updated_at = ?
		WHERE code = ? AND version = ?
	`), string(next.Status), string(data), time.Now().UnixMilli(), code, expected)
	if err != nil {
		return RoomRecord{}, err
	}
	if err := s.checkSwap(ctx, res, "rooms", "code", code); err != nil {
		return RoomRecord{}, err
	}
	return RoomRecord{Room: next.Clone(), Version: expected + 1}, nil
}

// checkSwap tells a lost race apart from a missing row
func (s *sqlStore) checkSwap(ctx context.Context, res sql.Result, table, key, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, key)
	if err := s.db.QueryRowContext(ctx, s.bind(q), id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
