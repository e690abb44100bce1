package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// PickEvent is one committed pick as stored for analytics
type PickEvent struct {
	ID          string
	SessionID   string
	League      models.League
	EntityID    string
	EntityKind  string
	Slot        int
	Participant int
	IsAutoPick  bool
	PickedAt    time.Time
}

// NewPickEvent builds the analytics row for a pick made by participant
func NewPickEvent(sessionID string, league models.League, participant int, p models.Pick) PickEvent {
	return PickEvent{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		League:      league,
		EntityID:    p.Entity.ID,
		EntityKind:  p.Entity.Kind,
		Slot:        p.Slot,
		Participant: participant,
		IsAutoPick:  p.IsAutoPick,
		PickedAt:    p.CreatedAt,
	}
}

// Client records picks in ClickHouse and reads pick rates back for ranking
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the draft_picks table if it is missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS draft_picks (
			id String,
			session_id String,
			league LowCardinality(String),
			entity_id String,
			entity_kind LowCardinality(String),
			slot UInt16,
			participant UInt16,
			is_auto_pick UInt8,
			picked_at DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (league, entity_id, picked_at)
	`
	if err := c.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create draft_picks: %w", err)
	}
	return nil
}

// RecordPick appends one pick event
func (c *Client) RecordPick(ctx context.Context, ev PickEvent) error {
	var auto uint8
	if ev.IsAutoPick {
		auto = 1
	}
	err := c.conn.Exec(ctx, `
		INSERT INTO draft_picks
			(id, session_id, league, entity_id, entity_kind, slot, participant, is_auto_pick, picked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, string(ev.League), ev.EntityID, ev.EntityKind,
		uint16(ev.Slot), uint16(ev.Participant), auto, ev.PickedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pick %s: %w", ev.ID, err)
	}
	return nil
}

// PickCounts returns how many times each entity was picked in the last 30
// days. Auto-picks are left out so the ranking follows human choices.
func (c *Client) PickCounts(ctx context.Context, league models.League) (map[string]uint64, error) {
	query := `
		SELECT entity_id, count() AS picks
		FROM draft_picks
		WHERE league = ?
		AND is_auto_pick = 0
		AND picked_at >= now() - INTERVAL 30 DAY
		GROUP BY entity_id
	`

	rows, err := c.conn.Query(ctx, query, string(league))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var id string
		var n uint64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
