package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

func TestNewPickEvent(t *testing.T) {
	at := time.Date(2026, 4, 2, 20, 0, 0, 0, time.UTC)
	p := models.Pick{Slot: 5, Entity: models.EntityRef{ID: "nfl-kelce", Kind: "player"}, IsAutoPick: true, CreatedAt: at}

	ev := NewPickEvent("d-1", models.LeagueNFL, 2, p)
	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Fatalf("event id is not a uuid: %v", err)
	}
	if ev.SessionID != "d-1" || ev.League != models.LeagueNFL || ev.Participant != 2 {
		t.Errorf("unexpected header fields: %+v", ev)
	}
	if ev.EntityID != "nfl-kelce" || ev.EntityKind != "player" || ev.Slot != 5 || !ev.IsAutoPick || !ev.PickedAt.Equal(at) {
		t.Errorf("pick fields not copied: %+v", ev)
	}
	if other := NewPickEvent("d-1", models.LeagueNFL, 2, p); other.ID == ev.ID {
		t.Errorf("two events share id %s", ev.ID)
	}
}

// Runs only against a real server, e.g. CLICKHOUSE_TEST_ADDR=localhost:9000
func TestRecordAndCount(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_TEST_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_TEST_ADDR not set")
	}
	c, err := NewClient(addr, "default", "default", "")
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}

	entity := "toon-" + uuid.NewString()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		p := models.Pick{Slot: i + 1, Entity: models.EntityRef{ID: entity, Kind: "character"}, CreatedAt: now}
		if err := c.RecordPick(ctx, NewPickEvent("d-ch", models.LeagueCartoon, 1, p)); err != nil {
			t.Fatalf("RecordPick() failed: %v", err)
		}
	}
	auto := models.Pick{Slot: 9, Entity: models.EntityRef{ID: entity, Kind: "character"}, IsAutoPick: true, CreatedAt: now}
	if err := c.RecordPick(ctx, NewPickEvent("d-ch", models.LeagueCartoon, 1, auto)); err != nil {
		t.Fatalf("RecordPick() failed: %v", err)
	}

	counts, err := c.PickCounts(ctx, models.LeagueCartoon)
	if err != nil {
		t.Fatalf("PickCounts() failed: %v", err)
	}
	if counts[entity] != 3 {
		t.Errorf("count = %d, want 3", counts[entity])
	}
}
