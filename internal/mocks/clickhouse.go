package mocks

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/gamefilter/internal/clickhouse"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// MockPickStats stands in for ClickHouse pick analytics during local
// development. It starts from a few seeded pick counts and adds every
// recorded human pick.
type MockPickStats struct {
	mu     sync.RWMutex
	counts map[models.League]map[string]uint64
	events []clickhouse.PickEvent
}

// NewMockPickStats creates mock analytics with seeded popularity
func NewMockPickStats() *MockPickStats {
	logger.Info("Using MOCK ClickHouse pick stats for local development")

	return &MockPickStats{
		counts: map[models.League]map[string]uint64{
			models.LeagueNBA: {
				"nba-curry":   42,
				"nba-jokic":   37,
				"nba-giannis": 31,
			},
			models.LeagueNFL: {
				"nfl-mccaffrey": 55,
				"nfl-jefferson": 40,
				"nfl-kelce":     33,
			},
			models.LeagueCartoon: {
				"toon-bluey":     61,
				"toon-spongebob": 48,
				"toon-homer":     29,
			},
		},
	}
}

// RecordPick stores the event; auto-picks do not count towards popularity
func (m *MockPickStats) RecordPick(_ context.Context, ev clickhouse.PickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	if ev.IsAutoPick {
		return nil
	}
	if m.counts[ev.League] == nil {
		m.counts[ev.League] = map[string]uint64{}
	}
	m.counts[ev.League][ev.EntityID]++
	return nil
}

// PickCounts returns a copy of the league's counts
func (m *MockPickStats) PickCounts(_ context.Context, league models.League) (map[string]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]uint64, len(m.counts[league]))
	for id, n := range m.counts[league] {
		out[id] = n
	}
	return out, nil
}

// Events returns every recorded pick event
func (m *MockPickStats) Events() []clickhouse.PickEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]clickhouse.PickEvent(nil), m.events...)
}

func (m *MockPickStats) Ping(context.Context) error { return nil }

// Close is a no-op for mock client
func (m *MockPickStats) Close() error {
	return nil
}
