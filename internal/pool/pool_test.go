package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

func init() {
	logger.Init()
}

type countingSource struct {
	*Catalog
	filters int
}

func (c *countingSource) FilterCandidates(ctx context.Context, q Query) ([]Entity, error) {
	c.filters++
	return c.Catalog.FilterCandidates(ctx, q)
}

type fixedStats struct {
	counts map[string]uint64
	err    error
}

func (f fixedStats) PickCounts(context.Context, models.League) (map[string]uint64, error) {
	return f.counts, f.err
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(16, time.Minute)
	require.NoError(t, err)
	for league, c := range DefaultCatalogs() {
		r.Register(league, c)
	}
	return r
}

func ids(es []Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Ref.ID
	}
	return out
}

func TestTopRanksByRating(t *testing.T) {
	r := newRegistry(t)
	got, err := r.Top(context.Background(), Query{League: models.LeagueNBA, Limit: 3})
	require.NoError(t, err)
	// ties at 99 break by id
	assert.Equal(t, []string{"nba-jordan", "nba-lebron", "nba-jokic"}, ids(got))
}

func TestTopExcludesPicked(t *testing.T) {
	r := newRegistry(t)
	q := Query{
		League:  models.LeagueNBA,
		Exclude: []models.EntityRef{{ID: "nba-jordan", Kind: "player"}},
		Limit:   1,
	}
	got, err := r.Top(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nba-lebron", got[0].Ref.ID)
}

func TestTopFilters(t *testing.T) {
	r := newRegistry(t)
	got, err := r.Top(context.Background(), Query{
		League:    models.LeagueCartoon,
		Eras:      []string{"1990s"},
		Positions: []string{"villain"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"toon-burns", "toon-mojo"}, ids(got))
	for _, e := range got {
		assert.Equal(t, "character", e.Ref.Kind)
	}
}

func TestTopNeedsBonus(t *testing.T) {
	r := newRegistry(t)
	got, err := r.Top(context.Background(), Query{
		League: models.LeagueNBA,
		Needs:  map[string]int{"PG": 1},
		Limit:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "nba-curry", got[0].Ref.ID)
}

func TestNFLScoringMethod(t *testing.T) {
	r := newRegistry(t)
	std, err := r.Top(context.Background(), Query{League: models.LeagueNFL, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, models.EntityRef{ID: "nfl-brady", Kind: "player"}, std[0].Ref)

	ppr, err := r.Top(context.Background(), Query{League: models.LeagueNFL, ScoringMethod: "ppr", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "nfl-rice", ppr[0].Ref.ID)
}

func TestUnknownLeague(t *testing.T) {
	r, err := NewRegistry(4, time.Minute)
	require.NoError(t, err)
	_, err = r.Top(context.Background(), Query{League: models.LeagueNBA})
	assert.True(t, errors.Is(err, ErrUnknownLeague))

	_, ok := r.Lookup(models.LeagueNBA, models.EntityRef{ID: "nba-jordan"})
	assert.False(t, ok)
}

func TestRankedListIsCached(t *testing.T) {
	r, err := NewRegistry(4, time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	src := &countingSource{Catalog: DefaultCatalogs()[models.LeagueNBA]}
	r.Register(models.LeagueNBA, src)

	ctx := context.Background()
	_, err = r.Top(ctx, Query{League: models.LeagueNBA, Limit: 1})
	require.NoError(t, err)
	// exclusions and limit do not change the cache key
	_, err = r.Top(ctx, Query{League: models.LeagueNBA, Limit: 5, Exclude: []models.EntityRef{{ID: "nba-kobe"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, src.filters)

	now = now.Add(2 * time.Minute)
	_, err = r.Top(ctx, Query{League: models.LeagueNBA, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, src.filters, "expired entry should be rebuilt")
}

func TestCacheKeyIgnoresOrder(t *testing.T) {
	a := Query{League: models.LeagueNBA, Eras: []string{"1990s", "2000s"}, Needs: map[string]int{"C": 1, "PG": 0}}
	b := Query{League: models.LeagueNBA, Eras: []string{"2000s", "1990s"}, Needs: map[string]int{"C": 1}}
	assert.Equal(t, a.cacheKey(), b.cacheKey())
}

func TestLookup(t *testing.T) {
	r := newRegistry(t)
	e, ok := r.Lookup(models.LeagueNFL, models.EntityRef{ID: "nfl-kelce", Kind: "player"})
	require.True(t, ok)
	assert.Equal(t, "Travis Kelce", e.Name)
}

func TestPopularityRanker(t *testing.T) {
	base := DefaultCatalogs()[models.LeagueCartoon]
	r, err := NewRegistry(4, time.Minute)
	require.NoError(t, err)
	r.Register(models.LeagueCartoon, &PopularityRanker{
		Catalog: base,
		Stats:   fixedStats{counts: map[string]uint64{"toon-bluey": 5000}},
		Weight:  2,
	})

	got, err := r.Top(context.Background(), Query{League: models.LeagueCartoon, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "toon-bluey", got[0].Ref.ID)
}

func TestPopularityRankerFallsBack(t *testing.T) {
	p := &PopularityRanker{
		Catalog: DefaultCatalogs()[models.LeagueCartoon],
		Stats:   fixedStats{err: errors.New("clickhouse down")},
		Weight:  2,
	}
	ctx := context.Background()
	cands, err := p.FilterCandidates(ctx, Query{League: models.LeagueCartoon})
	require.NoError(t, err)
	got, err := p.Rank(ctx, Query{League: models.LeagueCartoon}, cands)
	require.NoError(t, err)
	assert.Equal(t, "toon-bugs", got[0].Ref.ID)
}
