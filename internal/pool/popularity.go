package pool

import (
	"context"
	"math"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// PickStats reports how often each entity id has been drafted in a league
type PickStats interface {
	PickCounts(ctx context.Context, league models.League) (map[string]uint64, error)
}

// PopularityRanker boosts entities other drafters pick often. If the stats
// backend fails it falls back to the catalog's own ranking.
type PopularityRanker struct {
	*Catalog
	Stats  PickStats
	Weight float64
}

func (p *PopularityRanker) Rank(ctx context.Context, q Query, candidates []Entity) ([]Entity, error) {
	ranked, err := p.Catalog.Rank(ctx, q, candidates)
	if err != nil || p.Stats == nil {
		return ranked, err
	}

	counts, err := p.Stats.PickCounts(ctx, p.league)
	if err != nil {
		logger.Warn("Pick stats unavailable, using base ranking", "league", p.league, "error", err)
		return ranked, nil
	}
	for i := range ranked {
		ranked[i].Score += p.Weight * math.Log1p(float64(counts[ranked[i].Ref.ID]))
	}
	sortByScore(ranked)
	return ranked, nil
}
