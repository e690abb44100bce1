// Package pool provides draftable entities. Each league plugs in its own
// candidate filter and ranking; the registry answers "best available" queries
// and caches ranked lists.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// ErrUnknownLeague is returned for leagues with no registered source
var ErrUnknownLeague = errors.New("no entity source for league")

// Entity is one draftable player, show or character
type Entity struct {
	Ref      models.EntityRef `json:"ref"`
	Name     string           `json:"name"`
	Team     string           `json:"team"`
	Position string           `json:"position"`
	Era      string           `json:"era"`
	Rating   float64          `json:"rating"`
	// Score is set by ranking
	Score float64 `json:"score"`
}

// Query describes which candidates a caller wants, best first
type Query struct {
	League        models.League
	Eras          []string
	Teams         []string
	Positions     []string
	ScoringMethod string
	// Needs counts positions the participant on the clock still has to fill
	Needs   map[string]int
	Exclude []models.EntityRef
	Limit   int
}

// Capability is the per-league plug-in
type Capability interface {
	FilterCandidates(ctx context.Context, q Query) ([]Entity, error)
	Rank(ctx context.Context, q Query, candidates []Entity) ([]Entity, error)
}

// Source is a capability that can also resolve a single reference
type Source interface {
	Capability
	Lookup(ref models.EntityRef) (Entity, bool)
}

// Provider answers ranked candidate queries
type Provider interface {
	Top(ctx context.Context, q Query) ([]Entity, error)
	Lookup(league models.League, ref models.EntityRef) (Entity, bool)
}

type cachedList struct {
	at       time.Time
	entities []Entity
}

// Registry routes queries to the source registered for the league
type Registry struct {
	sources map[models.League]Source
	cache   *lru.ARCCache
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry whose ranked lists live for ttl
func NewRegistry(cacheSize int, ttl time.Duration) (*Registry, error) {
	c, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("lru new instance of lru arc cache: %v", err)
	}
	return &Registry{
		sources: make(map[models.League]Source),
		cache:   c,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Register installs src for league, replacing any previous source
func (r *Registry) Register(league models.League, src Source) {
	r.sources[league] = src
	r.cache.Purge()
}

func (r *Registry) Lookup(league models.League, ref models.EntityRef) (Entity, bool) {
	src, ok := r.sources[league]
	if !ok {
		return Entity{}, false
	}
	return src.Lookup(ref)
}

// Top returns up to q.Limit ranked candidates that are not excluded
func (r *Registry) Top(ctx context.Context, q Query) ([]Entity, error) {
	src, ok := r.sources[q.League]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLeague, q.League)
	}

	key := q.cacheKey()
	var ranked []Entity
	if v, ok := r.cache.Get(key); ok {
		if c := v.(cachedList); r.now().Sub(c.at) < r.ttl {
			ranked = c.entities
		}
	}
	if ranked == nil {
		candidates, err := src.FilterCandidates(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("filter %s candidates: %w", q.League, err)
		}
		ranked, err = src.Rank(ctx, q, candidates)
		if err != nil {
			return nil, fmt.Errorf("rank %s candidates: %w", q.League, err)
		}
		r.cache.Add(key, cachedList{at: r.now(), entities: ranked})
	}

	excluded := make(map[models.EntityRef]bool, len(q.Exclude))
	for _, ref := range q.Exclude {
		excluded[ref] = true
	}
	out := []Entity{}
	for _, e := range ranked {
		if excluded[e.Ref] {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// cacheKey covers every field that changes the ranked list; exclusions and
// limit are applied after the cache
func (q Query) cacheKey() string {
	parts := []string{
		string(q.League),
		joinSorted(q.Eras),
		joinSorted(q.Teams),
		joinSorted(q.Positions),
		q.ScoringMethod,
	}
	needs := make([]string, 0, len(q.Needs))
	for pos, n := range q.Needs {
		if n > 0 {
			needs = append(needs, pos+"="+strconv.Itoa(n))
		}
	}
	sort.Strings(needs)
	parts = append(parts, strings.Join(needs, ","))
	return strings.Join(parts, "|")
}

func joinSorted(xs []string) string {
	s := append([]string(nil), xs...)
	sort.Strings(s)
	return strings.Join(s, ",")
}

// sortByScore orders best first with the id as tie-break
func sortByScore(es []Entity) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Score != es[j].Score {
			return es[i].Score > es[j].Score
		}
		return es[i].Ref.ID < es[j].Ref.ID
	})
}
