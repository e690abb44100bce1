package pool

import (
	"context"
	"slices"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

const needBonus = 15

// Catalog is a fixed in-process entity list for one league
type Catalog struct {
	league   models.League
	entities []Entity
	byRef    map[models.EntityRef]Entity
	score    func(q Query, e Entity) float64
}

// NewCatalog builds a catalog with the default rating-based score
func NewCatalog(league models.League, entities []Entity) *Catalog {
	c := &Catalog{
		league:   league,
		entities: entities,
		byRef:    make(map[models.EntityRef]Entity, len(entities)),
		score:    ratingScore,
	}
	for _, e := range entities {
		c.byRef[e.Ref] = e
	}
	return c
}

// DefaultCatalogs returns the built-in NBA, NFL and cartoon catalogs
func DefaultCatalogs() map[models.League]*Catalog {
	nfl := NewCatalog(models.LeagueNFL, nflEntities)
	nfl.score = nflScore
	return map[models.League]*Catalog{
		models.LeagueNBA:     NewCatalog(models.LeagueNBA, nbaEntities),
		models.LeagueNFL:     nfl,
		models.LeagueCartoon: NewCatalog(models.LeagueCartoon, cartoonEntities),
	}
}

func (c *Catalog) Lookup(ref models.EntityRef) (Entity, bool) {
	e, ok := c.byRef[ref]
	return e, ok
}

// FilterCandidates applies era, team and position constraints. Empty lists
// mean no constraint.
func (c *Catalog) FilterCandidates(_ context.Context, q Query) ([]Entity, error) {
	out := []Entity{}
	for _, e := range c.entities {
		if len(q.Eras) > 0 && !slices.Contains(q.Eras, e.Era) {
			continue
		}
		if len(q.Teams) > 0 && !slices.Contains(q.Teams, e.Team) {
			continue
		}
		if len(q.Positions) > 0 && !slices.Contains(q.Positions, e.Position) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Catalog) Rank(_ context.Context, q Query, candidates []Entity) ([]Entity, error) {
	out := make([]Entity, len(candidates))
	for i, e := range candidates {
		e.Score = c.score(q, e)
		out[i] = e
	}
	sortByScore(out)
	return out, nil
}

func ratingScore(q Query, e Entity) float64 {
	s := e.Rating
	if q.Needs[e.Position] > 0 {
		s += needBonus
	}
	return s
}

// nflScore weights positions by fantasy value; ppr lifts pass catchers
func nflScore(q Query, e Entity) float64 {
	weight := map[string]float64{"QB": 1.1, "RB": 1.0, "WR": 1.0, "TE": 0.9, "K": 0.6, "DEF": 0.7}[e.Position]
	if weight == 0 {
		weight = 1
	}
	if q.ScoringMethod == "ppr" && (e.Position == "WR" || e.Position == "TE" || e.Position == "RB") {
		weight += 0.15
	}
	s := e.Rating * weight
	if q.Needs[e.Position] > 0 {
		s += needBonus
	}
	return s
}

func player(league, id, name, team, pos, era string, rating float64) Entity {
	return Entity{
		Ref:      models.EntityRef{ID: league + "-" + id, Kind: "player"},
		Name:     name,
		Team:     team,
		Position: pos,
		Era:      era,
		Rating:   rating,
	}
}

func character(id, name, network, role, era string, rating float64) Entity {
	return Entity{
		Ref:      models.EntityRef{ID: "toon-" + id, Kind: "character"},
		Name:     name,
		Team:     network,
		Position: role,
		Era:      era,
		Rating:   rating,
	}
}

var nbaEntities = []Entity{
	player("nba", "jordan", "Michael Jordan", "CHI", "SG", "1990s", 99),
	player("nba", "pippen", "Scottie Pippen", "CHI", "SF", "1990s", 90),
	player("nba", "olajuwon", "Hakeem Olajuwon", "HOU", "C", "1990s", 95),
	player("nba", "malone", "Karl Malone", "UTA", "PF", "1990s", 92),
	player("nba", "stockton", "John Stockton", "UTA", "PG", "1990s", 89),
	player("nba", "shaq", "Shaquille O'Neal", "LAL", "C", "2000s", 97),
	player("nba", "kobe", "Kobe Bryant", "LAL", "SG", "2000s", 97),
	player("nba", "duncan", "Tim Duncan", "SAS", "PF", "2000s", 96),
	player("nba", "nash", "Steve Nash", "PHX", "PG", "2000s", 91),
	player("nba", "garnett", "Kevin Garnett", "BOS", "PF", "2000s", 93),
	player("nba", "lebron", "LeBron James", "MIA", "SF", "2010s", 99),
	player("nba", "curry", "Stephen Curry", "GSW", "PG", "2010s", 97),
	player("nba", "durant", "Kevin Durant", "GSW", "SF", "2010s", 96),
	player("nba", "leonard", "Kawhi Leonard", "SAS", "SF", "2010s", 93),
	player("nba", "harden", "James Harden", "HOU", "SG", "2010s", 92),
	player("nba", "jokic", "Nikola Jokic", "DEN", "C", "2020s", 98),
	player("nba", "giannis", "Giannis Antetokounmpo", "MIL", "PF", "2020s", 97),
	player("nba", "doncic", "Luka Doncic", "DAL", "PG", "2020s", 95),
	player("nba", "tatum", "Jayson Tatum", "BOS", "SF", "2020s", 92),
	player("nba", "embiid", "Joel Embiid", "PHI", "C", "2020s", 94),
}

var nflEntities = []Entity{
	player("nfl", "montana", "Joe Montana", "SF", "QB", "1980s", 96),
	player("nfl", "rice", "Jerry Rice", "SF", "WR", "1990s", 99),
	player("nfl", "sanders", "Barry Sanders", "DET", "RB", "1990s", 97),
	player("nfl", "smith", "Emmitt Smith", "DAL", "RB", "1990s", 93),
	player("nfl", "favre", "Brett Favre", "GB", "QB", "1990s", 92),
	player("nfl", "brady", "Tom Brady", "NE", "QB", "2000s", 99),
	player("nfl", "manning", "Peyton Manning", "IND", "QB", "2000s", 97),
	player("nfl", "tomlinson", "LaDainian Tomlinson", "LAC", "RB", "2000s", 95),
	player("nfl", "moss", "Randy Moss", "MIN", "WR", "2000s", 95),
	player("nfl", "gonzalez", "Tony Gonzalez", "KC", "TE", "2000s", 91),
	player("nfl", "vinatieri", "Adam Vinatieri", "NE", "K", "2000s", 88),
	player("nfl", "gronkowski", "Rob Gronkowski", "NE", "TE", "2010s", 94),
	player("nfl", "johnson", "Calvin Johnson", "DET", "WR", "2010s", 94),
	player("nfl", "peterson", "Adrian Peterson", "MIN", "RB", "2010s", 94),
	player("nfl", "rodgers", "Aaron Rodgers", "GB", "QB", "2010s", 95),
	player("nfl", "tucker", "Justin Tucker", "BAL", "K", "2010s", 90),
	player("nfl", "mahomes", "Patrick Mahomes", "KC", "QB", "2020s", 98),
	player("nfl", "kelce", "Travis Kelce", "KC", "TE", "2020s", 95),
	player("nfl", "jefferson", "Justin Jefferson", "MIN", "WR", "2020s", 96),
	player("nfl", "mccaffrey", "Christian McCaffrey", "SF", "RB", "2020s", 96),
	player("nfl", "allen", "Josh Allen", "BUF", "QB", "2020s", 95),
	player("nfl", "chase", "Ja'Marr Chase", "CIN", "WR", "2020s", 93),
}

var cartoonEntities = []Entity{
	character("bugs", "Bugs Bunny", "Warner", "hero", "1940s", 98),
	character("daffy", "Daffy Duck", "Warner", "sidekick", "1940s", 90),
	character("elmer", "Elmer Fudd", "Warner", "villain", "1940s", 82),
	character("tom", "Tom Cat", "MGM", "villain", "1940s", 86),
	character("jerry", "Jerry Mouse", "MGM", "hero", "1940s", 89),
	character("fred", "Fred Flintstone", "Hanna-Barbera", "hero", "1960s", 88),
	character("scooby", "Scooby-Doo", "Hanna-Barbera", "hero", "1960s", 94),
	character("shaggy", "Shaggy Rogers", "Hanna-Barbera", "sidekick", "1960s", 87),
	character("homer", "Homer Simpson", "Fox", "hero", "1990s", 96),
	character("bart", "Bart Simpson", "Fox", "sidekick", "1990s", 91),
	character("burns", "Mr. Burns", "Fox", "villain", "1990s", 90),
	character("dexter", "Dexter", "Cartoon Network", "hero", "1990s", 84),
	character("mojo", "Mojo Jojo", "Cartoon Network", "villain", "1990s", 85),
	character("spongebob", "SpongeBob SquarePants", "Nickelodeon", "hero", "2000s", 97),
	character("patrick", "Patrick Star", "Nickelodeon", "sidekick", "2000s", 92),
	character("plankton", "Plankton", "Nickelodeon", "villain", "2000s", 86),
	character("aang", "Aang", "Nickelodeon", "hero", "2000s", 93),
	character("zuko", "Zuko", "Nickelodeon", "villain", "2000s", 94),
	character("finn", "Finn the Human", "Cartoon Network", "hero", "2010s", 89),
	character("jake", "Jake the Dog", "Cartoon Network", "sidekick", "2010s", 90),
	character("bluey", "Bluey", "ABC Kids", "hero", "2020s", 92),
	character("bandit", "Bandit Heeler", "ABC Kids", "sidekick", "2020s", 91),
}
