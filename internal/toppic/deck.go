package toppic

import "math/rand"

// HandSize is how many response cards a participant holds after a redeal
const HandSize = 7

// Deck is a shuffled prompt list plus the shared response draw queue
type Deck struct {
	Prompts   []string
	Responses []string
}

// NewDeck shuffles the built-in cards with rng
func NewDeck(rng *rand.Rand) Deck {
	d := Deck{
		Prompts:   append([]string(nil), basePrompts...),
		Responses: append([]string(nil), baseResponses...),
	}
	rng.Shuffle(len(d.Prompts), func(i, j int) { d.Prompts[i], d.Prompts[j] = d.Prompts[j], d.Prompts[i] })
	rng.Shuffle(len(d.Responses), func(i, j int) { d.Responses[i], d.Responses[j] = d.Responses[j], d.Responses[i] })
	return d
}

var basePrompts = []string{
	"The photo your group chat would never let you live down",
	"What the mascot does after the cameras leave",
	"The real reason the coach called a timeout",
	"A halftime show nobody asked for",
	"The trade that broke the internet",
	"What the rookie packed for the first road trip",
	"The worst possible team name",
	"The thing every fantasy manager secretly regrets",
	"What the referee was actually looking at",
	"Overheard in the locker room",
	"The new rule the league is hiding from fans",
	"A draft day outfit that should be illegal",
	"What cartoon villains do on their day off",
	"The snack that decided the championship",
	"The tattoo the star player regrets most",
	"How the season really ended",
	"The next big sports drink flavor",
	"What the bench players talk about",
	"A press conference gone completely wrong",
	"The secret ingredient in the team's pregame meal",
	"The least intimidating war cry",
	"What fans chanted for three straight quarters",
	"The weirdest thing found in a stadium lost and found",
	"The real MVP of the night",
}

var baseResponses = []string{
	"A suspiciously confident pigeon",
	"Three raccoons in a trench coat",
	"An extremely loud kazoo solo",
	"The world's saddest nachos",
	"A motivational poster from 1987",
	"Grandma's secret playbook",
	"An inflatable tube man with ambition",
	"A jersey two sizes too small",
	"Unlimited breadsticks",
	"A foam finger of destiny",
	"The commissioner's burner account",
	"A perfectly timed sneeze",
	"An emotional support hot dog",
	"Interpretive dance",
	"A very aggressive mascot hug",
	"The backup goalie's mixtape",
	"A trophy made of pasta",
	"Socks with sandals",
	"The Jumbotron kiss cam",
	"An accidental reply-all",
	"A rubber chicken",
	"Fourteen energy drinks",
	"A dramatic slow clap",
	"The wave, but backwards",
	"A cursed bobblehead",
	"Extra innings of paperwork",
	"A bench-clearing pillow fight",
	"The ghost of a former coach",
	"A spreadsheet with feelings",
	"An overly detailed scouting report",
	"A cardboard cutout of the owner",
	"Confetti in places it shouldn't be",
	"The team dentist",
	"A celebrity who just wandered in",
	"A bag of lukewarm popcorn",
	"A hat trick of bad decisions",
	"Unsolicited hot takes",
	"A slightly haunted stadium organ",
	"Instant replay of a yawn",
	"The snack bar's mystery meat",
	"A very serious power nap",
	"A lost tourist with a whistle",
	"A glitter cannon",
	"Dad jokes on the big screen",
	"An overpriced souvenir cup",
	"A dramatic cape",
	"The parking lot tailgate chef",
	"A questionable high five",
	"The loudest fan in section 108",
	"A chalkboard full of arrows",
	"A motivational goat",
	"Sunflower seeds everywhere",
	"The secret handshake",
	"A confused cartoon duck",
	"A sentient rally towel",
	"An interception of snacks",
	"The intern with the clipboard",
	"A stadium hot dog race",
	"A victory lap in a shopping cart",
	"A mascot identity crisis",
	"Season tickets to nowhere",
	"A fog machine malfunction",
	"The coach's lucky sweater",
	"An unnecessary drumline",
	"A pregame pep talk from a toddler",
	"The rookie's first autograph",
	"A very long group hug",
	"A blimp with opinions",
	"A suspicious amount of glitter",
	"Mom yelling from the stands",
	"A dramatic fake injury",
	"The team bus GPS",
	"A playoff beard that gained sentience",
	"A mountain of orange slices",
	"A slow-motion victory dance",
	"Two left cleats",
	"A mascot union meeting",
	"The good scissors",
	"Press box gossip",
	"A cartoon anvil",
	"An unexpected bagpipe solo",
	"Halftime karaoke",
	"The final boss of bench warmers",
	"A trophy polishing ceremony",
}
