package models

import (
	"encoding/json"
	"time"
)

// League identifies which entity pool a draft is played over
type League string

const (
	LeagueNBA     League = "NBA"
	LeagueNFL     League = "NFL"
	LeagueCartoon League = "CARTOON"
)

// Valid reports whether l is one of the known leagues
func (l League) Valid() bool {
	switch l {
	case LeagueNBA, LeagueNFL, LeagueCartoon:
		return true
	}
	return false
}

// Mode is the rule preset a draft was created with
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeCasual  Mode = "casual"
	ModeFree    Mode = "free"
)

// Status is the lifecycle flag stored in a session's saved state
type Status string

const (
	StatusSaved      Status = "saved"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
)

// EntityRef is an opaque reference to a draftable player, show or character
type EntityRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// IsZero reports whether the reference is empty
func (e EntityRef) IsZero() bool {
	return e.ID == ""
}

// Pick is one filled roster slot
type Pick struct {
	Slot       int       `json:"slot"`
	Entity     EntityRef `json:"entity"`
	IsAutoPick bool      `json:"isAutoPick"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RuleConfig is fixed for the lifetime of a session
type RuleConfig struct {
	TimerSeconds         *int           `json:"timerSeconds"`
	AutoPickEnabled      bool           `json:"autoPickEnabled"`
	Eras                 []string       `json:"eras,omitempty"`
	Teams                []string       `json:"teams,omitempty"`
	Positions            []string       `json:"positions,omitempty"`
	PositionRequirements map[string]int `json:"positionRequirements,omitempty"`
	ScoringMethod        string         `json:"scoringMethod,omitempty"`
	// Extra keeps rule keys this build does not know about
	Extra Bag `json:"-"`
}

type ruleConfigJSON RuleConfig

var ruleConfigKeys = jsonKeys(RuleConfig{})

func (r RuleConfig) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(ruleConfigJSON(r))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(data, r.Extra)
}

func (r *RuleConfig) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v ruleConfigJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := splitUnknown(data, ruleConfigKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*r = RuleConfig(v)
	return nil
}

// Timer returns the per-turn duration, or false when the timer is disabled
func (r RuleConfig) Timer() (time.Duration, bool) {
	if r.TimerSeconds == nil || *r.TimerSeconds <= 0 {
		return 0, false
	}
	return time.Duration(*r.TimerSeconds) * time.Second, true
}

// OnlineMeta is present only for sessions played across devices.
// SeatAssignments[i] holds the user seated as participant i+1; an empty
// string marks an open seat.
type OnlineMeta struct {
	RoomCode         string   `json:"roomCode"`
	HostUserID       string   `json:"hostUserId"`
	SeatAssignments  []string `json:"seatAssignments"`
	SeatDisplayNames []string `json:"seatDisplayNames"`
}

// DraftSession is the canonical record for one draft
type DraftSession struct {
	ID                  string      `json:"id"`
	League              League      `json:"league"`
	Mode                Mode        `json:"mode"`
	ParticipantCount    int         `json:"participantCount"`
	SlotsPerParticipant int         `json:"slotsPerParticipant"`
	Picks               []Pick      `json:"picks"`
	Rules               RuleConfig  `json:"rules"`
	Online              *OnlineMeta `json:"online,omitempty"`
	Saved               SavedState  `json:"savedState"`
	TurnStartedAt       time.Time   `json:"turnStartedAt"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// TotalSlots is participantCount × slotsPerParticipant
func (s DraftSession) TotalSlots() int {
	return s.ParticipantCount * s.SlotsPerParticipant
}

// IsOnline reports whether seat-based authorization applies
func (s DraftSession) IsOnline() bool {
	return s.Online != nil && len(s.Online.SeatAssignments) > 0
}

// HostUserID returns the designated host, or "" for offline sessions
func (s DraftSession) HostUserID() string {
	if s.Online == nil {
		return ""
	}
	return s.Online.HostUserID
}

// Clone returns a deep copy so transitions never alias the input
func (s DraftSession) Clone() DraftSession {
	out := s
	out.Picks = cloneSlice(s.Picks)
	out.Rules = s.Rules.clone()
	if s.Online != nil {
		o := *s.Online
		o.SeatAssignments = cloneSlice(s.Online.SeatAssignments)
		o.SeatDisplayNames = cloneSlice(s.Online.SeatDisplayNames)
		out.Online = &o
	}
	out.Saved = SavedState{Bag: s.Saved.Clone()}
	return out
}

func (r RuleConfig) clone() RuleConfig {
	out := r
	if r.TimerSeconds != nil {
		v := *r.TimerSeconds
		out.TimerSeconds = &v
	}
	out.Eras = cloneSlice(r.Eras)
	out.Teams = cloneSlice(r.Teams)
	out.Positions = cloneSlice(r.Positions)
	out.PositionRequirements = cloneMap(r.PositionRequirements)
	out.Extra = r.Extra.Clone()
	return out
}

// RoomStatus is the lifecycle of a TopPic room
type RoomStatus string

const (
	RoomLobby  RoomStatus = "lobby"
	RoomActive RoomStatus = "active"
	RoomEnded  RoomStatus = "ended"
)

// ScoringMode decides who resolves a TopPic round
type ScoringMode string

const (
	ScoringJudge ScoringMode = "judge"
	ScoringCPU   ScoringMode = "cpu"
)

// Participant is a connected room member
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

// RoundResult is one resolved TopPic round
type RoundResult struct {
	Round        int       `json:"round"`
	PromptIndex  int       `json:"promptIndex"`
	WinnerUserID string    `json:"winnerUserId"`
	Card         string    `json:"card"`
	ResolvedAt   time.Time `json:"resolvedAt"`
}

// ToppicState is the round-based game payload carried by a room
type ToppicState struct {
	Round         int                 `json:"round"`
	Scores        map[string]int      `json:"scores"`
	Hands         map[string][]string `json:"hands"`
	Prompts       []string            `json:"prompts"`
	PromptIndex   int                 `json:"promptIndex"`
	ResponseQueue []string            `json:"responseQueue"`
	Submissions   map[string]string   `json:"submissions"`
	CurrentJudge  string              `json:"currentJudge,omitempty"`
	ScoringMode   ScoringMode         `json:"scoringMode"`
	TargetScore   int                 `json:"targetScore,omitempty"`
	Unlimited     bool                `json:"unlimited"`
	History       []RoundResult       `json:"history"`
	// Extra keeps game keys this build does not know about
	Extra Bag `json:"-"`
}

type toppicStateJSON ToppicState

var toppicStateKeys = jsonKeys(ToppicState{})

func (g ToppicState) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(toppicStateJSON(g))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(data, g.Extra)
}

func (g *ToppicState) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v toppicStateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := splitUnknown(data, toppicStateKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*g = ToppicState(v)
	return nil
}

// RoomSession is a lobby plus its game
type RoomSession struct {
	Code            string        `json:"code"`
	HostUserID      string        `json:"hostUserId"`
	Status          RoomStatus    `json:"status"`
	Participants    []Participant `json:"participants"`
	MaxParticipants int           `json:"maxParticipants"`
	Game            ToppicState   `json:"gameState"`
	Extra           Bag           `json:"extra"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Participant returns the member with userID
func (r RoomSession) Participant(userID string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy of the room
func (r RoomSession) Clone() RoomSession {
	out := r
	out.Participants = cloneSlice(r.Participants)
	g := r.Game
	g.Scores = cloneMap(r.Game.Scores)
	g.Submissions = cloneMap(r.Game.Submissions)
	if r.Game.Hands != nil {
		g.Hands = make(map[string][]string, len(r.Game.Hands))
		for k, v := range r.Game.Hands {
			g.Hands[k] = cloneSlice(v)
		}
	}
	g.Prompts = cloneSlice(r.Game.Prompts)
	g.ResponseQueue = cloneSlice(r.Game.ResponseQueue)
	g.History = cloneSlice(r.Game.History)
	g.Extra = r.Game.Extra.Clone()
	out.Game = g
	out.Extra = r.Extra.Clone()
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneSlice copies s, keeping nil and empty distinct
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
