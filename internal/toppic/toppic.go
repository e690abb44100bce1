// Package toppic is the round-based room coordinator for the TopPic card game.
// Like the draft engine, Apply is pure: it validates an action against a room
// and returns the next room plus the events that describe the change.
package toppic

import (
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// DefaultMaxParticipants caps a room
const DefaultMaxParticipants = 20

const minPlayers = 2

type ActionType string

const (
	ActJoin       ActionType = "Join"
	ActLeave      ActionType = "Leave"
	ActKick       ActionType = "Kick"
	ActStartGame  ActionType = "StartGame"
	ActSubmit     ActionType = "MarkSubmission"
	ActPickWinner ActionType = "PickWinner"
	ActEndGame    ActionType = "EndGame"
)

type Action struct {
	Type ActionType `json:"type"`
	// UserID is the kick target or the round winner
	UserID      string    `json:"userId,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Card        string    `json:"card,omitempty"`
	Settings    *Settings `json:"settings,omitempty"`
}

// Settings are chosen by the host before the game starts
type Settings struct {
	ScoringMode models.ScoringMode `json:"scoringMode"`
	TargetScore int                `json:"targetScore"`
	Unlimited   bool               `json:"unlimited"`
}

type EventType string

const (
	EvtJoined        EventType = "Joined"
	EvtLeft          EventType = "Left"
	EvtKicked        EventType = "Kicked"
	EvtHostChanged   EventType = "HostChanged"
	EvtGameStarted   EventType = "GameStarted"
	EvtSubmitted     EventType = "Submitted"
	EvtRoundResolved EventType = "RoundResolved"
	EvtJudgeRotated  EventType = "JudgeRotated"
	EvtGameEnded     EventType = "GameEnded"
)

type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId,omitempty"`
	Round  int       `json:"round,omitempty"`
	Card   string    `json:"card,omitempty"`
}

// NewRoom opens a lobby with the host as its only participant
func NewRoom(code, hostID, hostName string, settings Settings, deck Deck, now time.Time) (models.RoomSession, error) {
	if hostID == "" {
		return models.RoomSession{}, engine.Reject(engine.ReasonInvalidAction, "room needs a host")
	}
	if err := validSettings(settings); err != nil {
		return models.RoomSession{}, err
	}
	return models.RoomSession{
		Code:            code,
		HostUserID:      hostID,
		Status:          models.RoomLobby,
		Participants:    []models.Participant{{UserID: hostID, DisplayName: hostName, IsHost: true}},
		MaxParticipants: DefaultMaxParticipants,
		Game: models.ToppicState{
			Scores:        map[string]int{},
			Hands:         map[string][]string{},
			Prompts:       append([]string(nil), deck.Prompts...),
			ResponseQueue: append([]string(nil), deck.Responses...),
			Submissions:   map[string]string{},
			ScoringMode:   settings.ScoringMode,
			TargetScore:   settings.TargetScore,
			Unlimited:     settings.Unlimited,
			History:       []models.RoundResult{},
		},
		Extra:     models.NewBag(),
		CreatedAt: now,
	}, nil
}

func validSettings(s Settings) error {
	switch s.ScoringMode {
	case models.ScoringJudge, models.ScoringCPU:
	default:
		return engine.Reject(engine.ReasonInvalidAction, "unknown scoring mode %q", s.ScoringMode)
	}
	if s.TargetScore < 0 {
		return engine.Reject(engine.ReasonInvalidAction, "targetScore %d", s.TargetScore)
	}
	return nil
}

// Apply validates a from actor against r. Rejections leave r untouched.
func Apply(r models.RoomSession, a Action, actor string, now time.Time) ([]Event, models.RoomSession, error) {
	if r.Status == models.RoomEnded {
		return nil, r, engine.ErrGameEnded
	}

	next := r.Clone()
	if next.Game.Scores == nil {
		next.Game.Scores = map[string]int{}
	}
	if next.Game.Hands == nil {
		next.Game.Hands = map[string][]string{}
	}
	if next.Game.Submissions == nil {
		next.Game.Submissions = map[string]string{}
	}

	var (
		events []Event
		err    error
	)
	switch a.Type {
	case ActJoin:
		events, err = join(&next, a, actor)
	case ActLeave:
		events, err = leave(&next, actor, now)
	case ActKick:
		events, err = kick(&next, a, actor, now)
	case ActStartGame:
		events, err = startGame(&next, a, actor)
	case ActSubmit:
		events, err = submit(&next, a, actor, now)
	case ActPickWinner:
		events, err = pickWinner(&next, a, actor, now)
	case ActEndGame:
		if actor != next.HostUserID {
			return nil, r, engine.ErrNotHost
		}
		next.Status = models.RoomEnded
		events = []Event{{Type: EvtGameEnded, UserID: actor}}
	default:
		err = engine.Reject(engine.ReasonInvalidAction, "unsupported action %q", a.Type)
	}
	if err != nil {
		return nil, r, err
	}
	if len(events) == 0 {
		return nil, r, nil
	}
	return events, next, nil
}

func join(r *models.RoomSession, a Action, actor string) ([]Event, error) {
	if actor == "" {
		return nil, engine.ErrNotParticipant
	}
	if _, ok := r.Participant(actor); ok {
		return nil, nil
	}
	limit := r.MaxParticipants
	if limit <= 0 {
		limit = DefaultMaxParticipants
	}
	if len(r.Participants) >= limit {
		return nil, engine.ErrRoomFull
	}
	r.Participants = append(r.Participants, models.Participant{UserID: actor, DisplayName: a.DisplayName})
	if r.Status == models.RoomActive {
		r.Game.Scores[actor] = 0
		deal(r)
	}
	return []Event{{Type: EvtJoined, UserID: actor}}, nil
}

func leave(r *models.RoomSession, actor string, now time.Time) ([]Event, error) {
	if _, ok := r.Participant(actor); !ok {
		return nil, engine.ErrNotParticipant
	}
	events := []Event{{Type: EvtLeft, UserID: actor}}
	return append(events, remove(r, actor, now)...), nil
}

func kick(r *models.RoomSession, a Action, actor string, now time.Time) ([]Event, error) {
	if actor != r.HostUserID {
		return nil, engine.ErrNotHost
	}
	if a.UserID == r.HostUserID {
		return nil, engine.Reject(engine.ReasonInvalidAction, "host cannot be kicked")
	}
	if _, ok := r.Participant(a.UserID); !ok {
		return nil, engine.ErrNotParticipant
	}
	events := []Event{{Type: EvtKicked, UserID: a.UserID}}
	return append(events, remove(r, a.UserID, now)...), nil
}

// remove drops a participant with everything they hold. The host role passes
// to the next participant in join order; an empty room ends.
func remove(r *models.RoomSession, userID string, now time.Time) []Event {
	var events []Event
	idx := -1
	for i, p := range r.Participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	delete(r.Game.Scores, userID)
	delete(r.Game.Hands, userID)
	delete(r.Game.Submissions, userID)

	if len(r.Participants) == 0 {
		r.Status = models.RoomEnded
		return append(events, Event{Type: EvtGameEnded})
	}

	if userID == r.HostUserID {
		r.Participants[0].IsHost = true
		r.HostUserID = r.Participants[0].UserID
		events = append(events, Event{Type: EvtHostChanged, UserID: r.HostUserID})
	}

	if r.Status != models.RoomActive {
		return events
	}
	if r.Game.CurrentJudge == userID {
		// idx now points at whoever followed the departed judge
		judge := r.Participants[idx%len(r.Participants)].UserID
		if card, ok := r.Game.Submissions[judge]; ok {
			r.Game.Hands[judge] = append(r.Game.Hands[judge], card)
			delete(r.Game.Submissions, judge)
		}
		r.Game.CurrentJudge = judge
		events = append(events, Event{Type: EvtJudgeRotated, UserID: r.Game.CurrentJudge})
	}
	return append(events, autoResolve(r, now)...)
}

func startGame(r *models.RoomSession, a Action, actor string) ([]Event, error) {
	if actor != r.HostUserID {
		return nil, engine.ErrNotHost
	}
	if r.Status != models.RoomLobby {
		return nil, engine.Reject(engine.ReasonInvalidAction, "game already started")
	}
	if len(r.Participants) < minPlayers {
		return nil, engine.Reject(engine.ReasonInvalidAction, "need at least %d players", minPlayers)
	}
	if len(r.Game.Prompts) == 0 {
		return nil, engine.Reject(engine.ReasonInvalidAction, "deck has no prompts")
	}
	if a.Settings != nil {
		if err := validSettings(*a.Settings); err != nil {
			return nil, err
		}
		r.Game.ScoringMode = a.Settings.ScoringMode
		r.Game.TargetScore = a.Settings.TargetScore
		r.Game.Unlimited = a.Settings.Unlimited
	}

	r.Status = models.RoomActive
	r.Game.Round = 1
	r.Game.PromptIndex = 0
	r.Game.Submissions = map[string]string{}
	for _, p := range r.Participants {
		r.Game.Scores[p.UserID] = 0
	}
	deal(r)
	if r.Game.ScoringMode == models.ScoringJudge {
		r.Game.CurrentJudge = r.Participants[0].UserID
	}
	return []Event{{Type: EvtGameStarted, UserID: actor, Round: 1}}, nil
}

func submit(r *models.RoomSession, a Action, actor string, now time.Time) ([]Event, error) {
	if r.Status != models.RoomActive {
		return nil, engine.Reject(engine.ReasonInvalidAction, "game not started")
	}
	if _, ok := r.Participant(actor); !ok {
		return nil, engine.ErrNotParticipant
	}
	if _, ok := r.Game.Submissions[actor]; ok {
		return nil, engine.ErrAlreadySubmitted
	}
	if r.Game.ScoringMode == models.ScoringJudge && actor == r.Game.CurrentJudge {
		return nil, engine.Reject(engine.ReasonInvalidAction, "judge does not submit")
	}
	hand := r.Game.Hands[actor]
	at := indexOf(hand, a.Card)
	if at < 0 {
		return nil, engine.Reject(engine.ReasonInvalidAction, "card not in hand")
	}

	r.Game.Hands[actor] = append(hand[:at], hand[at+1:]...)
	r.Game.Submissions[actor] = a.Card
	events := []Event{{Type: EvtSubmitted, UserID: actor, Round: r.Game.Round}}
	return append(events, autoResolve(r, now)...), nil
}

func pickWinner(r *models.RoomSession, a Action, actor string, now time.Time) ([]Event, error) {
	if r.Status != models.RoomActive {
		return nil, engine.Reject(engine.ReasonInvalidAction, "game not started")
	}
	judge := r.Game.ScoringMode == models.ScoringJudge && actor == r.Game.CurrentJudge
	if actor != r.HostUserID && !judge {
		return nil, engine.ErrNotHost
	}
	if _, ok := r.Game.Submissions[a.UserID]; !ok {
		return nil, engine.Reject(engine.ReasonInvalidAction, "%s has not submitted", a.UserID)
	}
	return resolve(r, a.UserID, now), nil
}

// autoResolve closes a cpu-scored round once every participant has a card in
func autoResolve(r *models.RoomSession, now time.Time) []Event {
	if r.Game.ScoringMode != models.ScoringCPU || r.Status != models.RoomActive {
		return nil
	}
	if len(r.Game.Submissions) == 0 || len(r.Game.Submissions) < len(r.Participants) {
		return nil
	}
	winner := CPUChoice(r.Game.Prompts[r.Game.PromptIndex], r.Game.Submissions)
	return resolve(r, winner, now)
}

func resolve(r *models.RoomSession, winner string, now time.Time) []Event {
	g := &r.Game
	card := g.Submissions[winner]
	g.Scores[winner]++
	g.History = append(g.History, models.RoundResult{
		Round:        g.Round,
		PromptIndex:  g.PromptIndex,
		WinnerUserID: winner,
		Card:         card,
		ResolvedAt:   now,
	})
	g.Submissions = map[string]string{}
	events := []Event{{Type: EvtRoundResolved, UserID: winner, Round: g.Round, Card: card}}

	lastPrompt := g.PromptIndex+1 >= len(g.Prompts)
	reachedTarget := !g.Unlimited && g.TargetScore > 0 && g.Scores[winner] >= g.TargetScore
	if lastPrompt || reachedTarget {
		r.Status = models.RoomEnded
		return append(events, Event{Type: EvtGameEnded, UserID: winner})
	}

	g.PromptIndex++
	g.Round++
	deal(r)
	if g.ScoringMode == models.ScoringJudge {
		g.CurrentJudge = nextAfter(r.Participants, g.CurrentJudge)
		events = append(events, Event{Type: EvtJudgeRotated, UserID: g.CurrentJudge, Round: g.Round})
	}
	return events
}

// deal tops every hand up to HandSize from the front of the response queue.
// Drawn cards never return to the queue.
func deal(r *models.RoomSession) {
	for _, p := range r.Participants {
		hand := r.Game.Hands[p.UserID]
		for len(hand) < HandSize && len(r.Game.ResponseQueue) > 0 {
			hand = append(hand, r.Game.ResponseQueue[0])
			r.Game.ResponseQueue = r.Game.ResponseQueue[1:]
		}
		if hand == nil {
			hand = []string{}
		}
		r.Game.Hands[p.UserID] = hand
	}
}

func nextAfter(ps []models.Participant, userID string) string {
	for i, p := range ps {
		if p.UserID == userID {
			return ps[(i+1)%len(ps)].UserID
		}
	}
	return ps[0].UserID
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
