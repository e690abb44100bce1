package engine

import (
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

type ActionType string

const (
	ActMakePick       ActionType = "MakePick"
	ActPause          ActionType = "Pause"
	ActResume         ActionType = "Resume"
	ActCancel         ActionType = "Cancel"
	ActRequestRematch ActionType = "RequestRematch"
	ActMarkReady      ActionType = "MarkReady"
	ActStartRematch   ActionType = "StartRematch"
	ActClaimSeat      ActionType = "ClaimSeat"
)

/*
	MakePick       -> PickMade -> TurnAdvanced | DraftCompleted
	Pause/Resume   -> SessionPaused / SessionResumed (resume restarts the turn clock)
	Cancel         -> SessionCancelled, terminal
	RequestRematch -> RematchRequested (host ready)
	MarkReady      -> ReadyMarked, nothing when already ready
	StartRematch   -> RematchStarted carrying the spawned session
	ClaimSeat      -> SeatClaimed
*/

// Action is one client or scheduler intent against a draft
type Action struct {
	Type ActionType `json:"type"`
	// Slot 0 means the lowest open slot of the active participant
	Slot         int              `json:"slot,omitempty"`
	Entity       models.EntityRef `json:"entity"`
	IsAutoPick   bool             `json:"isAutoPick,omitempty"`
	Seat         int              `json:"seat,omitempty"`
	DisplayName  string           `json:"displayName,omitempty"`
	NewSessionID string           `json:"-"`
}

// Actor is who submitted an action. UserID is empty for anonymous
// pass-and-play clients; System marks the deadline scheduler.
type Actor struct {
	UserID string
	System bool
}

// User is an actor resolved from an authenticated request
func User(id string) Actor { return Actor{UserID: id} }

// System is the actor used for scheduler-generated actions
var System = Actor{System: true}

type EventType string

const (
	EvtPickMade         EventType = "PickMade"
	EvtTurnAdvanced     EventType = "TurnAdvanced"
	EvtDraftCompleted   EventType = "DraftCompleted"
	EvtSessionPaused    EventType = "SessionPaused"
	EvtSessionResumed   EventType = "SessionResumed"
	EvtSessionCancelled EventType = "SessionCancelled"
	EvtRematchRequested EventType = "RematchRequested"
	EvtReadyMarked      EventType = "ReadyMarked"
	EvtRematchStarted   EventType = "RematchStarted"
	EvtSeatClaimed      EventType = "SeatClaimed"
)

type Event struct {
	Type        EventType            `json:"type"`
	Participant int                  `json:"participant,omitempty"`
	TurnIndex   int                  `json:"turnIndex,omitempty"`
	Pick        *models.Pick         `json:"pick,omitempty"`
	UserID      string               `json:"userId,omitempty"`
	Spawned     *models.DraftSession `json:"spawned,omitempty"`
}

// Apply validates a against s and returns the resulting events and state.
// It performs no I/O. Rejections leave s untouched; an empty event list with
// a nil error means the action was a no-op.
func Apply(s models.DraftSession, a Action, actor Actor, now time.Time) ([]Event, models.DraftSession, error) {
	if err := Validate(s); err != nil {
		return nil, s, err
	}
	if s.Saved.Status() == models.StatusCancelled {
		return nil, s, ErrSessionCancelled
	}

	next := s.Clone()
	var (
		events []Event
		err    error
	)
	switch a.Type {
	case ActMakePick:
		events, err = makePick(&next, a, actor, now)
	case ActPause:
		events, err = pause(&next, actor)
	case ActResume:
		events, err = resume(&next, actor, now)
	case ActCancel:
		events, err = cancel(&next, actor)
	case ActRequestRematch:
		events, err = requestRematch(&next, actor)
	case ActMarkReady:
		events, err = markReady(&next, actor)
	case ActStartRematch:
		events, err = startRematch(&next, a, actor, now)
	case ActClaimSeat:
		events, err = claimSeat(&next, a, actor)
	default:
		err = Reject(ReasonInvalidAction, "unsupported action %q", a.Type)
	}
	if err != nil {
		return nil, s, err
	}
	if len(events) == 0 {
		return nil, s, nil
	}
	return events, next, nil
}

func makePick(s *models.DraftSession, a Action, actor Actor, now time.Time) ([]Event, error) {
	if IsComplete(*s) {
		return nil, ErrSessionComplete
	}
	if a.Entity.IsZero() {
		return nil, Reject(ReasonInvalidAction, "pick without entity")
	}

	p := ActiveParticipant(*s)
	slot := a.Slot
	if slot == 0 {
		var ok bool
		if slot, ok = LowestOpenSlot(*s, p); !ok {
			return nil, ErrNoSlotAvailable
		}
	}

	if !mayPick(*s, p, a.IsAutoPick, actor) {
		return nil, ErrNotYourTurn
	}

	if slot < 1 || slot > s.TotalSlots() || ParticipantForSlot(*s, slot) != p || filledSlots(*s)[slot] {
		return nil, ErrInvalidSlot
	}
	for _, existing := range s.Picks {
		if existing.Entity == a.Entity {
			return nil, ErrEntityAlreadyPicked
		}
	}

	pick := models.Pick{Slot: slot, Entity: a.Entity, IsAutoPick: a.IsAutoPick, CreatedAt: now}
	s.Picks = append(s.Picks, pick)
	s.TurnStartedAt = now

	events := []Event{{Type: EvtPickMade, Participant: p, TurnIndex: len(s.Picks) - 1, Pick: &pick, UserID: actor.UserID}}
	if IsComplete(*s) {
		s.Saved.SetStatus(models.StatusComplete)
		return append(events, Event{Type: EvtDraftCompleted}), nil
	}
	return append(events, Event{Type: EvtTurnAdvanced, Participant: ActiveParticipant(*s), TurnIndex: TurnIndex(*s)}), nil
}

// mayPick applies seat authorization. Offline sessions accept any actor,
// and auto-picks skip the seat check so the scheduler or another client can
// cover an absent seat.
func mayPick(s models.DraftSession, p int, auto bool, actor Actor) bool {
	if !s.IsOnline() || actor.System || auto {
		return true
	}
	return actor.UserID != "" && s.Online.SeatAssignments[p-1] == actor.UserID
}

// isHost is true for offline sessions, where any actor may run host actions
func isHost(s models.DraftSession, actor Actor) bool {
	host := s.HostUserID()
	if host == "" {
		return true
	}
	return actor.UserID == host
}

func pause(s *models.DraftSession, actor Actor) ([]Event, error) {
	if !isHost(*s, actor) {
		return nil, ErrNotHost
	}
	switch s.Saved.Status() {
	case models.StatusComplete:
		return nil, ErrSessionComplete
	case models.StatusSaved:
		return nil, nil
	}
	s.Saved.SetStatus(models.StatusSaved)
	return []Event{{Type: EvtSessionPaused, UserID: actor.UserID}}, nil
}

func resume(s *models.DraftSession, actor Actor, now time.Time) ([]Event, error) {
	if !isHost(*s, actor) {
		return nil, ErrNotHost
	}
	switch s.Saved.Status() {
	case models.StatusComplete:
		return nil, ErrSessionComplete
	case models.StatusInProgress:
		return nil, nil
	}
	s.Saved.SetStatus(models.StatusInProgress)
	s.TurnStartedAt = now
	return []Event{{Type: EvtSessionResumed, UserID: actor.UserID, Participant: ActiveParticipant(*s), TurnIndex: TurnIndex(*s)}}, nil
}

func cancel(s *models.DraftSession, actor Actor) ([]Event, error) {
	if !isHost(*s, actor) {
		return nil, ErrNotHost
	}
	s.Saved.SetStatus(models.StatusCancelled)
	return []Event{{Type: EvtSessionCancelled, UserID: actor.UserID}}, nil
}

func rematchOpen(s models.DraftSession) bool {
	return s.IsOnline() && IsComplete(s) && s.Saved.RematchSessionID() == ""
}

func requestRematch(s *models.DraftSession, actor Actor) ([]Event, error) {
	if !rematchOpen(*s) {
		return nil, ErrRematchUnavailable
	}
	if actor.UserID != s.HostUserID() {
		return nil, ErrNotHost
	}
	ready := s.Saved.ReadyMap()
	if s.Saved.RematchRequested() && ready[actor.UserID] {
		return nil, nil
	}
	ready[actor.UserID] = true
	s.Saved.SetRematchRequested(true)
	s.Saved.SetReadyMap(ready)
	return []Event{{Type: EvtRematchRequested, UserID: actor.UserID}}, nil
}

func markReady(s *models.DraftSession, actor Actor) ([]Event, error) {
	if !rematchOpen(*s) || !s.Saved.RematchRequested() {
		return nil, ErrRematchUnavailable
	}
	if !holdsSeat(*s, actor.UserID) {
		return nil, ErrNotSeated
	}
	ready := s.Saved.ReadyMap()
	if ready[actor.UserID] {
		return nil, nil
	}
	ready[actor.UserID] = true
	s.Saved.SetReadyMap(ready)
	return []Event{{Type: EvtReadyMarked, UserID: actor.UserID}}, nil
}

// startRematch does not wait for every seat to be ready; the host decides.
func startRematch(s *models.DraftSession, a Action, actor Actor, now time.Time) ([]Event, error) {
	if !rematchOpen(*s) {
		return nil, ErrRematchUnavailable
	}
	if actor.UserID != s.HostUserID() {
		return nil, ErrNotHost
	}
	if a.NewSessionID == "" {
		return nil, Reject(ReasonInvalidAction, "rematch needs a session id")
	}

	spawned := s.Clone()
	spawned.ID = a.NewSessionID
	spawned.Picks = []models.Pick{}
	spawned.Saved = models.NewSavedState(models.StatusInProgress)
	spawned.Saved.SetRematchOf(s.ID)
	spawned.TurnStartedAt = now
	spawned.CreatedAt = now

	s.Saved.SetRematchSessionID(a.NewSessionID)
	s.Saved.SetRematchRequested(false)
	return []Event{{Type: EvtRematchStarted, UserID: actor.UserID, Spawned: &spawned}}, nil
}

func claimSeat(s *models.DraftSession, a Action, actor Actor) ([]Event, error) {
	if !s.IsOnline() {
		return nil, Reject(ReasonInvalidAction, "offline sessions have no seats")
	}
	if actor.UserID == "" {
		return nil, ErrNotSeated
	}
	if len(s.Picks) > 0 {
		return nil, ErrSessionStarted
	}
	if a.Seat < 1 || a.Seat > s.ParticipantCount {
		return nil, ErrInvalidSlot
	}
	seats := s.Online.SeatAssignments
	for len(s.Online.SeatDisplayNames) < len(seats) {
		s.Online.SeatDisplayNames = append(s.Online.SeatDisplayNames, "")
	}
	switch seats[a.Seat-1] {
	case actor.UserID:
		return nil, nil
	case "":
	default:
		return nil, ErrSeatTaken
	}
	for i, uid := range seats {
		if uid == actor.UserID {
			seats[i] = ""
			s.Online.SeatDisplayNames[i] = ""
		}
	}
	seats[a.Seat-1] = actor.UserID
	s.Online.SeatDisplayNames[a.Seat-1] = a.DisplayName
	return []Event{{Type: EvtSeatClaimed, Participant: a.Seat, UserID: actor.UserID}}, nil
}

func holdsSeat(s models.DraftSession, userID string) bool {
	if userID == "" || s.Online == nil {
		return false
	}
	for _, uid := range s.Online.SeatAssignments {
		if uid == userID {
			return true
		}
	}
	return false
}

// ContainsEvent reports whether events has one of type t
func ContainsEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}
