// Package service runs actions against stored sessions: load, apply the pure
// coordinator, commit with compare-and-swap, then publish and re-arm the turn
// deadline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/clickhouse"
	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pool"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

const (
	defaultRetries = 3
	roomCodeTries  = 5
	recordTimeout  = 5 * time.Second
)

// ErrNotFound is returned for unknown session ids and room codes
var ErrNotFound = dal.ErrNotFound

// errStale aborts a commit whose precondition no longer holds
var errStale = errors.New("stale action")

// Publisher delivers snapshots to realtime subscribers
type Publisher interface {
	Publish(pubsub.Event)
}

// PickRecorder stores committed picks for analytics
type PickRecorder interface {
	RecordPick(ctx context.Context, ev clickhouse.PickEvent) error
}

// Timers tracks the pending turn deadline of each session
type Timers interface {
	Arm(id string, turnIndex int, at time.Time)
	Disarm(id string)
}

type Options struct {
	Store     dal.Store
	Pool      pool.Provider
	Publisher Publisher
	// Recorder is optional
	Recorder PickRecorder
	// Retries bounds compare-and-swap attempts per action; defaults to 3
	Retries int
	Now     func() time.Time
}

type Service struct {
	store    dal.Store
	pool     pool.Provider
	pub      Publisher
	recorder PickRecorder
	timers   Timers
	retries  int
	now      func() time.Time
	newID    func() string
	newCode  func() (string, error)
	newDeck  func() toppic.Deck
	log      *slog.Logger
}

func New(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		pool:     opts.Pool,
		pub:      opts.Publisher,
		recorder: opts.Recorder,
		retries:  opts.Retries,
		now:      opts.Now,
		newID:    dal.NewID,
		newCode:  dal.NewRoomCode,
		newDeck: func() toppic.Deck {
			return toppic.NewDeck(rand.New(rand.NewSource(time.Now().UnixNano())))
		},
		log: logger.With("component", "service"),
	}
	if s.retries <= 0 {
		s.retries = defaultRetries
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// SetTimers attaches the deadline scheduler. It is set after construction
// because the scheduler calls back into AutoPick.
func (s *Service) SetTimers(t Timers) {
	s.timers = t
}

// Ping checks the backing store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateSession stores a new draft with no picks
func (s *Service) CreateSession(ctx context.Context, cfg engine.SessionConfig) (DraftSnapshot, error) {
	if cfg.Online != nil && cfg.Online.RoomCode == "" {
		code, err := s.newCode()
		if err != nil {
			return DraftSnapshot{}, fmt.Errorf("room code: %w", err)
		}
		cfg.Online.RoomCode = code
	}
	session, err := engine.NewSession(s.newID(), cfg, s.now())
	if err != nil {
		return DraftSnapshot{}, err
	}
	rec, err := s.store.CreateDraft(ctx, session)
	if err != nil {
		return DraftSnapshot{}, storeErr(err)
	}
	s.log.Info("Draft created", "session", session.ID, "league", session.League,
		"participants", session.ParticipantCount, "online", session.IsOnline())

	snap := NewDraftSnapshot(rec, nil)
	s.afterCommit(snap)
	return snap, nil
}

// GetSession returns the current snapshot of a draft
func (s *Service) GetSession(ctx context.Context, id string) (DraftSnapshot, error) {
	rec, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return DraftSnapshot{}, storeErr(err)
	}
	return NewDraftSnapshot(rec, nil), nil
}

// Submit applies a client action to a draft. A no-op action returns the
// current snapshot without writing.
func (s *Service) Submit(ctx context.Context, id string, a engine.Action, actor engine.Actor) (DraftSnapshot, error) {
	if a.Type == engine.ActStartRematch {
		a.NewSessionID = s.newID()
	}
	return s.commitDraft(ctx, id, actor, func(models.DraftSession) (engine.Action, error) {
		return a, nil
	})
}

// AutoPick drafts the best available entity for the turn at turnIndex. It is
// a no-op when that turn has already passed, the draft is no longer running
// or auto-pick is off.
func (s *Service) AutoPick(ctx context.Context, id string, turnIndex int) error {
	_, err := s.commitDraft(ctx, id, engine.System, func(cur models.DraftSession) (engine.Action, error) {
		if engine.TurnIndex(cur) != turnIndex || cur.Saved.Status() != models.StatusInProgress ||
			!cur.Rules.AutoPickEnabled || engine.IsComplete(cur) {
			return engine.Action{}, errStale
		}
		best, err := s.candidates(ctx, cur, 1)
		if err != nil {
			return engine.Action{}, err
		}
		if len(best) == 0 {
			return engine.Action{}, fmt.Errorf("%w: no candidates left", engine.ErrUpstreamUnavailable)
		}
		return engine.Action{Type: engine.ActMakePick, Entity: best[0].Ref, IsAutoPick: true}, nil
	})
	if errors.Is(err, errStale) {
		s.log.Debug("Auto-pick skipped", "session", id, "turn", turnIndex)
		return nil
	}
	return err
}

// Suggest returns the best available entities for the participant on the clock
func (s *Service) Suggest(ctx context.Context, id string, limit int) ([]pool.Entity, error) {
	rec, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.candidates(ctx, rec.Session, limit)
}

// Restore re-arms deadlines for every running draft, e.g. after a restart
func (s *Service) Restore(ctx context.Context) (int, error) {
	recs, err := s.store.ListActiveDrafts(ctx)
	if err != nil {
		return 0, storeErr(err)
	}
	armed := 0
	for _, rec := range recs {
		if s.rearm(rec.Session) {
			armed++
		}
	}
	s.log.Info("Restored draft deadlines", "active", len(recs), "armed", armed)
	return armed, nil
}

// commitDraft is the load, apply, compare-and-swap loop. build sees the
// freshly loaded session on every attempt.
func (s *Service) commitDraft(ctx context.Context, id string, actor engine.Actor, build func(models.DraftSession) (engine.Action, error)) (DraftSnapshot, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		rec, err := s.store.GetDraft(ctx, id)
		if err != nil {
			return DraftSnapshot{}, storeErr(err)
		}
		a, err := build(rec.Session)
		if err != nil {
			return DraftSnapshot{}, err
		}

		events, next, err := engine.Apply(rec.Session, a, actor, s.now())
		if err != nil {
			if errors.Is(err, engine.ErrCorruptState) {
				s.log.Error("Stored draft breaks invariants", "session", id, "error", err)
			} else {
				s.log.Debug("Action rejected", "session", id, "action", a.Type, "reason", reason(err), "error", err)
			}
			return DraftSnapshot{}, err
		}
		if len(events) == 0 {
			return NewDraftSnapshot(rec, nil), nil
		}

		committed, err := s.store.SwapDraft(ctx, id, rec.Version, next)
		if errors.Is(err, dal.ErrConflict) {
			s.log.Debug("Draft write conflict, retrying", "session", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return DraftSnapshot{}, storeErr(err)
		}

		s.log.Info("Draft updated", "session", id, "action", a.Type, "version", committed.Version, "picks", len(next.Picks))
		snap := NewDraftSnapshot(committed, events)
		s.afterCommit(snap)
		s.recordPicks(next, events)
		if spawned := spawnedSession(events); spawned != nil {
			if err := s.createSpawned(ctx, *spawned); err != nil {
				return snap, err
			}
		}
		return snap, nil
	}
	s.log.Warn("Draft write conflict budget exhausted", "session", id, "attempts", s.retries)
	return DraftSnapshot{}, engine.ErrConflict
}

func spawnedSession(events []engine.Event) *models.DraftSession {
	for _, ev := range events {
		if ev.Type == engine.EvtRematchStarted && ev.Spawned != nil {
			return ev.Spawned
		}
	}
	return nil
}

func (s *Service) createSpawned(ctx context.Context, next models.DraftSession) error {
	rec, err := s.store.CreateDraft(ctx, next)
	if err != nil {
		s.log.Error("Rematch session could not be stored", "session", next.ID, "rematchOf", next.Saved.RematchOf(), "error", err)
		return storeErr(err)
	}
	s.log.Info("Rematch started", "session", next.ID, "rematchOf", next.Saved.RematchOf())
	s.afterCommit(NewDraftSnapshot(rec, nil))
	return nil
}

func (s *Service) afterCommit(snap DraftSnapshot) {
	s.rearm(snap.Session)
	if s.pub == nil {
		return
	}
	ev, err := snap.Event()
	if err != nil {
		s.log.Error("Snapshot encode failed", "session", snap.Session.ID, "error", err)
		return
	}
	s.pub.Publish(ev)
}

// rearm points the scheduler at the session's current deadline, or clears it
func (s *Service) rearm(session models.DraftSession) bool {
	if s.timers == nil {
		return false
	}
	at, ok := engine.Deadline(session)
	if !ok || !session.Rules.AutoPickEnabled {
		s.timers.Disarm(session.ID)
		return false
	}
	s.timers.Arm(session.ID, engine.TurnIndex(session), at)
	return true
}

// recordPicks sends committed picks to analytics without blocking the caller
func (s *Service) recordPicks(session models.DraftSession, events []engine.Event) {
	if s.recorder == nil {
		return
	}
	for _, ev := range events {
		if ev.Type != engine.EvtPickMade || ev.Pick == nil {
			continue
		}
		pe := clickhouse.NewPickEvent(session.ID, session.League, ev.Participant, *ev.Pick)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := s.recorder.RecordPick(ctx, pe); err != nil {
				s.log.Warn("Pick analytics write failed", "session", pe.SessionID, "entity", pe.EntityID, "error", err)
			}
		}()
	}
}

// candidates queries the pool with the session's filters, excluding every
// entity already drafted
func (s *Service) candidates(ctx context.Context, session models.DraftSession, limit int) ([]pool.Entity, error) {
	exclude := make([]models.EntityRef, len(session.Picks))
	for i, p := range session.Picks {
		exclude[i] = p.Entity
	}
	q := pool.Query{
		League:        session.League,
		Eras:          session.Rules.Eras,
		Teams:         session.Rules.Teams,
		Positions:     session.Rules.Positions,
		ScoringMethod: session.Rules.ScoringMethod,
		Needs:         s.needs(session),
		Exclude:       exclude,
		Limit:         limit,
	}
	out, err := s.pool.Top(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUpstreamUnavailable, err)
	}
	return out, nil
}

// needs counts the position requirements the active participant has not met
func (s *Service) needs(session models.DraftSession) map[string]int {
	if len(session.Rules.PositionRequirements) == 0 || engine.IsComplete(session) {
		return nil
	}
	out := make(map[string]int, len(session.Rules.PositionRequirements))
	for pos, n := range session.Rules.PositionRequirements {
		out[pos] = n
	}
	active := engine.ActiveParticipant(session)
	for _, p := range session.Picks {
		if engine.ParticipantForSlot(session, p.Slot) != active {
			continue
		}
		if e, ok := s.pool.Lookup(session.League, p.Entity); ok && out[e.Position] > 0 {
			out[e.Position]--
		}
	}
	return out
}

func reason(err error) engine.Reason {
	r, _ := engine.ReasonOf(err)
	return r
}

// storeErr classifies store failures. Missing records keep ErrNotFound; any
// other I/O failure is reported as UpstreamUnavailable.
func storeErr(err error) error {
	if errors.Is(err, dal.ErrNotFound) || errors.Is(err, dal.ErrExists) {
		return err
	}
	return fmt.Errorf("%w: %w", engine.ErrUpstreamUnavailable, err)
}
