// Package scheduler fires auto-picks when a draft turn runs out of time
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

const pickTimeout = 10 * time.Second

// AutoPicker submits the auto-pick for one turn
type AutoPicker interface {
	AutoPick(ctx context.Context, id string, turnIndex int) error
}

type deadline struct {
	turn int
	at   time.Time
}

// Scheduler polls armed deadlines every tick. Each (session, turn) fires at
// most once; arming an older or already-fired turn is ignored.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]deadline
	// fired holds the last turn index fired per session
	fired  map[string]int
	picker AutoPicker
	tick   time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func New(picker AutoPicker, tick time.Duration) *Scheduler {
	return &Scheduler{
		pending: make(map[string]deadline),
		fired:   make(map[string]int),
		picker:  picker,
		tick:    tick,
		now:     time.Now,
		log:     logger.With("component", "scheduler"),
	}
}

// Arm sets the deadline for turn of session id, replacing any earlier turn
func (s *Scheduler) Arm(id string, turn int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.fired[id]; ok && turn <= last {
		return
	}
	if cur, ok := s.pending[id]; ok && cur.turn > turn {
		return
	}
	s.pending[id] = deadline{turn: turn, at: at}
}

// Disarm drops the pending deadline of session id and forgets which turn
// last fired. It is called when the session stops running (paused, complete,
// cancelled or untimed), so a resumed turn can be armed again.
func (s *Scheduler) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	delete(s.fired, id)
}

// Pending returns the armed turn and deadline for id
func (s *Scheduler) Pending(id string) (int, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending[id]
	return d.turn, d.at, ok
}

// Tick fires every deadline that has passed and returns how many fired
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	due := make(map[string]int)
	for id, d := range s.pending {
		if now.Before(d.at) {
			continue
		}
		due[id] = d.turn
		s.fired[id] = d.turn
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for id, turn := range due {
		pctx, cancel := context.WithTimeout(ctx, pickTimeout)
		if err := s.picker.AutoPick(pctx, id, turn); err != nil {
			// the turn stays open; it is not retried
			s.log.Warn("Auto-pick failed", "session", id, "turn", turn, "error", err)
		} else {
			s.log.Debug("Auto-pick fired", "session", id, "turn", turn)
		}
		cancel()
	}
	return len(due)
}

// Run ticks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info("Deadline scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
