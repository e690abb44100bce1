package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/mocks"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pool"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/scheduler"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

func init() {
	logger.Init()
}

var t0 = time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)

type harness struct {
	now   time.Time
	svc   *Service
	store dal.Store
	ps    *pubsub.PubSub
	stats *mocks.MockPickStats
}

func newHarness(t *testing.T, store dal.Store) *harness {
	t.Helper()
	if store == nil {
		store = dal.NewMemoryDAL()
	}
	reg, err := pool.NewRegistry(32, time.Minute)
	require.NoError(t, err)
	for league, c := range pool.DefaultCatalogs() {
		reg.Register(league, c)
	}
	ps := pubsub.New()
	t.Cleanup(ps.Close)
	stats := mocks.NewMockPickStats()
	h := &harness{now: t0, store: store, ps: ps, stats: stats}
	h.svc = New(Options{
		Store:     store,
		Pool:      reg,
		Publisher: ps,
		Recorder:  stats,
		Now:       func() time.Time { return h.now },
	})
	return h
}

func timer(sec int) *int { return &sec }

func offlineConfig() engine.SessionConfig {
	return engine.SessionConfig{League: models.LeagueNBA, ParticipantCount: 2, SlotsPerParticipant: 3}
}

func onlineConfig() engine.SessionConfig {
	cfg := offlineConfig()
	cfg.Online = &engine.OnlineConfig{HostUserID: "u1", HostDisplayName: "Ann"}
	return cfg
}

func pick(id string) engine.Action {
	return engine.Action{Type: engine.ActMakePick, Entity: models.EntityRef{ID: id, Kind: "player"}}
}

func TestCreateAndPick(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	snap, err := h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, 1, snap.ActiveParticipant)
	assert.Equal(t, models.StatusInProgress, snap.Status)
	assert.Nil(t, snap.DeadlineAt)

	id := snap.Session.ID
	var slots []int
	for _, e := range []string{"nba-kobe", "nba-shaq", "nba-nash", "nba-duncan", "nba-curry", "nba-jokic"} {
		snap, err = h.svc.Submit(ctx, id, pick(e), engine.Actor{})
		require.NoError(t, err)
		slots = append(slots, snap.Session.Picks[len(snap.Session.Picks)-1].Slot)
	}
	assert.Equal(t, []int{1, 4, 2, 5, 3, 6}, slots)
	assert.Equal(t, models.StatusComplete, snap.Status)
	assert.Equal(t, 0, snap.ActiveParticipant)
	assert.Equal(t, int64(7), snap.Version)
	assert.True(t, engine.ContainsEvent(snap.Events, engine.EvtDraftCompleted))

	_, err = h.svc.Submit(ctx, id, pick("nba-tatum"), engine.Actor{})
	assert.ErrorIs(t, err, engine.ErrSessionComplete)
}

func TestOnlineSessionGetsRoomCode(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), onlineConfig())
	require.NoError(t, err)
	require.NotNil(t, snap.Session.Online)
	assert.Len(t, snap.Session.Online.RoomCode, 6)
	assert.Equal(t, []string{"u1", ""}, snap.Session.Online.SeatAssignments)
}

func TestGetUnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsArePublishedInVersionOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)
	ch := h.ps.Subscribe(pubsub.DraftTopic(snap.Session.ID))

	_, err = h.svc.Submit(ctx, snap.Session.ID, pick("nba-kobe"), engine.Actor{})
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, snap.Session.ID, engine.Action{Type: engine.ActCancel}, engine.Actor{})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, EventDraftSnapshot, first.Type)
	assert.Equal(t, int64(2), first.Version)
	var got DraftSnapshot
	require.NoError(t, json.Unmarshal(first.Payload, &got))
	assert.Len(t, got.Session.Picks, 1)
	assert.Equal(t, 1, got.TurnIndex)
	assert.Equal(t, 2, got.ActiveParticipant)

	last := <-ch
	assert.Equal(t, EventDraftCancelled, last.Type)
	assert.Equal(t, int64(3), last.Version)
}

func TestNoOpDoesNotWrite(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)

	again, err := h.svc.Submit(ctx, snap.Session.ID, engine.Action{Type: engine.ActResume}, engine.Actor{})
	require.NoError(t, err)
	assert.Equal(t, snap.Version, again.Version)
}

// Two seat-1 picks race for the same turn: one commits, the other is
// re-evaluated against the new state and rejected
func TestConcurrentPicksSingleCommit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, onlineConfig())
	require.NoError(t, err)
	id := snap.Session.ID

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range []string{"nba-kobe", "nba-shaq"} {
		wg.Add(1)
		go func(e string) {
			defer wg.Done()
			_, err := h.svc.Submit(ctx, id, pick(e), engine.User("u1"))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrNotYourTurn), errors.Is(err, engine.ErrInvalidSlot):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	final, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, final.Session.Picks, 1)
}

// conflictStore loses the first n draft swaps to a phantom writer
type conflictStore struct {
	dal.Store
	mu sync.Mutex
	n  int
}

func (c *conflictStore) SwapDraft(ctx context.Context, id string, expected int64, next models.DraftSession) (dal.DraftRecord, error) {
	c.mu.Lock()
	lose := c.n > 0
	c.n--
	c.mu.Unlock()
	if lose {
		return dal.DraftRecord{}, dal.ErrConflict
	}
	return c.Store.SwapDraft(ctx, id, expected, next)
}

func TestConflictRetry(t *testing.T) {
	store := &conflictStore{Store: dal.NewMemoryDAL()}
	h := newHarness(t, store)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)

	store.n = 2
	got, err := h.svc.Submit(ctx, snap.Session.ID, pick("nba-kobe"), engine.Actor{})
	require.NoError(t, err)
	assert.Len(t, got.Session.Picks, 1)

	store.n = 3
	_, err = h.svc.Submit(ctx, snap.Session.ID, pick("nba-shaq"), engine.Actor{})
	assert.ErrorIs(t, err, engine.ErrConflict)
	r, ok := engine.ReasonOf(err)
	assert.True(t, ok)
	assert.Equal(t, engine.ReasonConflict, r)
}

type brokenStore struct{ dal.Store }

func (brokenStore) GetDraft(context.Context, string) (dal.DraftRecord, error) {
	return dal.DraftRecord{}, errors.New("connection refused")
}

func TestStoreFailureIsUpstreamUnavailable(t *testing.T) {
	h := newHarness(t, brokenStore{Store: dal.NewMemoryDAL()})
	_, err := h.svc.Submit(context.Background(), "d", pick("nba-kobe"), engine.Actor{})
	assert.ErrorIs(t, err, engine.ErrUpstreamUnavailable)
}

func timedConfig() engine.SessionConfig {
	cfg := offlineConfig()
	cfg.Rules = models.RuleConfig{TimerSeconds: timer(30), AutoPickEnabled: true}
	return cfg
}

func TestAutoPick(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)
	require.NotNil(t, snap.DeadlineAt)
	assert.Equal(t, t0.Add(30*time.Second), *snap.DeadlineAt)
	id := snap.Session.ID

	_, err = h.svc.Submit(ctx, id, pick("nba-jordan"), engine.Actor{})
	require.NoError(t, err)

	require.NoError(t, h.svc.AutoPick(ctx, id, 1))
	got, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Session.Picks, 2)
	auto := got.Session.Picks[1]
	assert.True(t, auto.IsAutoPick)
	assert.Equal(t, "nba-lebron", auto.Entity.ID, "best remaining after jordan")
	assert.Equal(t, 4, auto.Slot)

	// turn 1 has passed: a late fire is a no-op
	require.NoError(t, h.svc.AutoPick(ctx, id, 1))
	got, _ = h.svc.GetSession(ctx, id)
	assert.Len(t, got.Session.Picks, 2)
}

func TestAutoPickDisabledOrPaused(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	cfg := timedConfig()
	cfg.Rules.AutoPickEnabled = false
	off, err := h.svc.CreateSession(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, h.svc.AutoPick(ctx, off.Session.ID, 0))

	paused, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, paused.Session.ID, engine.Action{Type: engine.ActPause}, engine.Actor{})
	require.NoError(t, err)
	require.NoError(t, h.svc.AutoPick(ctx, paused.Session.ID, 0))

	for _, id := range []string{off.Session.ID, paused.Session.ID} {
		got, _ := h.svc.GetSession(ctx, id)
		assert.Empty(t, got.Session.Picks)
	}
}

type failingPool struct{ pool.Provider }

func (failingPool) Top(context.Context, pool.Query) ([]pool.Entity, error) {
	return nil, errors.New("ranker timeout")
}

func TestAutoPickPoolFailureLeavesTurnOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.pool = failingPool{Provider: h.svc.pool}
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)

	err = h.svc.AutoPick(ctx, snap.Session.ID, 0)
	assert.ErrorIs(t, err, engine.ErrUpstreamUnavailable)
	got, _ := h.svc.GetSession(ctx, snap.Session.ID)
	assert.Empty(t, got.Session.Picks)
}

// The deadline expires twice before any human pick: exactly one auto-pick
func TestExpiredTurnAutoPicksOnce(t *testing.T) {
	h := newHarness(t, nil)
	sched := scheduler.New(h.svc, 250*time.Millisecond)
	h.svc.SetTimers(sched)
	ctx := context.Background()

	snap, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)
	turn, _, ok := sched.Pending(snap.Session.ID)
	require.True(t, ok)
	require.Equal(t, 0, turn)

	// t0 is long past on the scheduler's real clock; the auto-pick itself
	// starts the next turn now so that turn is not due yet
	h.now = time.Now().UTC()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Tick(ctx)
		}()
	}
	wg.Wait()

	got, err := h.svc.GetSession(ctx, snap.Session.ID)
	require.NoError(t, err)
	require.Len(t, got.Session.Picks, 1)
	assert.True(t, got.Session.Picks[0].IsAutoPick)

	// the commit re-armed the next turn
	turn, _, ok = sched.Pending(snap.Session.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, turn)
}

func TestPauseAndCompletionDisarm(t *testing.T) {
	h := newHarness(t, nil)
	sched := scheduler.New(h.svc, time.Second)
	h.svc.SetTimers(sched)
	ctx := context.Background()

	snap, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)
	id := snap.Session.ID

	_, err = h.svc.Submit(ctx, id, engine.Action{Type: engine.ActPause}, engine.Actor{})
	require.NoError(t, err)
	_, _, ok := sched.Pending(id)
	assert.False(t, ok)

	_, err = h.svc.Submit(ctx, id, engine.Action{Type: engine.ActResume}, engine.Actor{})
	require.NoError(t, err)
	_, _, ok = sched.Pending(id)
	assert.True(t, ok)

	_, err = h.svc.Submit(ctx, id, engine.Action{Type: engine.ActCancel}, engine.Actor{})
	require.NoError(t, err)
	_, _, ok = sched.Pending(id)
	assert.False(t, ok)
}

func TestRestoreArmsRunningDrafts(t *testing.T) {
	store := dal.NewMemoryDAL()
	h := newHarness(t, store)
	ctx := context.Background()

	timed, err := h.svc.CreateSession(ctx, timedConfig())
	require.NoError(t, err)
	_, err = h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)

	// a fresh process over the same store
	restarted := newHarness(t, store)
	sched := scheduler.New(restarted.svc, time.Second)
	restarted.svc.SetTimers(sched)

	n, err := restarted.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, at, ok := sched.Pending(timed.Session.ID)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(30*time.Second), at)
}

func TestSuggestHonoursNeedsAndPicks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cfg := offlineConfig()
	cfg.Rules.PositionRequirements = map[string]int{"C": 1}
	snap, err := h.svc.CreateSession(ctx, cfg)
	require.NoError(t, err)

	got, err := h.svc.Suggest(ctx, snap.Session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"nba-jokic", "nba-shaq"}, []string{got[0].Ref.ID, got[1].Ref.ID})

	// participant 1 fills C, participant 2 still needs one
	_, err = h.svc.Submit(ctx, snap.Session.ID, pick("nba-jokic"), engine.Actor{})
	require.NoError(t, err)
	got, err = h.svc.Suggest(ctx, snap.Session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "nba-shaq", got[0].Ref.ID)

	_, err = h.svc.Submit(ctx, snap.Session.ID, pick("nba-shaq"), engine.Actor{})
	require.NoError(t, err)
	got, err = h.svc.Suggest(ctx, snap.Session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "nba-jordan", got[0].Ref.ID, "participant 1 already has a center")
}

func TestPicksAreRecorded(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	snap, err := h.svc.CreateSession(ctx, offlineConfig())
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, snap.Session.ID, pick("nba-kobe"), engine.Actor{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(h.stats.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := h.stats.Events()[0]
	assert.Equal(t, snap.Session.ID, ev.SessionID)
	assert.Equal(t, "nba-kobe", ev.EntityID)
	assert.Equal(t, 1, ev.Participant)
}

func TestRematchCreatesSpawnedSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cfg := onlineConfig()
	cfg.ParticipantCount, cfg.SlotsPerParticipant = 1, 1
	snap, err := h.svc.CreateSession(ctx, cfg)
	require.NoError(t, err)
	id := snap.Session.ID
	host := engine.User("u1")

	_, err = h.svc.Submit(ctx, id, pick("nba-kobe"), host)
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, id, engine.Action{Type: engine.ActRequestRematch}, host)
	require.NoError(t, err)
	done, err := h.svc.Submit(ctx, id, engine.Action{Type: engine.ActStartRematch}, host)
	require.NoError(t, err)

	newID := done.Session.Saved.RematchSessionID()
	require.NotEmpty(t, newID)
	spawned, err := h.svc.GetSession(ctx, newID)
	require.NoError(t, err)
	assert.Empty(t, spawned.Session.Picks)
	assert.Equal(t, id, spawned.Session.Saved.RematchOf())
	assert.Equal(t, snap.Session.Online.RoomCode, spawned.Session.Online.RoomCode)

	_, err = h.svc.Submit(ctx, id, engine.Action{Type: engine.ActStartRematch}, host)
	assert.ErrorIs(t, err, engine.ErrRematchUnavailable)
}

func TestRoomFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	room, err := h.svc.CreateRoom(ctx, "u1", "Ann", toppic.Settings{ScoringMode: models.ScoringCPU, TargetScore: 3})
	require.NoError(t, err)
	code := room.Room.Code
	ch := h.ps.Subscribe(pubsub.RoomTopic(code))

	_, err = h.svc.RoomAction(ctx, code, toppic.Action{Type: toppic.ActJoin, DisplayName: "Bo"}, "u2")
	require.NoError(t, err)
	started, err := h.svc.RoomAction(ctx, code, toppic.Action{Type: toppic.ActStartGame}, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoomActive, started.Room.Status)
	assert.Len(t, started.Room.Game.Hands["u2"], toppic.HandSize)

	_, err = h.svc.RoomAction(ctx, code, toppic.Action{Type: toppic.ActKick, UserID: "u2"}, "u2")
	assert.ErrorIs(t, err, engine.ErrNotHost)

	ev := <-ch
	assert.Equal(t, EventRoomSnapshot, ev.Type)
	assert.Equal(t, int64(2), ev.Version)

	got, err := h.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
}

func TestRoomCodeCollisionRetries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	h.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := h.svc.CreateRoom(ctx, "u1", "Ann", toppic.Settings{ScoringMode: models.ScoringJudge})
	require.NoError(t, err)
	second, err := h.svc.CreateRoom(ctx, "u9", "Zed", toppic.Settings{ScoringMode: models.ScoringJudge})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Room.Code)
	assert.Equal(t, "BBBBBB", second.Room.Code)
}
