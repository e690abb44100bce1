package fuzz

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/auth"
	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/handlers"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pool"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
)

func newService(t testing.TB) (*service.Service, *pubsub.PubSub) {
	reg, err := pool.NewRegistry(16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	for league, c := range pool.DefaultCatalogs() {
		reg.Register(league, c)
	}
	ps := pubsub.New()
	t.Cleanup(ps.Close)
	return service.New(service.Options{Store: dal.NewMemoryDAL(), Pool: reg, Publisher: ps}), ps
}

// FuzzHTTPSessionAction fuzzes the draft action endpoint. Any input may be
// rejected but never with a server error.
func FuzzHTTPSessionAction(f *testing.F) {
	f.Add(`{"type":"MakePick","entity":{"id":"nba-kobe","kind":"player"}}`, "")
	f.Add(`{"type":"MakePick","slot":99,"entity":{"id":"x"}}`, "u1")
	f.Add(`{"type":"ClaimSeat","seat":2}`, "u2")
	f.Add(`{"type":"StartRematch"}`, "u1")
	f.Add(`{"type":"Pause"}`, "")
	f.Add(`[1,2,3]`, "")
	f.Add(`{"type":`, "")

	f.Fuzz(func(t *testing.T, body, user string) {
		svc, ps := newService(t)
		snap, err := svc.CreateSession(context.Background(), engine.SessionConfig{
			League: models.LeagueNBA, ParticipantCount: 2, SlotsPerParticipant: 2,
			Online: &engine.OnlineConfig{HostUserID: "u1"},
		})
		if err != nil {
			t.Fatal(err)
		}
		router := handlers.NewAPIHandlers(svc, ps).Routes(auth.NewMockAuth())

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+snap.Session.ID+"/actions", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set(auth.HeaderUserID, user)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code >= http.StatusInternalServerError {
			t.Fatalf("status %d for %q: %s", w.Code, body, w.Body.String())
		}
	})
}

// FuzzHTTPCreateSession fuzzes session creation
func FuzzHTTPCreateSession(f *testing.F) {
	f.Add(`{"league":"NBA","participantCount":2,"slotsPerParticipant":3}`)
	f.Add(`{"league":"NFL","participantCount":0,"slotsPerParticipant":3}`)
	f.Add(`{"league":"CARTOON","participantCount":4,"slotsPerParticipant":5,"rules":{"timerSeconds":30,"autoPickEnabled":true}}`)
	f.Add(`{"league":"NBA","participantCount":2,"slotsPerParticipant":3,"online":{}}`)

	f.Fuzz(func(t *testing.T, body string) {
		svc, ps := newService(t)
		router := handlers.NewAPIHandlers(svc, ps).Routes(auth.NewMockAuth())

		req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(body))
		req.Header.Set(auth.HeaderUserID, "host")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code >= http.StatusInternalServerError {
			t.Fatalf("status %d for %q: %s", w.Code, body, w.Body.String())
		}
	})
}
