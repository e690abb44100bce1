package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/Billy-Davies-2/gamefilter/internal/auth"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

const writeTimeout = 5 * time.Second

// Each socket may send a burst of actionBurst actions, refilled at
// actionRate per second.
const (
	actionRate  = 2
	actionBurst = 5
)

// loader fetches the current snapshot of a topic
type loader func(ctx context.Context) (pubsub.Event, error)

func (h *APIHandlers) draftLoader(id string) loader {
	return func(ctx context.Context) (pubsub.Event, error) {
		snap, err := h.svc.GetSession(ctx, id)
		if err != nil {
			return pubsub.Event{}, err
		}
		return snap.Event()
	}
}

func (h *APIHandlers) roomLoader(code string) loader {
	return func(ctx context.Context) (pubsub.Event, error) {
		snap, err := h.svc.GetRoom(ctx, code)
		if err != nil {
			return pubsub.Event{}, err
		}
		return snap.Event()
	}
}

// feed subscribes to topic, sends the current snapshot and then every newer
// one until ctx ends or the draft is cancelled. Subscribing before loading
// means no commit can fall between the two; duplicates are dropped by
// version.
func (h *APIHandlers) feed(ctx context.Context, topic string, load loader, send func(pubsub.Event) error, ping func() error) error {
	ch := h.ps.Subscribe(topic)
	defer h.ps.Unsubscribe(ch)

	cur, err := load(ctx)
	if err != nil {
		return err
	}
	if err := send(cur); err != nil {
		return err
	}
	if cur.Type == service.EventDraftCancelled {
		return nil
	}
	last := cur.Version

	tick := time.NewTicker(h.keepalive)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Version <= last {
				continue
			}
			last = ev.Version
			if err := send(ev); err != nil {
				return err
			}
			if ev.Type == service.EventDraftCancelled {
				return nil
			}
		case <-tick.C:
			if err := ping(); err != nil {
				return err
			}
		}
	}
}

// SessionEvents streams draft snapshots as Server-Sent Events
func (h *APIHandlers) SessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.serveSSE(w, r, pubsub.DraftTopic(id), h.draftLoader(id))
}

// RoomEvents streams room snapshots as Server-Sent Events
func (h *APIHandlers) RoomEvents(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.serveSSE(w, r, pubsub.RoomTopic(code), h.roomLoader(code))
}

func (h *APIHandlers) serveSSE(w http.ResponseWriter, r *http.Request, topic string, load loader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	started := false
	send := func(ev pubsub.Event) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.Version, ev.Payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ping := func() error {
		if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.feed(r.Context(), topic, load, send, ping); err != nil {
		if !started {
			writeError(w, err)
			return
		}
		logger.Debug("SSE stream ended", "topic", topic, "error", err)
	}
}

// SessionSocket streams draft snapshots over a WebSocket and accepts draft
// actions on it. Results arrive as snapshots; rejections as error frames.
func (h *APIHandlers) SessionSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorOf(r)
	h.serveWS(w, r, pubsub.DraftTopic(id), h.draftLoader(id), func(ctx context.Context, data []byte) error {
		var a engine.Action
		if err := json.Unmarshal(data, &a); err != nil {
			return errMalformed
		}
		_, err := h.svc.Submit(ctx, id, a, actor)
		return err
	})
}

// RoomSocket streams room snapshots over a WebSocket and accepts room
// actions from signed-in users
func (h *APIHandlers) RoomSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	user := auth.GetUser(r)
	h.serveWS(w, r, pubsub.RoomTopic(code), h.roomLoader(code), func(ctx context.Context, data []byte) error {
		if user == nil {
			return errUnauthenticated
		}
		var a toppic.Action
		if err := json.Unmarshal(data, &a); err != nil {
			return errMalformed
		}
		if a.Type == toppic.ActJoin && a.DisplayName == "" {
			a.DisplayName = user.DisplayName()
		}
		_, err := h.svc.RoomAction(ctx, code, a, user.ID)
		return err
	})
}

type errorFrame struct {
	Type string `json:"type"`
	ErrorBody
}

func (h *APIHandlers) serveWS(w http.ResponseWriter, r *http.Request, topic string, load loader, act func(context.Context, []byte) error) {
	if _, err := load(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		logger.Debug("WebSocket accept failed", "topic", topic, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	write := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		wctx, done := context.WithTimeout(ctx, writeTimeout)
		defer done()
		return conn.Write(wctx, websocket.MessageText, data)
	}

	limiter := rate.NewLimiter(actionRate, actionBurst)
	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			err = errRateLimited
			if limiter.Allow() {
				err = act(ctx, data)
			}
			if err != nil {
				_, body := classify(err)
				if werr := write(errorFrame{Type: "error", ErrorBody: body}); werr != nil {
					return
				}
			}
		}
	}()

	err = h.feed(ctx, topic, load,
		func(ev pubsub.Event) error { return write(ev) },
		func() error {
			pctx, done := context.WithTimeout(ctx, writeTimeout)
			defer done()
			return conn.Ping(pctx)
		})
	if err != nil && ctx.Err() == nil {
		logger.Debug("WebSocket feed failed", "topic", topic, "error", err)
		conn.Close(websocket.StatusInternalError, "feed failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
