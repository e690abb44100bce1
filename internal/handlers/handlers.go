package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Billy-Davies-2/gamefilter/internal/auth"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pool"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

const (
	maxBody         = 64 << 10
	defaultSuggest  = 10
	maxSuggest      = 50
	defaultKeepTick = 30 * time.Second
)

// DraftService is the orchestration layer the API drives
type DraftService interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, cfg engine.SessionConfig) (service.DraftSnapshot, error)
	GetSession(ctx context.Context, id string) (service.DraftSnapshot, error)
	Submit(ctx context.Context, id string, a engine.Action, actor engine.Actor) (service.DraftSnapshot, error)
	Suggest(ctx context.Context, id string, limit int) ([]pool.Entity, error)
	CreateRoom(ctx context.Context, hostID, hostName string, settings toppic.Settings) (service.RoomSnapshot, error)
	GetRoom(ctx context.Context, code string) (service.RoomSnapshot, error)
	RoomAction(ctx context.Context, code string, a toppic.Action, actor string) (service.RoomSnapshot, error)
}

// Subscriber hands out per-topic snapshot feeds
type Subscriber interface {
	Subscribe(topic string) chan pubsub.Event
	Unsubscribe(ch chan pubsub.Event)
}

// Check is an optional dependency probe reported by /api/health
type Check func(ctx context.Context) error

// APIHandlers contains all API handler methods
type APIHandlers struct {
	svc       DraftService
	ps        Subscriber
	checks    map[string]Check
	keepalive time.Duration
	origins   []string
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(svc DraftService, ps Subscriber) *APIHandlers {
	return &APIHandlers{
		svc:       svc,
		ps:        ps,
		checks:    make(map[string]Check),
		keepalive: defaultKeepTick,
	}
}

// AddCheck registers a dependency probe for /api/health
func (h *APIHandlers) AddCheck(name string, c Check) {
	h.checks[name] = c
}

// AllowOrigins sets the WebSocket origin patterns accepted besides same-host
func (h *APIHandlers) AllowOrigins(patterns ...string) {
	h.origins = patterns
}

// Routes builds the HTTP router. provider may be nil, in which case every
// request is anonymous.
func (h *APIHandlers) Routes(provider auth.AuthProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)

	if provider != nil {
		r.Get("/auth/login", provider.LoginHandler)
		r.Get("/auth/callback", provider.CallbackHandler)
		r.Get("/auth/logout", provider.LogoutHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if provider != nil {
			r.Use(provider.Middleware)
		}
		r.Get("/health", h.Health)
		r.Get("/me", h.Me)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/actions", h.SubmitAction)
			r.Post("/picks", h.SubmitPick)
			r.Get("/suggestions", h.Suggest)
			r.Get("/events", h.SessionEvents)
			r.Get("/ws", h.SessionSocket)
		})

		r.Post("/rooms", h.CreateRoom)
		r.Route("/rooms/{code}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Post("/actions", h.RoomAction)
			r.Get("/events", h.RoomEvents)
			r.Get("/ws", h.RoomSocket)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

// actorOf resolves the acting user; anonymous requests act as offline
// pass-and-play clients
func actorOf(r *http.Request) engine.Actor {
	if u := auth.GetUser(r); u != nil {
		return engine.User(u.ID)
	}
	return engine.Actor{}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("Failed to decode request", "path", r.URL.Path, "error", err)
		badRequest(w, "Malformed JSON body.")
		return false
	}
	return true
}

// Me returns the signed-in user, or 401
func (h *APIHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.GetUser(r)
	if u == nil {
		unauthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CreateSession starts a draft. Online drafts are hosted by the caller.
func (h *APIHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg engine.SessionConfig
	if !decode(w, r, &cfg) {
		return
	}
	if cfg.Online != nil {
		u := auth.GetUser(r)
		if u == nil {
			unauthenticated(w)
			return
		}
		cfg.Online.HostUserID = u.ID
		if cfg.Online.HostDisplayName == "" {
			cfg.Online.HostDisplayName = u.DisplayName()
		}
	}

	snap, err := h.svc.CreateSession(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetSession returns the current draft snapshot
func (h *APIHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubmitAction applies any draft action: pick, pause, resume, cancel,
// rematch handshake or seat claim
func (h *APIHandlers) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var a engine.Action
	if !decode(w, r, &a) {
		return
	}
	h.submit(w, r, a)
}

// SubmitPick is the MakePick shorthand
func (h *APIHandlers) SubmitPick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slot   int              `json:"slot"`
		Entity models.EntityRef `json:"entity"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Entity.ID == "" {
		badRequest(w, "entity.id is required.")
		return
	}
	h.submit(w, r, engine.Action{Type: engine.ActMakePick, Slot: req.Slot, Entity: req.Entity})
}

func (h *APIHandlers) submit(w http.ResponseWriter, r *http.Request, a engine.Action) {
	snap, err := h.svc.Submit(r.Context(), chi.URLParam(r, "id"), a, actorOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Suggest lists the best available picks for the participant on the clock
func (h *APIHandlers) Suggest(w http.ResponseWriter, r *http.Request) {
	limit := defaultSuggest
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxSuggest)
	}

	entities, err := h.svc.Suggest(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entities == nil {
		entities = []pool.Entity{}
	}
	writeJSON(w, http.StatusOK, entities)
}

// CreateRoom opens a TopPic lobby hosted by the caller
func (h *APIHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	u := auth.GetUser(r)
	if u == nil {
		unauthenticated(w)
		return
	}
	var req struct {
		DisplayName string          `json:"displayName"`
		Settings    toppic.Settings `json:"settings"`
	}
	if !decode(w, r, &req) {
		return
	}
	name := req.DisplayName
	if name == "" {
		name = u.DisplayName()
	}

	snap, err := h.svc.CreateRoom(r.Context(), u.ID, name, req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *APIHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RoomAction applies a lobby or game action as the signed-in user
func (h *APIHandlers) RoomAction(w http.ResponseWriter, r *http.Request) {
	u := auth.GetUser(r)
	if u == nil {
		unauthenticated(w)
		return
	}
	var a toppic.Action
	if !decode(w, r, &a) {
		return
	}
	if a.Type == toppic.ActJoin && a.DisplayName == "" {
		a.DisplayName = u.DisplayName()
	}

	snap, err := h.svc.RoomAction(r.Context(), chi.URLParam(r, "code"), a, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
