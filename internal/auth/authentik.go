package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

const (
	sessionCookie = "session_id"
	stateCookie   = "oauth_state"
)

// AuthentikConfig holds the configuration for Authentik OAuth2/OIDC
type AuthentikConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AppSlug names the Authentik application used for end-session
	AppSlug string
	Scopes  []string
}

// User is an authenticated player. ID is the actor identity handed to the
// draft and room coordinators.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name"`
	Username string   `json:"username,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// DisplayName is the name shown to other players
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	}
	return u.ID
}

// Session represents a user session
type Session struct {
	ID        string
	User      *User
	Token     *oauth2.Token
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userKey struct{}

// WithUser returns a context carrying u
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user of ctx, or nil for anonymous
// pass-and-play clients
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// GetUser retrieves the authenticated user from the request context
func GetUser(r *http.Request) *User {
	return UserFrom(r.Context())
}

// IsAdmin checks if the user has admin privileges
func IsAdmin(user *User) bool {
	if user == nil {
		return false
	}
	for _, group := range user.Groups {
		if group == "admins" {
			return true
		}
	}
	return false
}

// AuthProvider is a common interface for authentication providers. The
// middleware attaches the user when the request carries a live session and
// lets anonymous requests through; handlers decide what needs a user.
type AuthProvider interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	CallbackHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
	Middleware(next http.Handler) http.Handler
}

// sessions is the cookie session table shared by both providers
type sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
	now  func() time.Time
}

func newSessions() *sessions {
	return &sessions{byID: make(map[string]*Session), now: time.Now}
}

func (s *sessions) put(sess *Session) {
	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()
}

func (s *sessions) get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(sess.ExpiresAt) {
		s.drop(id)
		return nil, false
	}
	return sess, true
}

func (s *sessions) drop(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func (s *sessions) fromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return s.get(cookie.Value)
}

func (s *sessions) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.drop(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// AuthentikAuth manages authentication with Authentik
type AuthentikAuth struct {
	config       *AuthentikConfig
	oauth2Config *oauth2.Config
	sessions     *sessions
}

// NewAuthentikAuth creates a new Authentik authentication handler
func NewAuthentikAuth(config *AuthentikConfig) *AuthentikAuth {
	if len(config.Scopes) == 0 {
		config.Scopes = []string{"openid", "profile", "email"}
	}
	if config.AppSlug == "" {
		config.AppSlug = "gamefilter"
	}
	base := strings.TrimSuffix(config.BaseURL, "/")

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/application/o/authorize/", base),
			TokenURL: fmt.Sprintf("%s/application/o/token/", base),
		},
	}

	return &AuthentikAuth{
		config:       config,
		oauth2Config: oauth2Config,
		sessions:     newSessions(),
	}
}

// LoginHandler initiates the OAuth2 login flow
func (a *AuthentikAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the OAuth2 callback from Authentik
func (a *AuthentikAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("Authentik token exchange failed", "error", err)
		http.Error(w, "Failed to exchange token", http.StatusBadGateway)
		return
	}

	user, err := a.getUserInfo(r.Context(), token)
	if err != nil {
		logger.Warn("Authentik userinfo failed", "error", err)
		http.Error(w, "Failed to get user info", http.StatusBadGateway)
		return
	}

	id, err := randomToken()
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	expires := token.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}
	a.sessions.put(&Session{
		ID:        id,
		User:      user,
		Token:     token,
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	})
	logger.Info("User logged in", "user", user.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler handles user logout
func (a *AuthentikAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessions.logout(w, r)
	logoutURL := fmt.Sprintf("%s/application/o/%s/end-session/", strings.TrimSuffix(a.config.BaseURL, "/"), a.config.AppSlug)
	http.Redirect(w, r, logoutURL, http.StatusSeeOther)
}

// Middleware attaches the session user to the request context
func (a *AuthentikAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := a.sessions.fromRequest(r); ok {
			r = r.WithContext(WithUser(r.Context(), sess.User))
		}
		next.ServeHTTP(w, r)
	})
}

// getUserInfo fetches user information from Authentik
func (a *AuthentikAuth) getUserInfo(ctx context.Context, token *oauth2.Token) (*User, error) {
	userInfoURL := fmt.Sprintf("%s/application/o/userinfo/", strings.TrimSuffix(a.config.BaseURL, "/"))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to get user info: %s - %s", resp.Status, string(body))
	}

	var userInfo struct {
		Sub               string   `json:"sub"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Groups            []string `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, err
	}
	if userInfo.Sub == "" {
		return nil, fmt.Errorf("userinfo has no subject")
	}

	return &User{
		ID:       userInfo.Sub,
		Email:    userInfo.Email,
		Name:     userInfo.Name,
		Username: userInfo.PreferredUsername,
		Groups:   userInfo.Groups,
	}, nil
}

// randomToken returns 32 random bytes, URL-safe encoded
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
