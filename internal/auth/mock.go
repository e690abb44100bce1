package auth

import (
	"net/http"
	"time"
)

// Dev identity headers. Several browser tabs or a script can play different
// seats without an identity provider.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// MockAuth provides a mock authentication for local development
type MockAuth struct {
	sessions *sessions
}

// NewMockAuth creates a new mock authentication handler
func NewMockAuth() *MockAuth {
	return &MockAuth{sessions: newSessions()}
}

// LoginHandler auto-creates a session. ?user= and ?name= pick the identity;
// the default is a dev admin.
func (m *MockAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	user := &User{
		ID:       "dev-user-123",
		Email:    "dev@gamefilter.local",
		Name:     "Dev User",
		Username: "devuser",
		Groups:   []string{"users", "admins"},
	}
	if id := r.URL.Query().Get("user"); id != "" {
		user = &User{ID: id, Name: r.URL.Query().Get("name"), Groups: []string{"users"}}
	}

	id, err := randomToken()
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	sess := &Session{
		ID:        id,
		User:      user,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	m.sessions.put(sess)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Expires:  sess.ExpiresAt,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// CallbackHandler is not needed for mock auth
func (m *MockAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m *MockAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	m.sessions.logout(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Middleware resolves the user from the dev headers first, then the session
// cookie
func (m *MockAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(HeaderUserID); id != "" {
			u := &User{ID: id, Name: r.Header.Get(HeaderUserName)}
			r = r.WithContext(WithUser(r.Context(), u))
		} else if sess, ok := m.sessions.fromRequest(r); ok {
			r = r.WithContext(WithUser(r.Context(), sess.User))
		}
		next.ServeHTTP(w, r)
	})
}
