package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// whoami echoes the resolved user id, empty for anonymous
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if u := GetUser(r); u != nil {
		w.Write([]byte(u.ID))
	}
})

func cookieNamed(cs []*http.Cookie, name string) *http.Cookie {
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestMockHeaderIdentity(t *testing.T) {
	h := NewMockAuth().Middleware(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "u7", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Body.String(), "anonymous requests pass through")
}

func TestMockLoginSession(t *testing.T) {
	m := NewMockAuth()

	w := httptest.NewRecorder()
	m.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/auth/login?user=alice&name=Alice", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	sess := cookieNamed(w.Result().Cookies(), sessionCookie)
	require.NotNil(t, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sess)
	w = httptest.NewRecorder()
	m.Middleware(whoami).ServeHTTP(w, req)
	assert.Equal(t, "alice", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(sess)
	m.LogoutHandler(w, req)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sess)
	w = httptest.NewRecorder()
	m.Middleware(whoami).ServeHTTP(w, req)
	assert.Empty(t, w.Body.String())
}

func TestExpiredSessionIgnored(t *testing.T) {
	s := newSessions()
	s.put(&Session{ID: "old", User: &User{ID: "u1"}, ExpiresAt: time.Now().Add(-time.Minute)})
	_, ok := s.get("old")
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", (&User{ID: "u1", Name: "Ann", Username: "ann"}).DisplayName())
	assert.Equal(t, "ann", (&User{ID: "u1", Username: "ann"}).DisplayName())
	assert.Equal(t, "u1", (&User{ID: "u1"}).DisplayName())
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, IsAdmin(nil))
	assert.False(t, IsAdmin(&User{Groups: []string{"users"}}))
	assert.True(t, IsAdmin(&User{Groups: []string{"users", "admins"}}))
}

func fakeAuthentik(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/application/o/token/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/application/o/userinfo/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sub":                "sub-42",
			"name":               "Quinn",
			"preferred_username": "quinn",
			"groups":             []string{"users"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthentikLoginRedirect(t *testing.T) {
	a := NewAuthentikAuth(&AuthentikConfig{BaseURL: "https://id.example.com/", ClientID: "cid", RedirectURL: "http://localhost:3000/auth/callback"})

	w := httptest.NewRecorder()
	a.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "id.example.com", loc.Host)
	assert.Equal(t, "/application/o/authorize/", loc.Path)
	assert.Equal(t, "cid", loc.Query().Get("client_id"))

	state := cookieNamed(w.Result().Cookies(), stateCookie)
	require.NotNil(t, state)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestAuthentikCallback(t *testing.T) {
	idp := fakeAuthentik(t)
	a := NewAuthentikAuth(&AuthentikConfig{BaseURL: idp.URL, ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/auth/callback"})

	callback := func(state, cookie, code string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?state="+state+"&code="+code, nil)
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: cookie})
		w := httptest.NewRecorder()
		a.CallbackHandler(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, callback("s1", "s2", "good-code").Code)
	assert.Equal(t, http.StatusBadGateway, callback("s1", "s1", "bad-code").Code)

	w := callback("s1", "s1", "good-code")
	require.Equal(t, http.StatusSeeOther, w.Code)
	sess := cookieNamed(w.Result().Cookies(), sessionCookie)
	require.NotNil(t, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sess)
	rec := httptest.NewRecorder()
	a.Middleware(whoami).ServeHTTP(rec, req)
	assert.Equal(t, "sub-42", rec.Body.String())
}
