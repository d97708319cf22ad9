package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/ledger"
	"github.com/roach88/okra/internal/tenant"
	"github.com/roach88/okra/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testKey = bytes.Repeat([]byte{0x42}, 32)

type testEnv struct {
	server *Server
	auth   *auth.Authenticator
	clock  *testutil.ManualClock
}

func setupTestServer(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	clk := testutil.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	a, err := auth.Open(ctx, filepath.Join(dir, "users.sqlite"), auth.WithClock(clk), auth.WithCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Enroll(ctx, "bob", "secret"))
	require.NoError(t, a.Enroll(ctx, "alice", "hunter2"))

	reg, err := tenant.NewRegistry(filepath.Join(dir, "tenants"), nil, ledger.WithClock(clk))
	require.NoError(t, err)

	opts := Options{
		Auth:      a,
		Tenants:   reg,
		CookieKey: testKey,
		Logger:    zap.NewNop(),
		IDs:       testutil.NewFixedIDGenerator(""),
	}
	for _, m := range mutate {
		m(&opts)
	}

	s, err := NewServer(opts)
	require.NoError(t, err)
	return &testEnv{server: s, auth: a, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, user, pass string) *http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users/login", gin.H{"username": user, "password": pass}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == AuthCookie {
			return c
		}
	}
	t.Fatal("login did not set the auth cookie")
	return nil
}

func TestLogin_SetsSealedCookie(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/users/login", gin.H{"username": "bob", "password": "secret"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello bob", w.Body.String())

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AuthCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	assert.NotContains(t, cookie.Value, "bob", "token must not be readable by the client")

	sealer, err := NewSealer(testKey)
	require.NoError(t, err)
	token, err := sealer.Open(cookie.Value)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(token, " bob"))
}

func TestLogin_Failures(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", gin.H{"username": "bob", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", gin.H{"username": "carol", "password": "secret"}, http.StatusUnauthorized},
		{"missing password", gin.H{"username": "bob"}, http.StatusBadRequest},
		{"not json", "just a string", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/users/login", tt.body, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogin_Throttled(t *testing.T) {
	env := setupTestServer(t, func(o *Options) {
		o.LoginRate = rate.Every(time.Hour)
		o.LoginBurst = 1
	})

	w := env.do(t, http.MethodPost, "/users/login", gin.H{"username": "bob", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/users/login", gin.H{"username": "bob", "password": "secret"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/users/logout", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestSession_Required(t *testing.T) {
	env := setupTestServer(t)
	other, err := NewSealer(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	forged, err := other.Seal("99999999999999 bob")
	require.NoError(t, err)

	sealer, err := NewSealer(testKey)
	require.NoError(t, err)
	garbage, err := sealer.Seal("garbage")
	require.NoError(t, err)
	traversal, err := sealer.Seal("99999999999999 ../bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
		want   int
	}{
		{"no cookie", nil, http.StatusUnauthorized},
		{"not sealed", &http.Cookie{Name: AuthCookie, Value: "123 bob"}, http.StatusBadRequest},
		{"other key", &http.Cookie{Name: AuthCookie, Value: forged}, http.StatusBadRequest},
		{"malformed token", &http.Cookie{Name: AuthCookie, Value: garbage}, http.StatusBadRequest},
		{"bad identity", &http.Cookie{Name: AuthCookie, Value: traversal}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/action/get/10/0", nil, tt.cookie)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestSession_Expires(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodGet, "/action/get/10/0", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	env.clock.Advance(7 * 24 * time.Hour)
	w = env.do(t, http.MethodGet, "/action/get/10/0", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLedgerRoutes_Scenario(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": "run"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var action ledger.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &action))
	assert.Equal(t, ledger.Action{ID: 1, Name: "run"}, action)

	w = env.do(t, http.MethodGet, "/action/get_name/1", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run", w.Body.String())

	w = env.do(t, http.MethodGet, "/activity/log/1", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())

	w = env.do(t, http.MethodGet, "/activity/notate/1/felt%20great", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())

	w = env.do(t, http.MethodGet, "/activity/notations/1/0/10", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[[1, "felt great"]]`, w.Body.String())

	at := env.clock.Now().UnixMilli()
	w = env.do(t, http.MethodGet, "/activity/range/"+itoa(at)+"/"+itoa(at+1)+"/10", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id": 1, "at": `+itoa(at)+`, "action": 1}]`, w.Body.String())
}

func TestGetActions_Pages(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	for _, name := range []string{"run", "swim", "bike"} {
		w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": name}, cookie)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodGet, "/action/get/2/0", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[[1, "run"], [2, "swim"]]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/action/get/2/2", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[[3, "bike"]]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/action/get/2/3", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateAction_WithParent(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": "exercise"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/action/create", gin.H{"name": "run", "parent": 1}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/action/children/1/0/10", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[2]`, w.Body.String())

	w = env.do(t, http.MethodPost, "/action/create", gin.H{"name": "swim", "parent": 99}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAction_MissingParentWritesNothing(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": "orphan", "parent": 99}, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/action/get/10/0", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateAction_EchoesNormalisedName(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": "cafe\u0301"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": 1, "name": "caf\u00e9"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/action/create", gin.H{"name": "the\u0301", "parent": 1}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": 2, "name": "th\u00e9"}`, w.Body.String())
}

func TestLedgerRoutes_Errors(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing action name", "/action/get_name/7", http.StatusNotFound},
		{"log unknown action", "/activity/log/7", http.StatusNotFound},
		{"notate unknown activity", "/activity/notate/7/hi", http.StatusNotFound},
		{"non-numeric id", "/action/get_name/abc", http.StatusBadRequest},
		{"page too large", "/action/get/100000/0", http.StatusBadRequest},
		{"zero page", "/activity/range/0/10/0", http.StatusBadRequest},
		{"unknown route", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil, cookie)
			assert.Equal(t, tt.want, w.Code, w.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestActivityRange_Inverted(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")

	w := env.do(t, http.MethodGet, "/activity/range/10/5/10", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestIdentitiesAreIsolated(t *testing.T) {
	env := setupTestServer(t)
	bob := env.login(t, "bob", "secret")
	alice := env.login(t, "alice", "hunter2")

	w := env.do(t, http.MethodPost, "/action/create", gin.H{"name": "bob's secret"}, bob)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/action/get_name/1", nil, alice)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/action/get/10/0", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/users/logout", nil, nil)
	assert.Equal(t, "test-request", w.Header().Get(RequestIDHeader))

	w = env.do(t, http.MethodGet, "/action/get/1/0", nil, nil)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "test-request", body["request_id"])
}

func TestCORS_Preflight(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/action/get/10/0", nil)
	req.Header.Set("Origin", "https://okra.example")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://okra.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	cookie := env.login(t, "bob", "secret")
	env.do(t, http.MethodPost, "/action/create", gin.H{"name": "run"}, cookie)
	env.do(t, http.MethodGet, "/activity/log/1", nil, cookie)

	w := env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `okra_http_requests_total{method="GET",route="/activity/log/:action",status="200"} 1`)
	assert.Contains(t, body, `okra_auth_logins_total{result="ok"} 1`)
	assert.Contains(t, body, "okra_ledger_activities_logged_total 1")
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)

	env := setupTestServer(t)
	_, err = NewServer(Options{Auth: env.auth, Tenants: env.server.tenants, CookieKey: []byte("short")})
	assert.Error(t, err)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	env := setupTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/users/logout")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
