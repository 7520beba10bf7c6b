package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/directory/yamlfile"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/password"
)

const testPassword = "correct-password-123"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t      *testing.T
	engine *goSession.Engine
	http   *httptest.Server
}

func newServer(t *testing.T) *server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := password.HashBcrypt(testPassword, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	dir, err := yamlfile.Parse([]byte(fmt.Sprintf(`
users:
  - id: "1"
    username: alice
    password_hash: %q
    roles: [admin]
roles:
  admin: ["system:user:list"]
`, hash)))
	if err != nil {
		t.Fatalf("directory: %v", err)
	}

	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")

	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	router := Router(RouterOptions{
		Service:       engine,
		Authenticator: engine,
		Whitelist:     cfg.Filter.Whitelist,
		Ready: func(ctx context.Context) error {
			_, err := engine.Ping(ctx)
			return err
		},
		Metrics: promexport.NewCollector(engine).Handler(),
		Logger:  zerolog.Nop(),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &server{t: t, engine: engine, http: ts}
}

func (s *server) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.http.URL+path, &buf)
	if err != nil {
		s.t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Client().Do(req)
	if err != nil {
		s.t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (s *server) login(deviceID string) goSession.TokenResponse {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": testPassword,
		"deviceId": deviceID,
	})
	if code != http.StatusOK {
		s.t.Fatalf("login: status %d, message %q", code, env.Message)
	}
	var tokens goSession.TokenResponse
	if err := json.Unmarshal(env.Data, &tokens); err != nil {
		s.t.Fatalf("decode tokens: %v", err)
	}
	return tokens
}

func TestLoginMeRefreshLogout(t *testing.T) {
	s := newServer(t)

	tokens := s.login("d1")
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.ClientType != goSession.ClientWeb {
		t.Fatalf("unexpected token response %+v", tokens)
	}

	code, env := s.do(http.MethodGet, "/api/auth/me", tokens.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	var id goSession.Identity
	if err := json.Unmarshal(env.Data, &id); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if id.Username != "alice" || !id.HasPermission("system:user:list") {
		t.Fatalf("unexpected identity %+v", id)
	}

	code, env = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": tokens.RefreshToken,
		"deviceId":     "d1",
	})
	if code != http.StatusOK {
		t.Fatalf("refresh: status %d, message %q", code, env.Message)
	}
	var rotated goSession.TokenResponse
	if err := json.Unmarshal(env.Data, &rotated); err != nil {
		t.Fatalf("decode rotated: %v", err)
	}

	if code, _ := s.do(http.MethodGet, "/api/auth/me", rotated.AccessToken, nil); code != http.StatusOK {
		t.Fatalf("me with rotated token: status %d", code)
	}

	if code, _ := s.do(http.MethodPost, "/api/auth/logout", rotated.AccessToken, nil); code != http.StatusOK {
		t.Fatalf("logout: status %d", code)
	}

	code, env = s.do(http.MethodGet, "/api/auth/me", rotated.AccessToken, nil)
	if code != http.StatusUnauthorized || env.Message != goSession.GenericAuthMessage {
		t.Fatalf("expected generic 401 after logout, got %d %q", code, env.Message)
	}
}

func TestRefreshReuseIsGeneric401(t *testing.T) {
	s := newServer(t)
	tokens := s.login("d1")

	body := map[string]string{"refreshToken": tokens.RefreshToken, "deviceId": "d1"}
	if code, _ := s.do(http.MethodPost, "/api/auth/refresh", "", body); code != http.StatusOK {
		t.Fatalf("first refresh: status %d", code)
	}

	code, env := s.do(http.MethodPost, "/api/auth/refresh", "", body)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", code)
	}
	if env.Message != goSession.GenericAuthMessage {
		t.Fatalf("reuse must not be disclosed, got %q", env.Message)
	}
}

func TestBadCredentialsAndBadInput(t *testing.T) {
	s := newServer(t)

	code, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
		"deviceId": "d1",
	})
	if code != http.StatusUnauthorized || env.Message != goSession.GenericAuthMessage {
		t.Fatalf("expected generic 401, got %d %q", code, env.Message)
	}

	code, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"username": "alice", "unexpected": true})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", code)
	}

	code, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": testPassword,
		"deviceId": "bad:device",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reserved device id, got %d", code)
	}

	if code, _ := s.do(http.MethodPost, "/api/auth/logout", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for logout without token, got %d", code)
	}
}

func TestSecondLoginSupersedesFirst(t *testing.T) {
	s := newServer(t)

	first := s.login("d1")
	second := s.login("d2")

	if code, _ := s.do(http.MethodGet, "/api/auth/me", first.AccessToken, nil); code != http.StatusUnauthorized {
		t.Fatalf("first session must be superseded, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/auth/me", second.AccessToken, nil); code != http.StatusOK {
		t.Fatalf("second session must be live, got %d", code)
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	s := newServer(t)
	s.login("d1")

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := s.http.Client().Get(s.http.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
	}

	resp, err := s.http.Client().Get(s.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "gosession_login_success_total 1") {
		t.Fatalf("expected login counter in metrics, got:\n%s", buf.String())
	}
}

func TestReadyReportsBackendFailure(t *testing.T) {
	router := Router(RouterOptions{
		Ready:  func(context.Context) error { return goSession.ErrBackendUnavailable },
		Logger: zerolog.Nop(),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCORSRequiresExplicitOrigins(t *testing.T) {
	get := func(router http.Handler, origin string) http.Header {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Header()
	}

	closed := Router(RouterOptions{Logger: zerolog.Nop()})
	if got := get(closed, "https://evil.example").Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("no origins configured, got Access-Control-Allow-Origin %q", got)
	}

	explicit := Router(RouterOptions{AllowedOrigins: []string{"https://app.example"}, Logger: zerolog.Nop()})
	h := get(explicit, "https://app.example")
	if h.Get("Access-Control-Allow-Origin") != "https://app.example" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("explicit origin: unexpected headers %v", h)
	}
	if got := get(explicit, "https://evil.example").Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin reflected: %q", got)
	}

	wildcard := Router(RouterOptions{AllowedOrigins: []string{"*"}, Logger: zerolog.Nop()})
	h = get(wildcard, "https://evil.example")
	if h.Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("wildcard origin must not allow credentials: %v", h)
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	hit := func(router http.Handler, i int) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	direct := Router(RouterOptions{RequestsPerMin: 2, Logger: zerolog.Nop()})
	hit(direct, 1)
	hit(direct, 2)
	if code := hit(direct, 3); code != http.StatusTooManyRequests {
		t.Fatalf("spoofed header bypassed the limit, got %d", code)
	}

	ips, err := middleware.NewIPResolver("192.0.2.1")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	proxied := Router(RouterOptions{RequestsPerMin: 2, IPs: ips, Logger: zerolog.Nop()})
	for i := 1; i <= 3; i++ {
		if code := hit(proxied, i); code != http.StatusOK {
			t.Fatalf("request %d behind trusted proxy: got %d", i, code)
		}
	}
}
