package goSession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/password"
)

const testPassword = "correct-password-123"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// memoryDirectory is an in-memory Directory for engine tests.
type memoryDirectory struct {
	mu          sync.Mutex
	byName      map[string]Credential
	permissions map[string][]string

	lookups     atomic.Int64
	resolves    atomic.Int64
	statusCalls atomic.Int64
	resolveErr  error
}

func newMemoryDirectory(t *testing.T) *memoryDirectory {
	t.Helper()
	hash, err := testVerifier(t).Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &memoryDirectory{
		byName: map[string]Credential{
			"alice": {UserID: "u1", Username: "alice", PasswordHash: hash, Status: AccountActive},
			"bob":   {UserID: "u2", Username: "bob", PasswordHash: hash, Status: AccountActive},
			"carol": {UserID: "u3", Username: "carol", PasswordHash: hash, Status: AccountDisabled},
		},
		permissions: map[string][]string{
			"u1": {"system:user:list", "system:user:edit"},
			"u2": {"system:user:list"},
		},
	}
}

func (d *memoryDirectory) GetCredential(_ context.Context, username string) (Credential, error) {
	d.lookups.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	cred, ok := d.byName[username]
	if !ok {
		return Credential{}, fmt.Errorf("lookup %q: %w", username, ErrUserNotFound)
	}
	return cred, nil
}

func (d *memoryDirectory) ResolvePermissions(_ context.Context, userID string) ([]string, error) {
	d.resolves.Add(1)
	if d.resolveErr != nil {
		return nil, d.resolveErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.permissions[userID]...), nil
}

func (d *memoryDirectory) AccountStatus(_ context.Context, userID string) (AccountStatus, error) {
	d.statusCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cred := range d.byName {
		if cred.UserID == userID {
			return cred.Status, nil
		}
	}
	return 0, ErrUserNotFound
}

func (d *memoryDirectory) setStatus(username string, status AccountStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cred := d.byName[username]
	cred.Status = status
	d.byName[username] = cred
}

func testArgon2() PasswordConfig {
	return PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func testVerifier(t *testing.T) *password.Verifier {
	t.Helper()
	v, err := password.NewVerifier(testArgon2().argon2())
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	cfg.Password = testArgon2()
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	return mr, rdb
}

type testEngine struct {
	*Engine
	mr  *miniredis.Miniredis
	rdb *redis.Client
	dir *memoryDirectory
}

func newTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) *testEngine {
	t.Helper()
	mr, rdb := newTestRedis(t)
	dir := newMemoryDirectory(t)

	b := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(dir)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &testEngine{Engine: engine, mr: mr, rdb: rdb, dir: dir}
}

func (te *testEngine) login(t *testing.T, username, deviceID string) *TokenResponse {
	t.Helper()
	resp, err := te.Login(context.Background(), LoginRequest{
		Username: username,
		Password: testPassword,
		Client:   ClientInfo{DeviceID: deviceID},
		IP:       "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("login %s/%s: %v", username, deviceID, err)
	}
	return resp
}

func (te *testEngine) refresh(refreshToken, deviceID string) (*TokenResponse, error) {
	return te.Refresh(context.Background(), RefreshRequest{RefreshToken: refreshToken, DeviceID: deviceID, IP: "10.0.0.2"})
}

func (te *testEngine) jti(t *testing.T, token string) string {
	t.Helper()
	claims, err := te.codec.DecodeIgnoringExpiry(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return claims.ID
}
