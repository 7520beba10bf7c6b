package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/password"
)

const loadtestPassword = "loadtest-password"

type loadtestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func newLoadtestCommand() *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure authenticate and refresh latency against Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("users, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.users, "users", 1000, "number of users to log in before measuring")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "operations per phase (authenticate + refresh)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; miniredis is used when empty")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "lt:", "session key prefix")
	return cmd
}

// loadtestDirectory serves users user-0 … user-N-1 sharing one password hash.
type loadtestDirectory struct {
	hash  string
	count int
}

func (d loadtestDirectory) index(userID string) (int, bool) {
	i, err := strconv.Atoi(userID)
	return i, err == nil && i >= 0 && i < d.count
}

func (d loadtestDirectory) GetCredential(_ context.Context, username string) (goSession.Credential, error) {
	var i int
	if _, err := fmt.Sscanf(username, "user-%d", &i); err != nil || i < 0 || i >= d.count {
		return goSession.Credential{}, fmt.Errorf("%w: %s", goSession.ErrUserNotFound, username)
	}
	return goSession.Credential{UserID: strconv.Itoa(i), Username: username, PasswordHash: d.hash, Status: goSession.AccountActive}, nil
}

func (d loadtestDirectory) ResolvePermissions(_ context.Context, userID string) ([]string, error) {
	if _, ok := d.index(userID); !ok {
		return nil, goSession.ErrUserNotFound
	}
	return []string{"loadtest:read"}, nil
}

func (d loadtestDirectory) AccountStatus(_ context.Context, userID string) (goSession.AccountStatus, error) {
	if _, ok := d.index(userID); !ok {
		return goSession.AccountDisabled, goSession.ErrUserNotFound
	}
	return goSession.AccountActive, nil
}

type userState struct {
	mu       sync.Mutex
	deviceID string
	tokens   *goSession.TokenResponse
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	hash, err := password.HashBcrypt(loadtestPassword, 4)
	if err != nil {
		return err
	}

	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-0123456789abcdef0123")
	cfg.Session.KeyPrefix = opts.prefix
	cfg.Security.MaxLoginAttempts = 0
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(loadtestDirectory{hash: hash, count: opts.users}).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]userState, opts.users)
	fmt.Fprintf(out, "logging in %d users...\n", opts.users)
	startSeed := time.Now()
	for i := range states {
		states[i].deviceID = "device-" + strconv.Itoa(i)
		tokens, err := engine.Login(ctx, goSession.LoginRequest{
			Username: "user-" + strconv.Itoa(i),
			Password: loadtestPassword,
			Client:   goSession.ClientInfo{DeviceID: states[i].deviceID},
			IP:       "127.0.0.1",
		})
		if err != nil {
			return fmt.Errorf("login user-%d: %w", i, err)
		}
		states[i].tokens = tokens
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		access := s.tokens.AccessToken
		s.mu.Unlock()
		_, err := engine.Authenticate(ctx, access)
		return err
	})

	refreshStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		tokens, err := engine.Refresh(ctx, goSession.RefreshRequest{
			RefreshToken: s.tokens.RefreshToken,
			DeviceID:     s.deviceID,
			IP:           "127.0.0.1",
		})
		if err == nil {
			s.tokens = tokens
		}
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "authenticate", authStats)
	printStats(out, "refresh", refreshStats)
	return nil
}

// runPhase runs ops calls of fn across concurrency workers and collects
// per-call latency.
func runPhase(ops, concurrency int, seed int64, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
