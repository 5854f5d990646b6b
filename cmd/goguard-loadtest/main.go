// Command goguard-loadtest drives a Redis-backed engine with concurrent
// heartbeats and backup-code logins and reports latency percentiles.
//
// The backup-code phase also checks that every code is accepted exactly
// once even when many workers race on the same code.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type enrolledUser struct {
	id    string
	codes []string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		users       = flag.Int("users", 200, "users enrolled in two-factor for the backup-code phase")
		racers      = flag.Int("racers", 4, "workers submitting each backup code at once")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "heartbeat operations")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "store key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *racers <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, racers, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := goGuard.New().
		WithStore(redisstore.New(client, redisstore.Options{Prefix: *prefix, MaxRetries: 16})).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	sids := make([]string, *sessions)
	for i := range sids {
		sid, err := engine.CreateSession(ctx, goGuard.CreateSessionRequest{
			UserID: fmt.Sprintf("u-%d", i%1000),
			Device: goGuard.DeviceInfo{Platform: "Linux", Browser: "loadtest"},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create session failed: %v\n", err)
			os.Exit(1)
		}
		sids[i] = sid
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	fmt.Printf("enrolling %d users...\n", *users)
	enrolled, err := enroll(ctx, engine, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enroll failed: %v\n", err)
		os.Exit(1)
	}

	heartbeatStats := runHeartbeatPhase(ctx, engine, sids, *ops, *concurrency)
	backupStats, accepted := runBackupPhase(ctx, engine, enrolled, *racers, *concurrency)

	expected := 0
	for _, u := range enrolled {
		expected += len(u.codes)
	}

	fmt.Println("---- results ----")
	printStats("heartbeat", heartbeatStats)
	printStats("backup-code", backupStats)
	fmt.Printf("backup codes accepted=%d expected=%d\n", accepted, expected)
	if accepted != int64(expected) {
		fmt.Fprintln(os.Stderr, "backup codes were not accepted exactly once")
		os.Exit(1)
	}
}

func enroll(ctx context.Context, engine *goGuard.Engine, n int) ([]enrolledUser, error) {
	totp := engine.Config().TOTP
	opts := otp.Options{Period: totp.Period, Digits: totp.Digits, Algorithm: totp.Algorithm}

	out := make([]enrolledUser, 0, n)
	for i := 0; i < n; i++ {
		uid := fmt.Sprintf("mfa-%d", i)
		setup, err := engine.BeginTwoFactorSetup(ctx, uid, uid+"@loadtest.invalid")
		if err != nil {
			return nil, err
		}
		code, err := otp.ComputeCode(setup.Secret, opts.Counter(time.Now()), opts)
		if err != nil {
			return nil, err
		}
		ok, err := engine.EnableTwoFactor(ctx, uid, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("enable rejected for %s", uid)
		}
		out = append(out, enrolledUser{id: uid, codes: setup.BackupCodes})
	}
	return out, nil
}

func runHeartbeatPhase(ctx context.Context, engine *goGuard.Engine, sids []string, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(sids))
				t0 := time.Now()
				err := engine.Heartbeat(ctx, sids[idx])
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type backupAttempt struct {
	userID string
	code   string
}

// runBackupPhase submits every backup code racers times concurrently and
// returns how many submissions were accepted.
func runBackupPhase(ctx context.Context, engine *goGuard.Engine, users []enrolledUser, racers, concurrency int) (phaseStats, int64) {
	var attempts []backupAttempt
	for _, u := range users {
		for _, c := range u.codes {
			for i := 0; i < racers; i++ {
				attempts = append(attempts, backupAttempt{userID: u.id, code: c})
			}
		}
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		accepted  int64
		latencies = make([]time.Duration, 0, len(attempts))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(attempts) {
					return
				}
				a := attempts[i]
				t0 := time.Now()
				ok, err := engine.VerifyTwoFactorLogin(ctx, a.userID, a.code, goGuard.MethodBackupCodes)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case ok:
					atomic.AddInt64(&accepted, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), accepted
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
