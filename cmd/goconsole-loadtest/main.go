// Command goconsole-loadtest drives one Store with concurrent Login,
// Logout and Snapshot calls against an in-process devserver and checks
// that every observed snapshot carries a user exactly when it is
// authenticated.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goConsole "github.com/MrEthical07/goConsole"
	"github.com/MrEthical07/goConsole/devserver"
	"github.com/MrEthical07/goConsole/internal/bootstrap"
	"github.com/MrEthical07/goConsole/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type opKind int

const (
	opLogin opKind = iota
	opBadLogin
	opLogout
	opSnapshot
	opKindCount
)

var opNames = [opKindCount]string{"login", "bad-login", "logout", "snapshot"}

func main() {
	var (
		ops         = flag.Int("ops", 20000, "total operations")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		latency     = flag.Duration("latency", time.Millisecond, "artificial devserver latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *ops <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "ops and concurrency must be > 0")
		os.Exit(2)
	}

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

	if err := run(client, addr, *ops, *concurrency, *latency); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(client redis.UniversalClient, redisAddr string, ops, concurrency int, latency time.Duration) error {
	ctx := context.Background()

	srvCfg := devserver.DefaultConfig()
	srvCfg.Latency = latency
	// bad-login traffic would otherwise lock the seeded accounts
	limiter := rate.New(client, rate.Config{Prefix: "loadtest", MaxAttempts: ops + 1})
	srv, err := devserver.New(srvCfg, devserver.WithLimiter(limiter))
	if err != nil {
		return err
	}
	if err := srv.Seed(devserver.DefaultOperators()); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = httpSrv.Serve(ln) }()
	defer httpSrv.Close()

	cfg := goConsole.DefaultConfig()
	cfg.API.BaseURL = "http://" + ln.Addr().String()
	cfg.Credential.Backend = goConsole.CredentialRedis
	cfg.Credential.RedisAddr = redisAddr
	cfg.Credential.RedisPrefix = "loadtest"
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Log.Level = "error"

	rt, err := bootstrap.Open(cfg, io.Discard, bootstrap.WithRedisClient(client))
	if err != nil {
		return err
	}
	defer rt.Close()

	store := rt.Store
	store.Start(ctx)
	<-store.Ready()

	var violations atomic.Int64
	updates, cancel := store.Subscribe(1)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for snap := range updates {
			if !consistent(snap) {
				violations.Add(1)
			}
		}
	}()

	stats := drive(ctx, store, ops, concurrency, &violations)

	store.Logout(ctx)
	final := store.Snapshot()
	cancel()
	<-watchDone

	persisted, err := client.Exists(ctx, "loadtest:"+cfg.Credential.Key).Result()
	if err != nil {
		return fmt.Errorf("check persisted credential: %w", err)
	}

	fmt.Println("---- results ----")
	for k := opKind(0); k < opKindCount; k++ {
		printStats(opNames[k], stats[k])
	}
	m := store.MetricsSnapshot()
	fmt.Printf("stale results discarded: %d\n", m.Counters[goConsole.MetricStaleResultDiscarded])
	fmt.Printf("subscriber drops: %d\n", m.Counters[goConsole.MetricSubscriberDropped])
	fmt.Printf("invariant violations: %d\n", violations.Load())

	switch {
	case violations.Load() > 0:
		return fmt.Errorf("%d snapshots broke user/status consistency", violations.Load())
	case final.Status != goConsole.StatusUnauthenticated || final.User != nil:
		return fmt.Errorf("final logout left status %s", final.Status)
	case persisted != 0:
		return errors.New("final logout left a persisted credential")
	}
	fmt.Println("ok")
	return nil
}

func consistent(s goConsole.Snapshot) bool {
	return (s.User != nil) == (s.Status == goConsole.StatusAuthenticated)
}

type phaseStats struct {
	ops        int
	failures   int64
	superseded int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
}

func drive(ctx context.Context, store *goConsole.Store, ops, concurrency int, violations *atomic.Int64) [opKindCount]phaseStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		mu         sync.Mutex
		latencies  [opKindCount][]time.Duration
		failures   [opKindCount]int64
		superseded [opKindCount]int64
	)

	operators := devserver.DefaultOperators()

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

				kind := opKind(r.Intn(int(opKindCount)))
				op := operators[r.Intn(len(operators))]
				t0 := time.Now()
				var err error
				switch kind {
				case opLogin:
					_, err = store.Login(ctx, goConsole.Credentials{Identifier: op.Email, Secret: op.Secret})
				case opBadLogin:
					_, err = store.Login(ctx, goConsole.Credentials{Identifier: op.Email, Secret: "wrong"})
					if errors.Is(err, goConsole.ErrLoginRejected) {
						err = nil
					}
				case opLogout:
					store.Logout(ctx)
				case opSnapshot:
					if !consistent(store.Snapshot()) {
						violations.Add(1)
					}
				}
				d := time.Since(t0)

				switch {
				case errors.Is(err, goConsole.ErrSuperseded):
					atomic.AddInt64(&superseded[kind], 1)
				case err != nil:
					atomic.AddInt64(&failures[kind], 1)
				}

				mu.Lock()
				latencies[kind] = append(latencies[kind], d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	var out [opKindCount]phaseStats
	for k := range out {
		out[k] = computeStats(latencies[k], failures[k], superseded[k])
	}
	return out
}

func computeStats(samples []time.Duration, failures, superseded int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		ops:        len(samples),
		failures:   failures,
		superseded: superseded,
		p50:        percentile(samples, 50),
		p95:        percentile(samples, 95),
		p99:        percentile(samples, 99),
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d superseded=%d p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.superseded,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
