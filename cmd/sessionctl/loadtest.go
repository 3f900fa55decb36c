package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	metrics     bool
}

func newLoadtestCmd(opts *globalOptions) *cobra.Command {
	lt := &loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run a concurrent resolve and update workload",
		Long: `Seed sessions, then run a resolve phase and an update phase and print latency
percentiles. Without --redis an embedded miniredis serves the cache tier; the durable tier
follows --data-dir (in memory when empty).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lt.sessions <= 0 || lt.concurrency <= 0 || lt.ops <= 0 {
				return fmt.Errorf("sessions, concurrency, and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts, lt)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&lt.sessions, "sessions", 10000, "number of sessions to seed")
	flags.IntVar(&lt.concurrency, "concurrency", 64, "number of concurrent workers")
	flags.IntVar(&lt.ops, "ops", 50000, "operations per phase")
	flags.BoolVar(&lt.metrics, "metrics", false, "print engine metrics in Prometheus text format afterwards")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts *globalOptions, lt *loadtestOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

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

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	defer client.Close()

	engine, err := goSession.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	ids := make([]string, lt.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", lt.sessions)
	startSeed := time.Now()
	for i := range ids {
		sess, err := engine.Create(ctx, map[string]any{
			"user":    fmt.Sprintf("u%d", i),
			"visits":  0,
			"profile": map[string]any{"tier": i % 3},
		})
		if err != nil {
			return fmt.Errorf("seed session %d: %w", i, err)
		}
		ids[i] = sess.ID()
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(lt.ops, lt.concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := engine.Resolve(ctx, ids[r.Intn(len(ids))])
		return err
	})
	updateStats := runPhase(lt.ops, lt.concurrency, 6151, func(r *rand.Rand, i int) error {
		sess, err := engine.Resolve(ctx, ids[r.Intn(len(ids))])
		if err != nil {
			return err
		}
		return engine.SetData(ctx, sess, map[string]any{"visits": i}, true)
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "resolve", resolveStats)
	printStats(out, "update", updateStats)
	fmt.Fprintf(out, "write-back: pending=%d dropped=%d\n", engine.WriteBackPending(), engine.WriteBackDropped())

	if !lt.metrics {
		return nil
	}
	exp, err := promexport.NewPrometheusExporter(engine)
	if err != nil {
		return err
	}
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	_, err = io.Copy(out, rec.Body)
	return err
}

// runPhase spreads ops calls of op over concurrency workers and collects latencies.
func runPhase(ops, concurrency int, seedStride int64, op func(r *rand.Rand, i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStride))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
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
		return phaseStats{total: total, failures: failures}
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
