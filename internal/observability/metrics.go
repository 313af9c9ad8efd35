package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

// Metrics is the process-wide metric registry, exposed in Prometheus
// text format on its own listener.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps      *CounterVec
	aggregateLatency  *HistogramVec
	aggregateConflict *CounterVec
	aggregateRetry    *CounterVec

	ledgerCalls   *CounterVec
	ledgerLatency *HistogramVec

	sweepRuns        *Counter
	sweepTransitions *CounterVec

	incidentsOpen *Gauge
	jobsByStatus  *GaugeVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("wh_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"wh_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			),
			apiInflight: NewGauge("wh_api_inflight_requests", "In-flight API requests."),
			aggregateOps: NewCounterVec(
				"wh_aggregate_operations_total",
				"Aggregate write operations by op/status.",
				[]string{"op", "status"},
			),
			aggregateLatency: NewHistogramVec(
				"wh_aggregate_operation_duration_seconds",
				"Aggregate write latency in seconds by op/status.",
				[]string{"op", "status"},
				[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			),
			aggregateConflict: NewCounterVec("wh_aggregate_conflicts_total", "Aggregate CAS/lock conflicts by op.", []string{"op"}),
			aggregateRetry:    NewCounterVec("wh_aggregate_retryable_total", "Aggregate retryable failures by op.", []string{"op"}),
			ledgerCalls: NewCounterVec(
				"wh_ledger_calls_total",
				"Ledger gateway calls by op/outcome (confirmed, rejected, unknown).",
				[]string{"op", "outcome"},
			),
			ledgerLatency: NewHistogramVec(
				"wh_ledger_call_duration_seconds",
				"Ledger gateway call latency in seconds by op.",
				[]string{"op"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			sweepRuns: NewCounter("wh_deadline_sweeps_total", "Deadline scheduler sweep executions."),
			sweepTransitions: NewCounterVec(
				"wh_deadline_transitions_total",
				"Deadline transitions fired by the sweep, by kind/result.",
				[]string{"kind", "result"},
			),
			incidentsOpen: NewGauge("wh_settlement_incidents_open", "Open settlement incidents awaiting operator action."),
			jobsByStatus:  NewGaugeVec("wh_jobs_by_status", "Job count by status.", []string{"status"}),
			pgStats:       NewGaugeVec("wh_postgres_stats", "Postgres connection stats.", []string{"metric"}),
			redisUp:       NewGauge("wh_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:     NewGauge("wh_redis_ping_seconds", "Redis ping latency in seconds."),
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.aggregateOps,
		m.aggregateLatency,
		m.aggregateConflict,
		m.aggregateRetry,
		m.ledgerCalls,
		m.ledgerLatency,
		m.sweepRuns,
		m.sweepTransitions,
		m.incidentsOpen,
		m.jobsByStatus,
		m.pgStats,
		m.redisUp,
		m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.aggregateOps.Inc(op, status)
	if dur > 0 {
		m.aggregateLatency.Observe(dur.Seconds(), op, status)
	}
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.aggregateConflict.Inc(op)
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.aggregateRetry.Inc(op)
}

// ObserveLedgerCall records one gateway call. Outcome is confirmed,
// rejected or unknown.
func (m *Metrics) ObserveLedgerCall(op, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.ledgerCalls.Inc(op, outcome)
	if dur > 0 {
		m.ledgerLatency.Observe(dur.Seconds(), op)
	}
}

func (m *Metrics) IncSweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

// IncSweepTransition counts one deadline transition attempt. Result is
// applied, noop or error.
func (m *Metrics) IncSweepTransition(kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	m.sweepTransitions.Inc(kind, result)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartEscrowCollector samples job status counts and the open settlement
// incident backlog.
func (m *Metrics) StartEscrowCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.Job{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job status query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					status := strings.TrimSpace(row.Status)
					if status == "" {
						status = "unknown"
					}
					m.jobsByStatus.Set(float64(row.Count), status)
				}

				var open int64
				if err := db.WithContext(ctx).
					Model(&types.Incident{}).
					Where("status = ?", "open").
					Count(&open).Error; err != nil {
					if log != nil {
						log.Warn("metrics: incident count query failed", "error", err)
					}
					continue
				}
				m.incidentsOpen.Set(float64(open))
			}
		}
	}()
}
