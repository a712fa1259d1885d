// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/zapcrm/followup-engine/business_flow"
)

var (
	monitorPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_monitor_passes_total",
		Help: "Total number of monitor passes executed",
	})
	executionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_executions_created_total",
		Help: "Total number of follow-up executions created",
	})
	executionsFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_executions_fired_total",
		Help: "Total number of follow-up executions delivered",
	})
	dispatchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_dispatch_failures_total",
		Help: "Total number of follow-up dispatch failures",
	})
)

// monitorLockKey guards against overlapping monitor passes across replicas.
const monitorLockKey = "followup:monitor:lock"

// FollowupScheduler periodically runs the monitor pass (chain creation) and
// the fire pass (due-execution delivery). Each pass is a stateless unit of
// work; all engine state lives in the database.
type FollowupScheduler struct {
	monitor businessflow.MonitorFlow
	fire    businessflow.FireFlow
	rc      *redis.Client
	logger  *log.Logger

	monitorInterval time.Duration
	fireInterval    time.Duration
	fireBatchLimit  int
	lockTTL         time.Duration
}

// NewFollowupScheduler creates a new scheduler instance. rc may be nil; the
// run lock is then skipped and the storage-level uniqueness gate alone guards
// against overlapping passes.
func NewFollowupScheduler(
	monitor businessflow.MonitorFlow,
	fire businessflow.FireFlow,
	rc *redis.Client,
	monitorInterval, fireInterval time.Duration,
	fireBatchLimit int,
) *FollowupScheduler {
	if monitorInterval <= 0 {
		monitorInterval = time.Minute
	}
	if fireInterval <= 0 {
		fireInterval = time.Minute
	}
	if fireBatchLimit <= 0 {
		fireBatchLimit = 100
	}

	s := &FollowupScheduler{
		monitor:         monitor,
		fire:            fire,
		rc:              rc,
		monitorInterval: monitorInterval,
		fireInterval:    fireInterval,
		fireBatchLimit:  fireBatchLimit,
		lockTTL:         2 * monitorInterval,
	}
	s.logger = newSchedulerLogger()
	return s
}

// newSchedulerLogger writes to stdout and a rotated persistent file under
// data/ (or /data for containerized environments).
func newSchedulerLogger() *log.Logger {
	dir := "data"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = "/data"
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("scheduler: could not create log directory: %v", err)
			return log.New(os.Stdout, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		}
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "followup-scheduler.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotated)
	return log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Logger exposes the scheduler logger for wiring into the flows.
func (s *FollowupScheduler) Logger() *log.Logger {
	return s.logger
}

// Start launches both loops in background goroutines and returns a stop function
func (s *FollowupScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.monitorInterval)
		defer ticker.Stop()

		s.runMonitorOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runMonitorOnce(ctx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(s.fireInterval)
		defer ticker.Stop()

		s.runFireOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runFireOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *FollowupScheduler) runMonitorOnce(ctx context.Context) {
	release, ok := s.acquireLock(ctx)
	if !ok {
		s.logger.Printf("scheduler: monitor pass already running elsewhere, skipping tick")
		return
	}
	defer release()

	monitorPassesTotal.Inc()

	resp, err := s.monitor.RunMonitorPass(ctx)
	if err != nil {
		s.logger.Printf("scheduler: monitor pass failed: %v", err)
		return
	}
	executionsCreatedTotal.Add(float64(resp.ExecutionsCreated))
	if resp.ConversationsProcessed > 0 || resp.ExecutionsCreated > 0 {
		s.logger.Printf("scheduler: monitor pass processed=%d created=%d", resp.ConversationsProcessed, resp.ExecutionsCreated)
	}
}

func (s *FollowupScheduler) runFireOnce(ctx context.Context) {
	resp, err := s.fire.RunFirePass(ctx, s.fireBatchLimit)
	if err != nil {
		s.logger.Printf("scheduler: fire pass failed: %v", err)
		return
	}
	executionsFiredTotal.Add(float64(resp.ExecutionsFired))
	dispatchFailuresTotal.Add(float64(resp.ExecutionsFail))
	if resp.ExecutionsFired > 0 || resp.ExecutionsFail > 0 {
		s.logger.Printf("scheduler: fire pass fired=%d failed=%d", resp.ExecutionsFired, resp.ExecutionsFail)
	}
}

// acquireLock takes the distributed run lock. Without redis the lock is a
// no-op; the partial unique index still prevents duplicate chains.
func (s *FollowupScheduler) acquireLock(ctx context.Context) (func(), bool) {
	if s.rc == nil {
		return func() {}, true
	}

	token := uuid.NewString()
	ok, err := s.rc.SetNX(ctx, monitorLockKey, token, s.lockTTL).Result()
	if err != nil {
		s.logger.Printf("scheduler: run lock unavailable, proceeding without it: %v", err)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}

	return func() {
		// Release only our own token; an expired lock may belong to another run.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		if err := s.rc.Eval(ctx, script, []string{monitorLockKey}, token).Err(); err != nil && err != redis.Nil {
			s.logger.Printf("scheduler: run lock release failed: %v", err)
		}
	}, true
}
