package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/loopback-hub/loopback/internal/knowledge"
)

// Scheduler periodically rebuilds the knowledge index so articles dropped into
// the knowledge directory become searchable without a restart.
type Scheduler struct {
	Index  *knowledge.Index
	Cron   string
	Rdb    *redis.Client
	Stop   chan struct{}
	Logger *log.Logger

	lastRun *time.Time
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if !isDue(s.Cron, s.lastRun) {
		return
	}

	// distributed lock to avoid duplicate reindexes across instances
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "loopback:sched:reindex", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "loopback:sched:reindex")
	}

	now := time.Now()
	s.lastRun = &now
	if err := s.Index.Reindex(); err != nil {
		s.Logger.Printf("scheduled reindex failed: %v", err)
	}
}

// isDue determines if a job with cronSpec should run now based on its last run.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			// If never run, due now
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
