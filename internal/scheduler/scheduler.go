package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// DetectionRunner is the pair of daily detection passes.
type DetectionRunner interface {
	RunLowStock(ctx context.Context) (int, error)
	RunExpiry(ctx context.Context) (int, error)
}

// Scheduler fires the detection jobs once a day at a configured wall-clock
// time. Triggers are single-flight: while a pass is running, further triggers
// are no-ops rather than queued, so a slow pass never stacks duplicates.
type Scheduler struct {
	jobs   DetectionRunner
	fireAt string // "15:04"

	mu         sync.Mutex
	started    bool
	running    bool
	lastRunDay string

	stop chan struct{}
	done chan struct{}
}

func New(jobs DetectionRunner, fireAt string) *Scheduler {
	if _, err := time.Parse("15:04", fireAt); err != nil {
		log.Printf("WARN: invalid scan time %q, using 06:00", fireAt)
		fireAt = "06:00"
	}
	return &Scheduler{
		jobs:   jobs,
		fireAt: fireAt,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the clock watcher. Call Stop to shut it down; a pass in
// flight is never cancelled, only the trigger loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				day := now.Format("2006-01-02")
				if now.Format("15:04") != s.fireAt || s.alreadyRan(day) {
					continue
				}
				s.Trigger(ctx)
			}
		}
	}()
}

// Stop is a no-op when Start was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	close(s.stop)
	<-s.done
}

// Trigger runs one detection pass synchronously: low stock first, then
// expiry. Returns false without doing anything when a pass is already
// running.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.lastRunDay = time.Now().Format("2006-01-02")
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	lowStock, err := s.jobs.RunLowStock(ctx)
	if err != nil {
		log.Printf("WARN: low-stock scan failed: %v", err)
	}
	expiry, err := s.jobs.RunExpiry(ctx)
	if err != nil {
		log.Printf("WARN: expiry scan failed: %v", err)
	}
	log.Printf("detection pass done in %s: %d low-stock, %d expiry notifications",
		time.Since(start).Round(time.Millisecond), lowStock, expiry)
	return true
}

func (s *Scheduler) alreadyRan(day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunDay == day
}
