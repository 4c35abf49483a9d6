/*
scheduler.go - Automated payroll scheduler

PURPOSE:
  Periodically recomputes the salary journal for the current month so
  staff balances stay fresh without waiting for a manual run. At the
  start of a new month the previous month gets one final pass.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Recomputation is idempotent: journal writes are keyed upserts
  - Manual overrides are never clobbered (the store enforces it)
  - Records a log line per run for operational visibility

CONFIGURATION:
  - CheckInterval: How often to recompute (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPayrollScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPayroll endpoint (manual runs share the same code)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// PayrollScheduler handles automated payroll recomputation.
type PayrollScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(handler *Handler) *PayrollScheduler {
	return &PayrollScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run()

	log.Printf("[Scheduler] Started with check interval: %v", ps.CheckInterval)
}

// Stop stops the scheduler.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PayrollScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.recompute()

	for {
		select {
		case <-ps.ticker.C:
			ps.recompute()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PayrollScheduler) recompute() {
	ctx := context.Background()
	now := time.Now().UTC()

	// Current month always; previous month too during the first days of
	// a new month, so late attendance edits still settle.
	months := []time.Time{now}
	if now.Day() <= 5 {
		months = append(months, now.AddDate(0, -1, 0))
	}

	for _, m := range months {
		result, err := ps.Handler.runPayroll(ctx, m.Year(), m.Month())
		if err != nil {
			log.Printf("[Scheduler] Payroll run %d-%02d failed: %v", m.Year(), m.Month(), err)
			continue
		}
		if result.EntriesWritten > 0 || result.OverridesKept > 0 {
			log.Printf("[Scheduler] Payroll %d-%02d: %d entries written, %d overrides kept",
				m.Year(), m.Month(), result.EntriesWritten, result.OverridesKept)
		}
	}
}

// RunNow triggers an immediate recomputation (for testing/admin).
func (ps *PayrollScheduler) RunNow() {
	ps.recompute()
}
