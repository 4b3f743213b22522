/*
scheduler.go - Automated run retention scheduler

PURPOSE:
  Periodically deletes calculation runs whose retention window has
  passed. Uploaded ledgers carry supplier-level financial data; stored
  results expire after a configurable number of days so the service
  never holds them longer than it must.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Deletes runs with expires_at before the current time
  - Logs purge counts for audit

CONFIGURATION:
  - CheckInterval: How often to purge (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRetentionScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite: PurgeExpired
  - upload.go: Sets expires_at on new runs
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gstledger/itc-engine/store/sqlite"
)

// RetentionScheduler handles automated purging of expired runs.
type RetentionScheduler struct {
	Store         *sqlite.Store
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRetentionScheduler creates a new scheduler.
func NewRetentionScheduler(store *sqlite.Store) *RetentionScheduler {
	return &RetentionScheduler{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RetentionScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Retention] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Retention] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RetentionScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Retention] Stopped")
	}
}

func (rs *RetentionScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.purge()

	for {
		select {
		case <-rs.ticker.C:
			rs.purge()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RetentionScheduler) purge() {
	ctx := context.Background()
	now := time.Now().UTC()

	purged, err := rs.Store.PurgeExpired(ctx, now)
	if err != nil {
		log.Printf("[Retention] Error purging expired runs: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[Retention] Purged %d expired runs", purged)
	}
}

// RunNow triggers an immediate purge (for testing/admin).
func (rs *RetentionScheduler) RunNow() {
	rs.purge()
}
