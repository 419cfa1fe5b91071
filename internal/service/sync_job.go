package service

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/internal/watcher"
)

type syncJob struct {
	syncer Syncer
	events <-chan watcher.Event
	log    *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that runs a full bidirectional pass on a
// ticker and, when events is non-nil, also after a debounced burst of
// filesystem events. The job is idle until Start is called.
func NewSyncJob(syncer Syncer, events <-chan watcher.Event, log *logger.Logger) SyncJob {
	return &syncJob{syncer: syncer, events: events, log: log}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine. If interval is zero or negative it
// defaults to 5 minutes; a non-positive debounce defaults to 2 seconds. The
// goroutine exits when ctx is cancelled or Stop is called.
func (j *syncJob) Start(ctx context.Context, interval, debounce time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		j.loop(jobCtx, interval, debounce)
	}()
}

// Stop implements SyncJob. It cancels the background goroutine's context and
// blocks until the goroutine has fully exited. Safe to call when the job is
// not running (no-op in that case).
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *syncJob) loop(ctx context.Context, interval, debounce time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	// The debounce timer collapses an editor's burst of writes into one
	// pass. It is created stopped and armed by the first event.
	pending := time.NewTimer(debounce)
	if !pending.Stop() {
		<-pending.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			j.runPass(ctx)

		case event, ok := <-j.events:
			if !ok {
				// Watcher gone; keep the ticker running.
				j.events = nil
				continue
			}
			j.log.Debug().Str("local_id", event.LocalID).Msg("local change observed, debouncing")
			if !pending.Stop() {
				select {
				case <-pending.C:
				default:
				}
			}
			pending.Reset(debounce)

		case <-pending.C:
			j.runPass(ctx)
			t.Reset(interval)
		}
	}
}

func (j *syncJob) runPass(ctx context.Context) {
	report, err := j.syncer.RunPass(ctx, DirectionBoth)
	if err != nil {
		j.log.Error().Err(err).Msg("scheduled sync pass failed")
		return
	}
	if failed := report.Failed(); len(failed) > 0 {
		j.log.Warn().Int("failed", len(failed)).Str("pass_id", report.PassID).Msg("sync pass finished with item failures")
	}
}
