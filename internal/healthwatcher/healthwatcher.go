// Package healthwatcher periodically pings the storage and reports whether
// the service is able to serve requests.
package healthwatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/students/internal/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthWatcher pings the storage on every tick and notifies subscribers
// when the serving status changes.
type HealthWatcher struct {
	db                 pinger
	delayBetweenChecks time.Duration
	errorChannel       chan error
	closeErrorsOnce    sync.Once
	mu                 sync.Mutex
	subscribers        []func(serving bool)
	serving            bool
	statusWasPublished bool
}

// New creates a HealthWatcher. Ping errors that do not fit into an
// errorChannelCapacity sized buffer are dropped.
func New(db pinger, delayBetweenChecks time.Duration, errorChannelCapacity int) *HealthWatcher {
	return &HealthWatcher{
		db:                 db,
		delayBetweenChecks: delayBetweenChecks,
		errorChannel:       make(chan error, errorChannelCapacity),
	}
}

// Subscribe registers a callback invoked with the new status on every change.
// Callbacks run on the Run goroutine.
func (w *HealthWatcher) Subscribe(callback func(serving bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.subscribers = append(w.subscribers, callback)
}

// ListenErrors consumes ping errors in a separate goroutine until Run returns.
func (w *HealthWatcher) ListenErrors(callback func(error)) {
	go func() {
		for err := range w.errorChannel {
			callback(err)
		}
	}()
}

// Serving reports the last published status.
func (w *HealthWatcher) Serving() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.serving
}

// Run checks the storage immediately and then on every tick until ctx is done.
func (w *HealthWatcher) Run(ctx context.Context) error {
	defer w.closeErrorsOnce.Do(func() { close(w.errorChannel) })

	ticker := time.NewTicker(w.delayBetweenChecks)
	defer ticker.Stop()

	w.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *HealthWatcher) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, w.delayBetweenChecks)
	defer cancel()

	err := w.db.Ping(pingCtx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		select {
		case w.errorChannel <- err:
		default:
			logger.Log.Debugw("health check error dropped", zap.Error(err))
		}
	}

	w.publish(err == nil)
}

func (w *HealthWatcher) publish(serving bool) {
	w.mu.Lock()
	if w.statusWasPublished && w.serving == serving {
		w.mu.Unlock()
		return
	}
	w.serving = serving
	w.statusWasPublished = true
	subscribers := make([]func(bool), len(w.subscribers))
	copy(subscribers, w.subscribers)
	w.mu.Unlock()

	logger.Log.Infow("storage health changed", "serving", serving)

	for _, callback := range subscribers {
		callback(serving)
	}
}
