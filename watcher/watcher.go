// Package watcher turns the slow-changing "is this character purchasable"
// predicate into an edge-triggered callback.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stickerhunter/config"
	"stickerhunter/metrics"
	"stickerhunter/models"
)

// PollClient is the slice of the shop API the watcher needs. GetCollection
// must return (nil, nil) for a confirmed-absent collection and a non-nil
// error for a failed poll; the two drive the state machine differently.
type PollClient interface {
	GetCollection(ctx context.Context, collectionID int) (*models.Collection, error)
}

// AvailableFunc is invoked with the resolved snapshot and the character id
// once per transition into availability.
type AvailableFunc func(collection *models.Collection, characterID int)

// CollectionWatcher polls tracked targets in background goroutines. Poll
// errors never stop a target; only StopWatching and StopAll do.
type CollectionWatcher struct {
	api     PollClient
	cfg     *config.Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	cancels map[models.Target]context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a watcher with no tracked targets.
func New(api PollClient, cfg *config.Config, m *metrics.Metrics) *CollectionWatcher {
	return &CollectionWatcher{
		api:     api,
		cfg:     cfg,
		metrics: m,
		cancels: make(map[models.Target]context.CancelFunc),
	}
}

// Watch registers a target and starts polling it in the background. The
// registration itself never blocks. Watching the same target twice is an
// error.
func (w *CollectionWatcher) Watch(ctx context.Context, target models.Target, onAvailable AvailableFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.cancels[target]; ok {
		return fmt.Errorf("already watching target %s", target)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	w.cancels[target] = cancel
	w.wg.Add(1)
	go w.poll(pollCtx, target, onAvailable)

	slog.Info("watching target",
		slog.Int("collection", target.CollectionID),
		slog.Int("character", target.CharacterID),
	)
	return nil
}

// StopWatching removes a target from the active set. Idempotent.
func (w *CollectionWatcher) StopWatching(target models.Target) {
	w.mu.Lock()
	cancel, ok := w.cancels[target]
	if ok {
		delete(w.cancels, target)
	}
	w.mu.Unlock()

	if ok {
		cancel()
		slog.Info("stopped watching target",
			slog.Int("collection", target.CollectionID),
			slog.Int("character", target.CharacterID),
		)
	}
}

// StopAll stops every tracked target and waits for their poll loops to
// drain. Used at shutdown.
func (w *CollectionWatcher) StopAll() {
	w.mu.Lock()
	for target, cancel := range w.cancels {
		cancel()
		delete(w.cancels, target)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// poll runs the per-target state machine: not-found until the collection
// appears, then observation until the character becomes active with stock,
// at which point the callback fires once and observation resumes.
func (w *CollectionWatcher) poll(ctx context.Context, target models.Target, onAvailable AvailableFunc) {
	defer w.wg.Done()

	found := false
	wasAvailable := false

	for {
		delay := w.cfg.NotFoundRetryDelay
		if found {
			delay = w.cfg.CheckInterval
		}

		collection, err := w.api.GetCollection(ctx, target.CollectionID)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			// Transient failure: state unchanged, retried next tick.
			w.metrics.IncPoll("error")
			slog.Debug("poll failed",
				slog.Int("collection", target.CollectionID),
				slog.Any("error", err),
			)
		case collection == nil:
			w.metrics.IncPoll("not_found")
			if found {
				slog.Warn("collection disappeared, waiting for it again",
					slog.Int("collection", target.CollectionID),
				)
				found = false
				wasAvailable = false
			}
			delay = w.cfg.NotFoundRetryDelay
		default:
			if !found {
				found = true
				slog.Info("collection found",
					slog.Int("collection", collection.ID),
					slog.String("name", collection.Name),
					slog.String("status", collection.Status),
					slog.Int("total", collection.TotalCount),
				)
			}
			delay = w.cfg.CheckInterval

			available := collection.IsActive() && collection.Character(target.CharacterID).IsAvailable()
			if available {
				w.metrics.IncPoll("available")
			} else {
				w.metrics.IncPoll("unavailable")
			}
			if available && !wasAvailable {
				w.metrics.IncAvailabilityEvent()
				character := collection.Character(target.CharacterID)
				slog.Info("character became available",
					slog.Int("collection", collection.ID),
					slog.Int("character", character.ID),
					slog.String("name", character.Name),
					slog.Int("stock", character.Left),
				)
				// Fired as its own task so a long purchase session
				// does not stall the poll cadence.
				go onAvailable(collection, target.CharacterID)
			}
			wasAvailable = available
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
