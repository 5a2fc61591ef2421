// Package bot wires the watcher and the purchase orchestrator together and
// enforces the single-session-in-flight rule.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"stickerhunter/models"
	"stickerhunter/wallet"
	"stickerhunter/watcher"
)

// SessionRunner executes one purchase session for a target.
type SessionRunner interface {
	RunSession(ctx context.Context, target models.Target) ([]models.PurchaseResult, error)
}

// TargetWatcher is the slice of the collection watcher the bot drives.
type TargetWatcher interface {
	Watch(ctx context.Context, target models.Target, onAvailable watcher.AvailableFunc) error
	StopWatching(target models.Target)
	StopAll()
}

// ShopAPI is the slice of the shop client the bot itself uses.
type ShopAPI interface {
	TestConnection(ctx context.Context) bool
	GetCollection(ctx context.Context, collectionID int) (*models.Collection, error)
}

// Bot owns one watcher and one orchestrator. At most one purchase session
// runs at any time regardless of how many availability callbacks fire.
type Bot struct {
	api          ShopAPI
	wallet       wallet.Wallet
	orchestrator SessionRunner
	watcher      TargetWatcher

	running            atomic.Bool
	purchaseInProgress atomic.Bool
	stopOnce           sync.Once
	stopCh             chan struct{}
}

// New assembles a bot from its collaborators.
func New(api ShopAPI, w wallet.Wallet, orchestrator SessionRunner, targetWatcher TargetWatcher) *Bot {
	return &Bot{
		api:          api,
		wallet:       w,
		orchestrator: orchestrator,
		watcher:      targetWatcher,
		stopCh:       make(chan struct{}),
	}
}

// Initialize checks shop connectivity and brings up the wallet.
func (b *Bot) Initialize(ctx context.Context) error {
	slog.Info("initializing sticker hunter bot")

	if !b.api.TestConnection(ctx) {
		return fmt.Errorf("failed to connect to shop API")
	}
	if err := b.wallet.Initialize(ctx); err != nil {
		return err
	}
	info, err := b.wallet.Info(ctx)
	if err != nil {
		return err
	}
	slog.Info("wallet ready",
		slog.String("address", info.Address),
		slog.String("balance_ton", info.Balance.StringFixed(2)),
	)
	slog.Info("bot initialized")
	return nil
}

// RunOnce executes a single purchase session immediately, without waiting
// for the watcher.
func (b *Bot) RunOnce(ctx context.Context, target models.Target) error {
	results, err := b.orchestrator.RunSession(ctx, target)
	if err != nil {
		return err
	}
	successful := countSuccessful(results)
	if successful == 0 {
		return fmt.Errorf("all %d purchase attempts failed", len(results))
	}
	slog.Info("purchase session successful", slog.Int("completed", successful))
	return nil
}

// Run starts watching the target and blocks until an external stop signal,
// or until a successful single-shot purchase. Always shuts the watcher and
// wallet down on the way out.
func (b *Bot) Run(ctx context.Context, target models.Target, continuous bool) error {
	b.running.Store(true)
	defer b.shutdown()

	if err := b.Initialize(ctx); err != nil {
		return err
	}

	slog.Info("checking collection", slog.Int("collection", target.CollectionID))
	collection, err := b.api.GetCollection(ctx, target.CollectionID)
	if err != nil || collection == nil {
		slog.Info("collection not found, this is normal for upcoming drops, waiting for it to appear",
			slog.Int("collection", target.CollectionID),
		)
	} else {
		slog.Info("found collection",
			slog.String("name", collection.Name),
			slog.String("status", collection.Status),
			slog.Int("total", collection.TotalCount),
		)
	}

	err = b.watcher.Watch(ctx, target, func(col *models.Collection, characterID int) {
		b.handleAvailability(ctx, models.Target{CollectionID: col.ID, CharacterID: characterID}, continuous)
	})
	if err != nil {
		return err
	}

	slog.Info("monitoring target",
		slog.Int("collection", target.CollectionID),
		slog.Int("character", target.CharacterID),
	)
	if continuous {
		slog.Info("continuous mode: will keep buying while balance and stock available")
	}

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case <-b.stopCh:
	}
	return nil
}

// handleAvailability runs one purchase session per availability event. A
// callback that arrives while a session is in flight is a no-op.
func (b *Bot) handleAvailability(ctx context.Context, target models.Target, continuous bool) {
	if !b.purchaseInProgress.CompareAndSwap(false, true) {
		slog.Info("purchase already in progress, skipping")
		return
	}
	defer b.purchaseInProgress.Store(false)

	slog.Info("target is available for purchase",
		slog.Int("collection", target.CollectionID),
		slog.Int("character", target.CharacterID),
	)

	results, err := b.orchestrator.RunSession(ctx, target)
	if err != nil {
		slog.Error("purchase session failed", slog.Any("error", err))
		return
	}

	successful := countSuccessful(results)
	if successful == 0 {
		slog.Error("all purchase attempts failed")
		return
	}
	slog.Info("completed purchases", slog.Int("successful", successful))

	if continuous {
		if info, err := b.wallet.Info(ctx); err == nil {
			slog.Info("continuous mode: will continue monitoring",
				slog.String("remaining_balance_ton", info.Balance.StringFixed(2)),
			)
		}
		return
	}

	slog.Info("single purchase mode: stopping monitoring")
	b.watcher.StopWatching(target)
	b.Stop()
}

// Stop clears the running flag and releases the wait loop. Safe to call
// from any goroutine, any number of times.
func (b *Bot) Stop() {
	b.running.Store(false)
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Running reports whether the top-level wait loop is active.
func (b *Bot) Running() bool {
	return b.running.Load()
}

func (b *Bot) shutdown() {
	slog.Info("shutting down bot")
	b.running.Store(false)
	b.watcher.StopAll()
	b.wallet.Close()
	slog.Info("bot shutdown complete")
}

func countSuccessful(results []models.PurchaseResult) int {
	n := 0
	for _, r := range results {
		if r.IsSuccessful() {
			n++
		}
	}
	return n
}
