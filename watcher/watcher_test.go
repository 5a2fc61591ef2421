package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stickerhunter/config"
	"stickerhunter/metrics"
	"stickerhunter/models"
)

type pollResponse struct {
	collection *models.Collection
	err        error
}

// scriptedShop serves one scripted response per poll; the last response
// repeats once the script is exhausted.
type scriptedShop struct {
	mu        sync.Mutex
	responses []pollResponse
	calls     int
}

func (s *scriptedShop) GetCollection(ctx context.Context, collectionID int) (*models.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return r.collection, r.err
}

func (s *scriptedShop) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func snapshot(status string, left int) *models.Collection {
	return &models.Collection{
		ID:     15,
		Name:   "Test Drop",
		Status: status,
		Characters: []models.Character{
			{ID: 7, Name: "Capy", Left: left, Price: decimal.RequireFromString("2.0")},
		},
	}
}

func watcherConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CheckInterval = 2 * time.Millisecond
	cfg.NotFoundRetryDelay = 2 * time.Millisecond
	return cfg
}

var target = models.Target{CollectionID: 15, CharacterID: 7}

type event struct {
	collection  *models.Collection
	characterID int
}

func watchAndCollect(t *testing.T, shop *scriptedShop) (*CollectionWatcher, chan event) {
	t.Helper()
	w := New(shop, watcherConfig(), metrics.New())
	events := make(chan event, 16)
	err := w.Watch(context.Background(), target, func(col *models.Collection, characterID int) {
		events <- event{collection: col, characterID: characterID}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	t.Cleanup(w.StopAll)
	return w, events
}

func waitEvent(t *testing.T, events chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for availability callback")
		return event{}
	}
}

func assertNoEvent(t *testing.T, events chan event, within time.Duration) {
	t.Helper()
	select {
	case <-events:
		t.Fatalf("unexpected extra availability callback")
	case <-time.After(within):
	}
}

func TestWatcherFiresOnceAfterTransition(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{
		{collection: nil}, // absent
		{collection: nil},
		{collection: nil},
		{collection: snapshot("inactive", 0)},
		{collection: snapshot("active", 50)}, // stays available afterwards
	}}
	_, events := watchAndCollect(t, shop)

	ev := waitEvent(t, events)
	if ev.characterID != 7 {
		t.Fatalf("characterID = %d, want 7", ev.characterID)
	}
	if ev.collection == nil || ev.collection.Name != "Test Drop" {
		t.Fatalf("callback should carry the resolved snapshot, got %+v", ev.collection)
	}
	if got := shop.callCount(); got < 5 {
		t.Fatalf("polls = %d, want at least 5 before firing", got)
	}

	// Still available on every later poll: no new transition, no refire.
	assertNoEvent(t, events, 50*time.Millisecond)
}

func TestWatcherSurvivesPollErrors(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{
		{err: errors.New("connection refused")},
		{err: errors.New("timeout")},
		{err: errors.New("connection refused")},
		{collection: snapshot("active", 10)},
	}}
	_, events := watchAndCollect(t, shop)

	waitEvent(t, events)
	if got := shop.callCount(); got < 4 {
		t.Fatalf("polls = %d, want at least 4", got)
	}
}

func TestWatcherRefiresOnNextAvailabilityWindow(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{
		{collection: snapshot("active", 10)},
		{collection: snapshot("active", 0)}, // sold out: window closes
		{collection: snapshot("active", 25)},
	}}
	_, events := watchAndCollect(t, shop)

	waitEvent(t, events)
	ev := waitEvent(t, events)
	if got := ev.collection.Character(7).Left; got != 25 {
		t.Fatalf("second event stock = %d, want 25", got)
	}
	assertNoEvent(t, events, 50*time.Millisecond)
}

func TestWatchSameTargetTwiceFails(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{{collection: nil}}}
	w, _ := watchAndCollect(t, shop)

	err := w.Watch(context.Background(), target, func(*models.Collection, int) {})
	if err == nil {
		t.Fatalf("watching the same target twice should fail")
	}
}

func TestStopWatchingIsIdempotent(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{{collection: nil}}}
	w, _ := watchAndCollect(t, shop)

	w.StopWatching(target)
	w.StopWatching(target) // no-op

	time.Sleep(10 * time.Millisecond)
	before := shop.callCount()
	time.Sleep(20 * time.Millisecond)
	if after := shop.callCount(); after != before {
		t.Fatalf("polling continued after stop: %d -> %d", before, after)
	}

	// The slot is free again.
	if err := w.Watch(context.Background(), target, func(*models.Collection, int) {}); err != nil {
		t.Fatalf("rewatch after stop: %v", err)
	}
}

func TestStopAllDrainsEveryTarget(t *testing.T) {
	shop := &scriptedShop{responses: []pollResponse{{collection: nil}}}
	w := New(shop, watcherConfig(), metrics.New())

	other := models.Target{CollectionID: 16, CharacterID: 1}
	for _, tg := range []models.Target{target, other} {
		if err := w.Watch(context.Background(), tg, func(*models.Collection, int) {}); err != nil {
			t.Fatalf("watch %s: %v", tg, err)
		}
	}

	done := make(chan struct{})
	go func() {
		w.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("StopAll did not drain poll loops")
	}
}
