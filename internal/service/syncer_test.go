package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"
	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

// syncStore records every ReplaceItems call. An optional gate channel
// blocks the worker so tests can pile jobs up behind it, and failures
// makes the first N calls return an error.
type syncStore struct {
	mu       sync.Mutex
	replaces [][]domain.ShoppingItem
	calls    chan struct{}
	gate     chan struct{}
	failures int
}

func newSyncStore() *syncStore {
	return &syncStore{calls: make(chan struct{}, 64)}
}

func (m *syncStore) ReplaceItems(_ context.Context, _ string, items []domain.ShoppingItem) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	fail := m.failures > 0
	if fail {
		m.failures--
	} else {
		m.replaces = append(m.replaces, items)
	}
	m.mu.Unlock()
	m.calls <- struct{}{}
	if fail {
		return errors.New("upstream unavailable")
	}
	return nil
}

func (m *syncStore) replaced() [][]domain.ShoppingItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]domain.ShoppingItem, len(m.replaces))
	copy(out, m.replaces)
	return out
}

func (m *syncStore) ListsByUser(_ context.Context, _ string) ([]domain.ListRecord, error) {
	return nil, nil
}
func (m *syncStore) CreateList(_ context.Context, rec *domain.ListRecord) (*domain.ListRecord, error) {
	return rec, nil
}
func (m *syncStore) UpdateListBalance(_ context.Context, _ string, _ float64) error { return nil }
func (m *syncStore) UpdateListMeta(_ context.Context, _ string, _ map[string]any) error {
	return nil
}
func (m *syncStore) DeleteList(_ context.Context, _ string) error { return nil }
func (m *syncStore) InsertItems(_ context.Context, _ string, _ []domain.ShoppingItem) error {
	return nil
}

func waitCalls(t *testing.T, store *syncStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-store.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for remote write %d of %d", i+1, n)
		}
	}
}

var syncCfg = resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}

// --- Tests ---

func TestSyncerWritesItems(t *testing.T) {
	store := newSyncStore()
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, observability.NewMetrics(), zap.NewNop())
	defer syncer.Close()

	items := []domain.ShoppingItem{{ID: "i1", Name: "Arroz", Quantity: 1, UnitPrice: 5}}
	syncer.Enqueue("user-1", "list-1", items, 1)

	waitCalls(t, store, 1)
	got := store.replaced()
	if len(got) != 1 {
		t.Fatalf("expected 1 remote write, got %d", len(got))
	}
	if got[0][0].Name != "Arroz" {
		t.Errorf("expected item 'Arroz', got '%s'", got[0][0].Name)
	}
	if syncer.Pending("user-1") {
		t.Error("expected no pending sync after success")
	}
}

func TestSyncerCoalescesRapidEdits(t *testing.T) {
	store := newSyncStore()
	store.gate = make(chan struct{})
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, observability.NewMetrics(), zap.NewNop())
	defer syncer.Close()

	// First job reaches the worker and blocks on the gate; the next
	// three fight over the one-slot mailbox, so only the newest waits.
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "v1"}}, 1)
	time.Sleep(50 * time.Millisecond)
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "v2"}}, 2)
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "v3"}}, 3)
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "v4"}}, 4)

	close(store.gate)
	waitCalls(t, store, 2)

	got := store.replaced()
	if len(got) != 2 {
		t.Fatalf("expected 2 remote writes (first + coalesced), got %d", len(got))
	}
	if got[1][0].Name != "v4" {
		t.Errorf("expected the newest state 'v4' to win, got '%s'", got[1][0].Name)
	}
}

func TestSyncerDropsStaleSequence(t *testing.T) {
	store := newSyncStore()
	metrics := observability.NewMetrics()
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, metrics, zap.NewNop())

	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "new"}}, 5)
	waitCalls(t, store, 1)

	// An older snapshot arriving late must never overwrite.
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "old"}}, 3)
	syncer.Close()

	got := store.replaced()
	if len(got) != 1 {
		t.Fatalf("expected stale job to be dropped, got %d writes", len(got))
	}
	snap := metrics.GetSyncSnapshot()
	if snap.TotalSyncs != 1 {
		t.Errorf("expected 1 successful sync, got %d", snap.TotalSyncs)
	}
}

func TestSyncerMarksDirtyOnFailure(t *testing.T) {
	store := newSyncStore()
	store.failures = 10 // exhaust all retry attempts
	metrics := observability.NewMetrics()
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, metrics, zap.NewNop())
	defer syncer.Close()

	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "Leite"}}, 1)
	waitCalls(t, store, syncCfg.MaxRetries+1)

	if !syncer.Pending("user-1") {
		t.Fatal("expected pending sync after remote failure")
	}
	if metrics.GetSyncSnapshot().Failed != 1 {
		t.Errorf("expected 1 failed sync, got %d", metrics.GetSyncSnapshot().Failed)
	}

	// A later successful write clears the flag.
	store.mu.Lock()
	store.failures = 0
	store.mu.Unlock()
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "Leite"}}, 2)
	waitCalls(t, store, 1)
	if syncer.Pending("user-1") {
		t.Error("expected pending flag cleared after successful sync")
	}
}

func TestSyncerRetriesTransientFailure(t *testing.T) {
	store := newSyncStore()
	store.failures = 1
	metrics := observability.NewMetrics()
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, metrics, zap.NewNop())
	defer syncer.Close()

	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "Pão"}}, 1)
	waitCalls(t, store, 2)

	snap := metrics.GetSyncSnapshot()
	if snap.TotalSyncs != 1 {
		t.Errorf("expected 1 successful sync, got %d", snap.TotalSyncs)
	}
	if snap.Retried != 1 {
		t.Errorf("expected 1 retried sync, got %d", snap.Retried)
	}
	if syncer.Pending("user-1") {
		t.Error("expected no pending sync after retry succeeded")
	}
}

func TestFlushWaitsOutInFlightWrite(t *testing.T) {
	store := newSyncStore()
	store.gate = make(chan struct{})
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, observability.NewMetrics(), zap.NewNop())
	defer syncer.Close()

	// Background job reaches the worker and blocks inside the write.
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "v1"}}, 1)
	time.Sleep(50 * time.Millisecond)

	frozen := []domain.ShoppingItem{{ID: "i1", Name: "v2", Quantity: 2}}
	flushed := make(chan error, 1)
	go func() {
		flushed <- syncer.Flush(context.Background(), "user-1", "list-1", frozen, 2)
	}()

	select {
	case err := <-flushed:
		t.Fatalf("flush finished before the in-flight write: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	if err := <-flushed; err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitCalls(t, store, 2)

	got := store.replaced()
	if len(got) != 2 {
		t.Fatalf("expected 2 remote writes, got %d", len(got))
	}
	if last := got[1]; len(last) != 1 || last[0].Name != "v2" {
		t.Errorf("expected the flushed items to land last, got %+v", last)
	}
}

func TestFlushSupersedesStaleJob(t *testing.T) {
	store := newSyncStore()
	metrics := observability.NewMetrics()
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, metrics, zap.NewNop())

	frozen := []domain.ShoppingItem{{ID: "i1", Name: "frozen", Quantity: 1}}
	if err := syncer.Flush(context.Background(), "user-1", "list-1", frozen, 5); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitCalls(t, store, 1)

	// An older edit arriving after the flush must be dropped.
	syncer.Enqueue("user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "stale"}}, 3)
	syncer.Close()

	got := store.replaced()
	if len(got) != 1 || got[0][0].Name != "frozen" {
		t.Fatalf("expected only the flushed write, got %+v", got)
	}
	snap := metrics.GetSyncSnapshot()
	if snap.TotalSyncs != 1 {
		t.Errorf("expected 1 counted sync, got %d", snap.TotalSyncs)
	}
}

func TestFlushFailureMarksDirty(t *testing.T) {
	store := newSyncStore()
	store.failures = 10
	syncer := service.NewItemSyncer(store, syncCfg, time.Second, observability.NewMetrics(), zap.NewNop())
	defer syncer.Close()

	err := syncer.Flush(context.Background(), "user-1", "list-1", []domain.ShoppingItem{{ID: "i1", Name: "x"}}, 1)
	if err == nil {
		t.Fatal("expected flush error")
	}
	if !syncer.Pending("user-1") {
		t.Error("expected pending sync flag after failed flush")
	}
}
