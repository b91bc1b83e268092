package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/supabase"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler, cfg resilience.Config) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cb := resilience.NewCircuitBreaker("test")
	return supabase.NewClient(srv.Client(), srv.URL, "anon-key", "service-key", cb, cfg, zap.NewNop())
}

var testCfg = resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 10}

func TestListsByUserOrdersEmbeddedItems(t *testing.T) {
	var query url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/shopping_lists" {
			http.NotFound(w, r)
			return
		}
		query = r.URL.Query()
		fmt.Fprint(w, `[{"id":"l1","user_id":"u1","list_name":"Minha Lista","status":"current","shopping_items":[`+
			`{"id":"a","list_id":"l1","name":"Arroz","quantity":1,"unit_price":5,"position":0},`+
			`{"id":"b","list_id":"l1","name":"Feijão","quantity":2,"unit_price":8,"position":1}]}]`)
	})
	client := newTestClient(t, handler, testCfg)

	lists, err := client.ListsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListsByUser: %v", err)
	}

	if got := query.Get("shopping_items.order"); got != "position.asc" {
		t.Errorf("expected embedded items ordered by position, got '%s'", got)
	}
	if got := query.Get("order"); got != "created_at.desc" {
		t.Errorf("expected lists ordered newest first, got '%s'", got)
	}
	if len(lists) != 1 || len(lists[0].Items) != 2 {
		t.Fatalf("unexpected result: %+v", lists)
	}
	if lists[0].Items[0].ID != "a" || lists[0].Items[1].ID != "b" {
		t.Errorf("item order lost in decode: %+v", lists[0].Items)
	}
}

func TestInsertItemsCarriesPosition(t *testing.T) {
	var rows []map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/shopping_items" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "[]")
	})
	client := newTestClient(t, handler, testCfg)

	items := []domain.ShoppingItem{
		{ID: "a", Name: "Arroz", Quantity: 1, UnitPrice: 5},
		{ID: "b", Name: "Feijão", Quantity: 2, UnitPrice: 8},
	}
	if err := client.InsertItems(context.Background(), "l1", items); err != nil {
		t.Fatalf("InsertItems: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["position"] != float64(0) || rows[1]["position"] != float64(1) {
		t.Errorf("rows must carry their slice index as position: %+v", rows)
	}
}

func TestGetProfileMissSkipsRetryAndBreaker(t *testing.T) {
	var hits int32
	var seeded atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/profiles" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		if seeded.Load() {
			fmt.Fprint(w, `[{"id":"u1","name":"Ana","email":"ana@example.com","theme":"light"}]`)
			return
		}
		fmt.Fprint(w, "[]")
	})
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxConcurrency: 10}
	client := newTestClient(t, handler, cfg)

	_, err := client.GetProfile(context.Background(), "u1")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected a single request for a missing row, got %d", got)
	}

	// The miss must not have counted against the breaker.
	seeded.Store(true)
	profile, err := client.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile after seed: %v", err)
	}
	if profile.Name != "Ana" {
		t.Errorf("expected profile 'Ana', got %+v", profile)
	}
}

func TestClientBulkheadLimitsConcurrency(t *testing.T) {
	var inflight, peak int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `[{"id":"u1","name":"Ana","email":"ana@example.com","theme":"light"}]`)
	})
	cfg := resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	client := newTestClient(t, handler, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.GetProfile(context.Background(), "u1"); err != nil {
				t.Errorf("GetProfile: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Errorf("expected at most 1 request in flight, got %d", got)
	}
}
