// Package service provides the business logic layer (use cases).
// ListService owns the shopping-list lifecycle: item edits, balance,
// finalize/draft/resume and the purchase history.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var listTracer = otel.Tracer("service/list")

// ListView is the API-facing projection of a snapshot: the raw values
// plus the derived totals the frontend renders.
type ListView struct {
	ListID             string                  `json:"listId"`
	Items              []domain.ShoppingItem   `json:"items"`
	Balance            float64                 `json:"balance"`
	TotalExpense       float64                 `json:"totalExpense"`
	RemainingBalance   float64                 `json:"remainingBalance"`
	IsOverBudget       bool                    `json:"isOverBudget"`
	LifetimeSpend      float64                 `json:"lifetimeSpend"`
	TotalFormatted     string                  `json:"totalFormatted"`
	RemainingFormatted string                  `json:"remainingFormatted"`
	SyncPending        bool                    `json:"syncPending"`
	History            []domain.PurchaseRecord `json:"history"`
}

// ListService orchestrates list operations against the remote store,
// keeping a per-user snapshot in the cache. Item edits are answered from
// the snapshot and pushed remotely by the ItemSyncer; lifecycle
// transitions write through synchronously.
type ListService struct {
	store   port.ListStore
	cache   port.Cache[*domain.ListSnapshot]
	syncer  *ItemSyncer
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewListService creates a new list service.
func NewListService(store port.ListStore, cache port.Cache[*domain.ListSnapshot], syncer *ItemSyncer, metrics *observability.Metrics, logger *zap.Logger) *ListService {
	return &ListService{
		store:   store,
		cache:   cache,
		syncer:  syncer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// userLock serializes transitions per user so two concurrent edits can
// never fork the snapshot.
func (s *ListService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// snapshot returns the user's working state, rebuilding it from the
// remote store on a cache miss. A user with no current list gets one
// created remotely before the snapshot is returned.
func (s *ListService) snapshot(ctx context.Context, userID string) (*domain.ListSnapshot, error) {
	if snap, ok := s.cache.Get(userID); ok {
		s.metrics.IncrCacheHit("snapshot")
		return snap, nil
	}
	s.metrics.IncrCacheMiss("snapshot")

	lists, err := s.store.ListsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var current *domain.ListRecord
	history := make([]domain.PurchaseRecord, 0, len(lists))
	for i := range lists {
		rec := lists[i]
		if rec.Status == domain.StatusCurrent {
			if current == nil {
				current = &lists[i]
			}
			continue
		}
		history = append(history, rec.Record())
	}

	if current == nil {
		created, err := s.store.CreateList(ctx, &domain.ListRecord{
			ID:       uuid.New().String(),
			UserID:   userID,
			ListName: domain.DefaultListName,
			Date:     domain.FormatDate(s.now()),
			Status:   domain.StatusCurrent,
		})
		if err != nil {
			return nil, err
		}
		current = created
		s.logger.Info("created fresh current list",
			zap.String("user_id", userID),
			zap.String("list_id", created.ID),
		)
	}

	snap := domain.NewSnapshot(current.ID)
	snap.Balance = current.BalanceAtTime
	snap.History = history
	for _, it := range current.Items {
		snap.Items = append(snap.Items, it.Item())
	}

	s.cache.Set(userID, snap)
	return snap, nil
}

// Warm loads (or builds) the user's snapshot. Used right after login so
// the first page render hits the cache.
func (s *ListService) Warm(ctx context.Context, userID string) error {
	ctx, span := listTracer.Start(ctx, "ListService.Warm")
	defer span.End()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	_, err := s.snapshot(ctx, userID)
	return err
}

func (s *ListService) view(snap *domain.ListSnapshot, userID string) *ListView {
	return &ListView{
		ListID:             snap.ListID,
		Items:              snap.Items,
		Balance:            snap.Balance,
		TotalExpense:       snap.TotalExpense(),
		RemainingBalance:   snap.RemainingBalance(),
		IsOverBudget:       snap.IsOverBudget(),
		LifetimeSpend:      snap.LifetimeSpend(),
		TotalFormatted:     domain.FormatCurrency(snap.TotalExpense()),
		RemainingFormatted: domain.FormatCurrency(snap.RemainingBalance()),
		SyncPending:        s.syncer.Pending(userID),
		History:            snap.History,
	}
}

// ============================================================
// Reads
// ============================================================

// Get returns the user's current list with derived totals and history.
func (s *ListService) Get(ctx context.Context, userID string) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(snap, userID), nil
}

// History returns the purchase history, most recent first.
func (s *ListService) History(ctx context.Context, userID string) ([]domain.PurchaseRecord, error) {
	ctx, span := listTracer.Start(ctx, "ListService.History")
	defer span.End()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap.History, nil
}

// HistoryRecord returns one purchase record.
func (s *ListService) HistoryRecord(ctx context.Context, userID, recordID string) (*domain.PurchaseRecord, error) {
	ctx, span := listTracer.Start(ctx, "ListService.HistoryRecord")
	defer span.End()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := snap.FindRecord(recordID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ============================================================
// Item edits (fire-and-forget remote write via the syncer)
// ============================================================

// apply runs a transition under the user lock, stores the new snapshot
// and schedules the background item sync.
func (s *ListService) apply(ctx context.Context, userID string, fn func(*domain.ListSnapshot) (*domain.ListSnapshot, error)) (*ListView, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, err := fn(snap)
	if err != nil {
		return nil, err
	}
	s.cache.Set(userID, next)
	s.syncer.Enqueue(userID, next.ListID, next.Items, next.Seq)
	return s.view(next, userID), nil
}

// AddItem appends an item to the current list.
func (s *ListService) AddItem(ctx context.Context, userID string, in domain.ItemInput) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.AddItem")
	defer span.End()

	return s.apply(ctx, userID, func(snap *domain.ListSnapshot) (*domain.ListSnapshot, error) {
		return snap.AddItem(uuid.New().String(), in)
	})
}

// UpdateItem edits an item in place.
func (s *ListService) UpdateItem(ctx context.Context, userID, itemID string, in domain.ItemInput) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.UpdateItem")
	defer span.End()

	return s.apply(ctx, userID, func(snap *domain.ListSnapshot) (*domain.ListSnapshot, error) {
		return snap.UpdateItem(itemID, in)
	})
}

// RemoveItem deletes an item from the current list.
func (s *ListService) RemoveItem(ctx context.Context, userID, itemID string) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.RemoveItem")
	defer span.End()

	return s.apply(ctx, userID, func(snap *domain.ListSnapshot) (*domain.ListSnapshot, error) {
		return snap.RemoveItem(itemID)
	})
}

// SetBalance updates the declared balance. The remote patch is
// synchronous but non-fatal: a failure keeps the local value and flags
// the sync as pending.
func (s *ListService) SetBalance(ctx context.Context, userID string, balance float64) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.SetBalance")
	defer span.End()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, err := snap.SetBalance(balance)
	if err != nil {
		return nil, err
	}
	s.cache.Set(userID, next)

	if err := s.store.UpdateListBalance(ctx, next.ListID, balance); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		s.syncer.setDirty(userID, true)
		s.logger.Warn("balance patch failed, keeping local value",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return s.view(next, userID), nil
}

// ============================================================
// Lifecycle (synchronous remote writes)
// ============================================================

// Finalize concludes the current purchase under the given name and
// starts a fresh list.
func (s *ListService) Finalize(ctx context.Context, userID, listName string) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Finalize")
	defer span.End()

	return s.archive(ctx, userID, listName, domain.StatusConcluded)
}

// SaveDraft parks the current list as a pending purchase.
func (s *ListService) SaveDraft(ctx context.Context, userID, listName string) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.SaveDraft")
	defer span.End()

	return s.archive(ctx, userID, listName, domain.StatusPending)
}

func (s *ListService) archive(ctx context.Context, userID, listName string, status domain.ListStatus) (*ListView, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	date := domain.FormatDate(s.now())
	oldListID := snap.ListID
	newListID := uuid.New().String()

	var next *domain.ListSnapshot
	if status == domain.StatusConcluded {
		next, err = snap.Finalize(listName, oldListID, newListID, date)
	} else {
		next, err = snap.SaveDraft(listName, oldListID, newListID, date)
	}
	if err != nil {
		return nil, err
	}
	rec := next.History[0]

	// Flush the items through the sync worker before freezing the
	// record, so an in-flight retry for an older state cannot land
	// after the frozen set.
	if err := s.syncer.Flush(ctx, userID, oldListID, rec.Items, next.Seq); err != nil {
		s.metrics.IncrExternalError("supabase/items")
		return nil, err
	}
	if err := s.store.UpdateListMeta(ctx, oldListID, map[string]any{
		"status":          rec.Status,
		"list_name":       rec.ListName,
		"date":            rec.Date,
		"total":           rec.Total,
		"balance_at_time": rec.BalanceAtTime,
	}); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		return nil, err
	}
	if _, err := s.store.CreateList(ctx, &domain.ListRecord{
		ID:            newListID,
		UserID:        userID,
		ListName:      domain.DefaultListName,
		Date:          date,
		BalanceAtTime: next.Balance,
		Status:        domain.StatusCurrent,
	}); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		return nil, err
	}

	s.cache.Set(userID, next)
	s.logger.Info("list archived",
		zap.String("user_id", userID),
		zap.String("record_id", rec.ID),
		zap.String("status", string(rec.Status)),
	)
	return s.view(next, userID), nil
}

// Resume loads a pending purchase back into the current list, consuming
// the history record. confirmed acknowledges that current items will be
// replaced.
func (s *ListService) Resume(ctx context.Context, userID, recordID string, confirmed bool) (*ListView, error) {
	ctx, span := listTracer.Start(ctx, "ListService.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("record.id", recordID))

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, err := snap.Resume(recordID, confirmed)
	if err != nil {
		return nil, err
	}

	if err := s.syncer.Flush(ctx, userID, next.ListID, next.Items, next.Seq); err != nil {
		s.metrics.IncrExternalError("supabase/items")
		return nil, err
	}
	if err := s.store.UpdateListBalance(ctx, next.ListID, next.Balance); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		return nil, err
	}
	if err := s.store.DeleteList(ctx, recordID); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		return nil, err
	}

	s.cache.Set(userID, next)
	return s.view(next, userID), nil
}

// DeleteRecord removes a purchase record from the history.
func (s *ListService) DeleteRecord(ctx context.Context, userID, recordID string) error {
	ctx, span := listTracer.Start(ctx, "ListService.DeleteRecord")
	defer span.End()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	next, err := snap.DeleteRecord(recordID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteList(ctx, recordID); err != nil {
		s.metrics.IncrExternalError("supabase/lists")
		return err
	}
	s.cache.Set(userID, next)
	return nil
}
