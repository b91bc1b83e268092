package service

import (
	"context"
	"sync"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"
	"github.com/franciscofreire-cloud/lista-compras/internal/port"

	"go.uber.org/zap"
)

// syncJob is one pending item write for a list. Seq comes from the
// snapshot that produced the items, so an older job can never overwrite
// a newer one.
type syncJob struct {
	userID string
	listID string
	items  []domain.ShoppingItem
	seq    uint64
}

// mailbox is a one-slot queue: a newer job replaces the waiting one, so
// rapid edits coalesce into a single remote write. writeMu is held across
// every remote write for the list, by the worker and by Flush alike, so
// a synchronous flush can never interleave with an in-flight retry.
type mailbox struct {
	ch      chan syncJob
	writeMu sync.Mutex
	last    uint64 // highest seq applied, guarded by writeMu
}

// ItemSyncer pushes item changes to the remote store in the background.
// One worker goroutine per list keeps writes for a list strictly ordered;
// jobs carrying a stale sequence number are dropped. Failed writes mark
// the user dirty so the API can surface a pending-sync flag.
type ItemSyncer struct {
	store   port.ListStore
	cfg     resilience.Config
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	boxes map[string]*mailbox
	dirty map[string]bool
	wg    sync.WaitGroup
}

// NewItemSyncer creates the syncer. timeout bounds each remote write.
func NewItemSyncer(store port.ListStore, cfg resilience.Config, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *ItemSyncer {
	return &ItemSyncer{
		store:   store,
		cfg:     cfg,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		boxes:   make(map[string]*mailbox),
		dirty:   make(map[string]bool),
	}
}

func (y *ItemSyncer) box(listID string) *mailbox {
	y.mu.Lock()
	defer y.mu.Unlock()
	box, ok := y.boxes[listID]
	if !ok {
		box = &mailbox{ch: make(chan syncJob, 1)}
		y.boxes[listID] = box
		y.wg.Add(1)
		go y.worker(box)
	}
	return box
}

// Enqueue schedules a full item replace for the list. A job waiting in
// the mailbox is replaced, never queued behind.
func (y *ItemSyncer) Enqueue(userID, listID string, items []domain.ShoppingItem, seq uint64) {
	job := syncJob{userID: userID, listID: listID, items: items, seq: seq}
	box := y.box(listID)

	for {
		select {
		case box.ch <- job:
			return
		default:
			// Slot taken: evict the stale job and retry.
			select {
			case <-box.ch:
			default:
			}
		}
	}
}

// Pending reports whether the user has un-synced item changes.
func (y *ItemSyncer) Pending(userID string) bool {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.dirty[userID]
}

func (y *ItemSyncer) setDirty(userID string, v bool) {
	y.mu.Lock()
	defer y.mu.Unlock()
	if v {
		y.dirty[userID] = true
	} else {
		delete(y.dirty, userID)
	}
}

// Flush writes the items through the list's write lock, waiting out any
// in-flight background job first and marking its sequence as applied so
// a stale retry can never overwrite the flushed state. Used by lifecycle
// transitions that must see the items remotely before they proceed.
func (y *ItemSyncer) Flush(ctx context.Context, userID, listID string, items []domain.ShoppingItem, seq uint64) error {
	box := y.box(listID)

	box.writeMu.Lock()
	defer box.writeMu.Unlock()
	if seq > box.last {
		box.last = seq
	}

	err := resilience.RetryWithBackoff(ctx, y.cfg, func() error {
		return y.store.ReplaceItems(ctx, listID, items)
	})
	if err != nil {
		y.metrics.IncrSync("failed")
		y.setDirty(userID, true)
		return err
	}
	y.metrics.IncrSync("success")
	y.setDirty(userID, false)
	return nil
}

func (y *ItemSyncer) worker(box *mailbox) {
	defer y.wg.Done()
	for job := range box.ch {
		box.writeMu.Lock()
		if job.seq <= box.last {
			box.writeMu.Unlock()
			y.metrics.IncrSync("dropped")
			continue
		}
		box.last = job.seq

		ctx, cancel := context.WithTimeout(context.Background(), y.timeout)
		attempts := 0
		err := resilience.RetryWithBackoff(ctx, y.cfg, func() error {
			attempts++
			return y.store.ReplaceItems(ctx, job.listID, job.items)
		})
		cancel()
		box.writeMu.Unlock()

		if err != nil {
			y.metrics.IncrSync("failed")
			y.metrics.IncrExternalError("supabase/items")
			y.setDirty(job.userID, true)
			y.logger.Warn("item sync failed",
				zap.String("list_id", job.listID),
				zap.Uint64("seq", job.seq),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			continue
		}

		if attempts > 1 {
			y.metrics.IncrSync("retried")
		}
		y.metrics.IncrSync("success")
		y.setDirty(job.userID, false)
		y.logger.Debug("item sync ok",
			zap.String("list_id", job.listID),
			zap.Uint64("seq", job.seq),
			zap.Int("items", len(job.items)),
		)
	}
}

// Close stops accepting work and waits for in-flight writes.
func (y *ItemSyncer) Close() {
	y.mu.Lock()
	for _, box := range y.boxes {
		close(box.ch)
	}
	y.boxes = make(map[string]*mailbox)
	y.mu.Unlock()
	y.wg.Wait()
}
