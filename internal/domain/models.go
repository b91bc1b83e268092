// Package domain defines the core business entities for Lista Rápida.
// These models are independent of external services and carry no I/O;
// the lifecycle transitions in list.go operate on them as pure functions.
package domain

// ============================================================
// Shopping items
// ============================================================

// ShoppingItem is one line of a shopping list. An item belongs to exactly
// one list: the current list, or a frozen history record.
type ShoppingItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Subtotal returns quantity × unit price for this item.
func (i ShoppingItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// ItemInput is the normalized payload for adding or editing an item.
// Identity is never supplied by the caller; the service assigns it.
type ItemInput struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// ============================================================
// List status
// ============================================================

// ListStatus is the lifecycle status of a shopping list. A single closed
// enum used uniformly for the current list and for history records, with
// the wire values the remote schema stores.
type ListStatus string

const (
	StatusCurrent   ListStatus = "current"
	StatusPending   ListStatus = "pendente"
	StatusConcluded ListStatus = "concluída"
)

// Valid reports whether s is one of the three known statuses.
func (s ListStatus) Valid() bool {
	switch s {
	case StatusCurrent, StatusPending, StatusConcluded:
		return true
	}
	return false
}

// ============================================================
// History
// ============================================================

// PurchaseRecord is a finalized or parked list in the history. Immutable
// once created, except for deletion and the resume transition that
// consumes a pending record. Total is snapshotted at save time and never
// recomputed from the items.
type PurchaseRecord struct {
	ID            string         `json:"id"`
	ListName      string         `json:"listName"`
	Date          string         `json:"date"`
	Items         []ShoppingItem `json:"items"`
	Total         float64        `json:"total"`
	BalanceAtTime float64        `json:"balanceAtTime"`
	Status        ListStatus     `json:"status"`
}

// ============================================================
// Profile / auth
// ============================================================

// UserProfile is the editable profile of an authenticated user. Email is
// mirrored from the identity record; changing the sign-in email is a
// separate re-verification flow outside this service.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Theme string `json:"theme"`
}

// Session is the authenticated session issued by the identity provider.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Name         string `json:"name"`
}

// SyncMetrics is the aggregate view of the background item sync exposed
// by GET /v1/metrics/sync.
type SyncMetrics struct {
	TotalSyncs   int64   `json:"totalSyncs"`
	Retried      int64   `json:"retried"`
	Failed       int64   `json:"failed"`
	FailureRate  float64 `json:"failureRate"`
	CacheHitRate float64 `json:"cacheHitRate"`
	Period       string  `json:"period"`
}

// ============================================================
// Remote row shapes (shopping_lists / shopping_items tables)
// ============================================================

// ListRecord mirrors one row of the remote shopping_lists table, with its
// nested items when fetched through the embedded select.
type ListRecord struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	ListName      string       `json:"list_name"`
	Date          string       `json:"date"`
	Total         float64      `json:"total"`
	BalanceAtTime float64      `json:"balance_at_time"`
	Status        ListStatus   `json:"status"`
	Items         []ItemRecord `json:"shopping_items"`
}

// ItemRecord mirrors one row of the remote shopping_items table.
type ItemRecord struct {
	ID        string  `json:"id"`
	ListID    string  `json:"list_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Position  int     `json:"position"`
}

// Item converts the remote row shape to the domain shape.
func (r ItemRecord) Item() ShoppingItem {
	return ShoppingItem{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
	}
}

// Record converts a remote list row (with nested items) into a history
// PurchaseRecord.
func (r ListRecord) Record() PurchaseRecord {
	items := make([]ShoppingItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, it.Item())
	}
	return PurchaseRecord{
		ID:            r.ID,
		ListName:      r.ListName,
		Date:          r.Date,
		Items:         items,
		Total:         r.Total,
		BalanceAtTime: r.BalanceAtTime,
		Status:        r.Status,
	}
}
