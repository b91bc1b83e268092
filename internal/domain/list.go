package domain

import "strings"

// Portuguese user-facing messages returned by transition guards. The
// frontend shows them verbatim.
const (
	MsgFinalizeGuard  = "Para finalizar, todos os itens devem ter um valor definido e você deve informar o saldo disponível."
	MsgDraftGuard     = "Adicione itens à lista antes de salvá-la para depois."
	MsgResumeConfirm  = "Sua lista atual não está vazia. Retomar esta compra substituirá os itens atuais. Deseja continuar?"
	DefaultListName   = "Minha Lista"
	DefaultRecordName = "Compra"
)

// ListSnapshot is the complete, immutable state of a user's shopping
// workspace: the current list, its balance, and the purchase history.
// Transitions never mutate the receiver; they return a fresh snapshot
// with Seq bumped, so stale writes from an older snapshot can be
// detected and dropped.
type ListSnapshot struct {
	ListID  string           `json:"listId"`
	Items   []ShoppingItem   `json:"items"`
	Balance float64          `json:"balance"`
	History []PurchaseRecord `json:"history"`
	Seq     uint64           `json:"seq"`
}

// NewSnapshot returns an empty snapshot bound to the given current list.
func NewSnapshot(listID string) *ListSnapshot {
	return &ListSnapshot{
		ListID:  listID,
		Items:   []ShoppingItem{},
		History: []PurchaseRecord{},
	}
}

// clone returns a deep copy with Seq incremented. All transitions go
// through here so a returned snapshot never aliases the old slices.
func (s *ListSnapshot) clone() *ListSnapshot {
	items := make([]ShoppingItem, len(s.Items))
	copy(items, s.Items)
	history := make([]PurchaseRecord, len(s.History))
	copy(history, s.History)
	return &ListSnapshot{
		ListID:  s.ListID,
		Items:   items,
		Balance: s.Balance,
		History: history,
		Seq:     s.Seq + 1,
	}
}

// ============================================================
// Derived values
// ============================================================

// TotalExpense is the sum of quantity × unit price over the current items.
func (s *ListSnapshot) TotalExpense() float64 {
	var total float64
	for _, it := range s.Items {
		total += it.Subtotal()
	}
	return total
}

// RemainingBalance is the balance minus the total expense. It may be
// negative; the list is never blocked from going over budget.
func (s *ListSnapshot) RemainingBalance() float64 {
	return s.Balance - s.TotalExpense()
}

// IsOverBudget reports whether spending exceeds the declared balance.
func (s *ListSnapshot) IsOverBudget() bool {
	return s.RemainingBalance() < 0
}

// LifetimeSpend is the sum of the totals of every history record,
// pending drafts included.
func (s *ListSnapshot) LifetimeSpend() float64 {
	var total float64
	for _, rec := range s.History {
		total += rec.Total
	}
	return total
}

// ============================================================
// Item transitions
// ============================================================

// AddItem appends a new item with the given id to the end of the list.
func (s *ListSnapshot) AddItem(id string, in ItemInput) (*ListSnapshot, error) {
	if err := validateItem(in); err != nil {
		return nil, err
	}
	next := s.clone()
	next.Items = append(next.Items, ShoppingItem{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
	})
	return next, nil
}

// UpdateItem replaces the fields of the item with the given id, keeping
// its identity and position.
func (s *ListSnapshot) UpdateItem(id string, in ItemInput) (*ListSnapshot, error) {
	if err := validateItem(in); err != nil {
		return nil, err
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, &ErrNotFound{Resource: "item", ID: id}
	}
	next := s.clone()
	next.Items[idx].Name = strings.TrimSpace(in.Name)
	next.Items[idx].Quantity = in.Quantity
	next.Items[idx].UnitPrice = in.UnitPrice
	return next, nil
}

// RemoveItem deletes the item with the given id.
func (s *ListSnapshot) RemoveItem(id string) (*ListSnapshot, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, &ErrNotFound{Resource: "item", ID: id}
	}
	next := s.clone()
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	return next, nil
}

// SetBalance updates the declared available balance.
func (s *ListSnapshot) SetBalance(balance float64) (*ListSnapshot, error) {
	if balance < 0 {
		return nil, &ErrValidation{Field: "balance", Message: "deve ser maior ou igual a zero"}
	}
	next := s.clone()
	next.Balance = balance
	return next, nil
}

func (s *ListSnapshot) indexOf(id string) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func validateItem(in ItemInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ErrValidation{Field: "name", Message: "obrigatório"}
	}
	if in.Quantity < 1 {
		return &ErrValidation{Field: "quantity", Message: "deve ser pelo menos 1"}
	}
	if in.UnitPrice < 0 {
		return &ErrValidation{Field: "unitPrice", Message: "não pode ser negativo"}
	}
	return nil
}

// ============================================================
// Lifecycle transitions
// ============================================================

// Finalize concludes the current purchase: every item must have a price
// and the balance must be informed. The concluded record is stamped with
// the given name and prepended to the history; the current list resets
// to empty, with zero balance, under the given new list id.
func (s *ListSnapshot) Finalize(name, recordID, newListID, date string) (*ListSnapshot, error) {
	if !s.canFinalize() {
		return nil, &ErrPrecondition{Message: MsgFinalizeGuard}
	}
	next := s.clone()
	rec := PurchaseRecord{
		ID:            recordID,
		ListName:      recordName(name, date),
		Date:          date,
		Items:         next.Items,
		Total:         s.TotalExpense(),
		BalanceAtTime: s.Balance,
		Status:        StatusConcluded,
	}
	next.History = append([]PurchaseRecord{rec}, next.History...)
	next.Items = []ShoppingItem{}
	next.Balance = 0
	next.ListID = newListID
	return next, nil
}

func recordName(name, date string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return DefaultRecordName + " " + date
}

func (s *ListSnapshot) canFinalize() bool {
	if len(s.Items) == 0 || s.Balance <= 0 {
		return false
	}
	for _, it := range s.Items {
		if it.UnitPrice <= 0 {
			return false
		}
	}
	return true
}

// SaveDraft parks the current list in the history as a pending purchase.
// Items may be unpriced; the only guard is a non-empty list. The same
// replace mechanics as Finalize apply: fresh empty list, zero balance.
func (s *ListSnapshot) SaveDraft(name, recordID, newListID, date string) (*ListSnapshot, error) {
	if len(s.Items) == 0 {
		return nil, &ErrPrecondition{Message: MsgDraftGuard}
	}
	next := s.clone()
	rec := PurchaseRecord{
		ID:            recordID,
		ListName:      recordName(name, date),
		Date:          date,
		Items:         next.Items,
		Total:         s.TotalExpense(),
		BalanceAtTime: s.Balance,
		Status:        StatusPending,
	}
	next.History = append([]PurchaseRecord{rec}, next.History...)
	next.Items = []ShoppingItem{}
	next.Balance = 0
	next.ListID = newListID
	return next, nil
}

// Resume loads a pending record back into the current list and removes
// it from the history, consuming it. If the current list still has items
// and confirmed is false, the operation refuses so the caller can ask
// the user before discarding work. Concluded records cannot be resumed.
func (s *ListSnapshot) Resume(recordID string, confirmed bool) (*ListSnapshot, error) {
	idx := -1
	for i, rec := range s.History {
		if rec.ID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &ErrNotFound{Resource: "purchase record", ID: recordID}
	}
	rec := s.History[idx]
	if rec.Status != StatusPending {
		return nil, &ErrPrecondition{Message: "Apenas compras pendentes podem ser retomadas."}
	}
	if len(s.Items) > 0 && !confirmed {
		return nil, &ErrConfirmationRequired{Message: MsgResumeConfirm}
	}
	next := s.clone()
	items := make([]ShoppingItem, len(rec.Items))
	copy(items, rec.Items)
	next.Items = items
	next.Balance = rec.BalanceAtTime
	next.History = append(next.History[:idx], next.History[idx+1:]...)
	return next, nil
}

// DeleteRecord removes exactly one record from the history.
func (s *ListSnapshot) DeleteRecord(recordID string) (*ListSnapshot, error) {
	for i, rec := range s.History {
		if rec.ID == recordID {
			next := s.clone()
			next.History = append(next.History[:i], next.History[i+1:]...)
			return next, nil
		}
	}
	return nil, &ErrNotFound{Resource: "purchase record", ID: recordID}
}

// FindRecord returns the history record with the given id.
func (s *ListSnapshot) FindRecord(recordID string) (PurchaseRecord, error) {
	for _, rec := range s.History {
		if rec.ID == recordID {
			return rec, nil
		}
	}
	return PurchaseRecord{}, &ErrNotFound{Resource: "purchase record", ID: recordID}
}
