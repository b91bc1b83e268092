package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Shopping lists (implements port.ListStore)
// ============================================================

// ListsByUser fetches every list of the user with its items embedded,
// newest first. Items come back ordered by their position column so a
// rebuilt snapshot keeps the order the user arranged. The current list
// and the history come back in one call.
func (c *Client) ListsByUser(ctx context.Context, userID string) ([]domain.ListRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListsByUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var lists []domain.ListRecord

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf(
				"shopping_lists?user_id=eq.%s&select=%s&order=created_at.desc&shopping_items.order=position.asc",
				userID,
				url.QueryEscape("*,shopping_items(*)"),
			)
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				lists = []domain.ListRecord{}
				return nil
			}

			var rows []domain.ListRecord
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode shopping_lists: %w", err)
			}
			lists = rows
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/lists", Err: err}
	}

	return lists, nil
}

// CreateList inserts a new shopping_lists row, with its items when the
// record carries any.
func (c *Client) CreateList(ctx context.Context, rec *domain.ListRecord) (*domain.ListRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateList")
	defer span.End()

	row := map[string]any{
		"id":              rec.ID,
		"user_id":         rec.UserID,
		"list_name":       rec.ListName,
		"date":            rec.Date,
		"total":           rec.Total,
		"balance_at_time": rec.BalanceAtTime,
		"status":          rec.Status,
	}

	body, err := c.doPost(ctx, "shopping_lists", row)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/lists", Err: err}
	}

	var results []domain.ListRecord
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode shopping_list: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from shopping_lists insert")
	}
	created := results[0]

	if len(rec.Items) > 0 {
		items := make([]domain.ShoppingItem, 0, len(rec.Items))
		for _, it := range rec.Items {
			items = append(items, it.Item())
		}
		if err := c.InsertItems(ctx, created.ID, items); err != nil {
			return nil, err
		}
		created.Items = rec.Items
	}
	return &created, nil
}

// UpdateListBalance patches balance_at_time on one list.
func (c *Client) UpdateListBalance(ctx context.Context, listID string, balance float64) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateListBalance")
	defer span.End()

	err := c.doPatch(ctx, fmt.Sprintf("shopping_lists?id=eq.%s", listID), map[string]any{
		"balance_at_time": balance,
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/lists", Err: err}
	}
	return nil
}

// UpdateListMeta patches arbitrary columns on one list (name, status,
// total, date).
func (c *Client) UpdateListMeta(ctx context.Context, listID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateListMeta")
	defer span.End()

	err := c.doPatch(ctx, fmt.Sprintf("shopping_lists?id=eq.%s", listID), updates)
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/lists", Err: err}
	}
	return nil
}

// DeleteList removes a list row. Items cascade on the remote schema.
func (c *Client) DeleteList(ctx context.Context, listID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteList")
	defer span.End()

	if err := c.doDelete(ctx, fmt.Sprintf("shopping_lists?id=eq.%s", listID)); err != nil {
		return &domain.ErrExternalService{Service: "supabase/lists", Err: err}
	}
	return nil
}

// ============================================================
// Shopping items
// ============================================================

// ReplaceItems swaps the full item set of a list: delete everything under
// the list id, then bulk insert the new rows. An empty slice just clears.
func (c *Client) ReplaceItems(ctx context.Context, listID string, items []domain.ShoppingItem) error {
	ctx, span := tracer.Start(ctx, "Supabase.ReplaceItems")
	defer span.End()
	span.SetAttributes(attribute.Int("items.count", len(items)))

	if err := c.doDelete(ctx, fmt.Sprintf("shopping_items?list_id=eq.%s", listID)); err != nil {
		return &domain.ErrExternalService{Service: "supabase/items", Err: err}
	}
	if len(items) == 0 {
		return nil
	}
	return c.InsertItems(ctx, listID, items)
}

// InsertItems bulk inserts item rows under a list, preserving order via
// the position column.
func (c *Client) InsertItems(ctx context.Context, listID string, items []domain.ShoppingItem) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertItems")
	defer span.End()

	rows := make([]map[string]any, 0, len(items))
	for i, it := range items {
		rows = append(rows, map[string]any{
			"id":         it.ID,
			"list_id":    listID,
			"name":       it.Name,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice,
			"position":   i,
		})
	}

	if _, err := c.doPost(ctx, "shopping_items", rows); err != nil {
		return &domain.ErrExternalService{Service: "supabase/items", Err: err}
	}
	return nil
}
