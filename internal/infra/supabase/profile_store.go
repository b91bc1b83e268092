package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Profiles (implements port.ProfileStore)
// ============================================================

// supabaseProfile maps profiles table columns to our domain.
type supabaseProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Theme string `json:"theme"`
}

// GetProfile fetches the user's profile row.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var profile *domain.UserProfile

	// A missing row is an expected answer, not a fault: it must not be
	// retried and must not count toward tripping the breaker.
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("profiles?id=eq.%s&limit=1", userID)
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				profile = nil
				return nil
			}

			var profiles []supabaseProfile
			if err := json.Unmarshal(body, &profiles); err != nil {
				return fmt.Errorf("failed to decode profile: %w", err)
			}

			if len(profiles) == 0 {
				profile = nil
				return nil
			}

			p := profiles[0]
			profile = &domain.UserProfile{
				ID:    p.ID,
				Name:  p.Name,
				Email: p.Email,
				Theme: p.Theme,
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profile", Err: err}
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}

	return profile, nil
}

// CreateProfile inserts a profile row for a freshly registered user.
func (c *Client) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateProfile")
	defer span.End()

	row := map[string]any{
		"id":    profile.ID,
		"name":  profile.Name,
		"email": profile.Email,
		"theme": profile.Theme,
	}
	if _, err := c.doPost(ctx, "profiles", row); err != nil {
		return &domain.ErrExternalService{Service: "supabase/profile", Err: err}
	}
	return nil
}

// UpdateProfile patches profile columns and returns the fresh row.
func (c *Client) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfile")
	defer span.End()

	if err := c.doPatch(ctx, fmt.Sprintf("profiles?id=eq.%s", userID), updates); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profile", Err: err}
	}
	return c.GetProfile(ctx, userID)
}
