package service

import (
	"context"
	"strings"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var profileTracer = otel.Tracer("service/profile")

// ProfileService handles display name and theme preferences.
type ProfileService struct {
	store  port.ProfileStore
	logger *zap.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(store port.ProfileStore, logger *zap.Logger) *ProfileService {
	return &ProfileService{store: store, logger: logger}
}

// Get returns the user's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.store.GetProfile(ctx, userID)
}

// UpdateName changes the display name. The sign-in e-mail is not
// editable here.
func (s *ProfileService) UpdateName(ctx context.Context, userID, name string) (*domain.UserProfile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.UpdateName")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "obrigatório"}
	}
	return s.store.UpdateProfile(ctx, userID, map[string]any{"name": name})
}

// ToggleTheme flips between light and dark and persists the choice.
func (s *ProfileService) ToggleTheme(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.ToggleTheme")
	defer span.End()

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	theme := "dark"
	if profile.Theme == "dark" {
		theme = "light"
	}
	updated, err := s.store.UpdateProfile(ctx, userID, map[string]any{"theme": theme})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("theme toggled",
		zap.String("user_id", userID),
		zap.String("theme", theme),
	)
	return updated, nil
}

// SetTheme persists an explicit theme choice.
func (s *ProfileService) SetTheme(ctx context.Context, userID, theme string) (*domain.UserProfile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.SetTheme")
	defer span.End()

	if theme != "light" && theme != "dark" {
		return nil, &domain.ErrValidation{Field: "theme", Message: "deve ser 'light' ou 'dark'"}
	}
	return s.store.UpdateProfile(ctx, userID, map[string]any{"theme": theme})
}
