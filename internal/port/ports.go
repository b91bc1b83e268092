// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// ListStore defines all data operations for shopping lists and their
// items. Implemented by the Supabase adapter (or any other persistence
// layer).
type ListStore interface {
	// Lists
	ListsByUser(ctx context.Context, userID string) ([]domain.ListRecord, error)
	CreateList(ctx context.Context, rec *domain.ListRecord) (*domain.ListRecord, error)
	UpdateListBalance(ctx context.Context, listID string, balance float64) error
	UpdateListMeta(ctx context.Context, listID string, updates map[string]any) error
	DeleteList(ctx context.Context, listID string) error

	// Items (full replace: delete by list, then bulk insert)
	ReplaceItems(ctx context.Context, listID string, items []domain.ShoppingItem) error
	InsertItems(ctx context.Context, listID string, items []domain.ShoppingItem) error
}

// ProfileStore defines data operations on the profiles table.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	CreateProfile(ctx context.Context, profile *domain.UserProfile) error
	UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.UserProfile, error)
}

// Authenticator defines the operations against the identity provider.
type Authenticator interface {
	SignUp(ctx context.Context, in domain.RegisterInput) (*domain.Session, error)
	SignIn(ctx context.Context, in domain.LoginInput) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}
