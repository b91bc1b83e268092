// Package service — AuthService handles registration, login and logout
// against the Supabase GoTrue identity provider.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var authTracer = otel.Tracer("service/auth")

const minPasswordLen = 6

// AuthService orchestrates authentication flows. Credentials never touch
// this service beyond being forwarded to the identity provider; access
// tokens are minted by GoTrue and only verified here.
type AuthService struct {
	auth      port.Authenticator
	profiles  port.ProfileStore
	lists     *ListService
	jwtSecret []byte
	logger    *zap.Logger
}

// NewAuthService creates a new auth service. jwtSecret is the Supabase
// project JWT secret used to verify GoTrue access tokens.
func NewAuthService(auth port.Authenticator, profiles port.ProfileStore, lists *ListService, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		auth:      auth,
		profiles:  profiles,
		lists:     lists,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// AccessClaims are the claims we read from a GoTrue access token.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateAccessToken verifies signature and expiry of a GoTrue access
// token and returns its claims. Sub carries the user id.
func (s *AuthService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}
	return claims, nil
}

// ============================================================
// Register — POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "obrigatório"}
	}
	if !strings.Contains(in.Email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "e-mail inválido"}
	}
	if len(in.Password) < minPasswordLen {
		return nil, &domain.ErrValidation{Field: "password", Message: domain.MsgPasswordShort}
	}
	if in.Password != in.ConfirmPassword {
		return nil, &domain.ErrValidation{Field: "confirmPassword", Message: domain.MsgPasswordNoMatch}
	}

	sess, err := s.auth.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}

	// Seed the profile row so name and theme survive the first login.
	// With e-mail confirmation on, the user id is known even before the
	// account is usable.
	if sess.UserID != "" {
		profile := &domain.UserProfile{
			ID:    sess.UserID,
			Name:  in.Name,
			Email: in.Email,
			Theme: "light",
		}
		if err := s.profiles.CreateProfile(ctx, profile); err != nil {
			// The remote schema may seed profiles by trigger instead.
			var conflict *domain.ErrConflict
			if !errors.As(err, &conflict) {
				s.logger.Warn("profile seed failed",
					zap.String("user_id", sess.UserID),
					zap.Error(err),
				)
			}
		}
	}

	s.logger.Info("user registered", zap.String("email", in.Email))
	return &domain.RegisterResponse{Message: domain.MsgSignupDone}, nil
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

// Login authenticates and rebuilds the user's workspace: profile and
// list snapshot are fetched concurrently so the first page render is
// already warm.
func (s *AuthService) Login(ctx context.Context, in domain.LoginInput) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if in.Email == "" || in.Password == "" {
		return nil, &domain.ErrUnauthorized{Message: domain.MsgBadCredentials}
	}

	sess, err := s.auth.SignIn(ctx, in)
	if err != nil {
		return nil, err
	}

	var profile *domain.UserProfile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.ensureProfile(gctx, sess)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		return s.lists.Warm(gctx, sess.UserID)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", sess.UserID))
	return &domain.LoginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		UserID:       sess.UserID,
		Name:         profile.Name,
		Email:        profile.Email,
		Theme:        profile.Theme,
	}, nil
}

// ensureProfile fetches the profile row, creating it from the session
// metadata when the user predates the profiles table.
func (s *AuthService) ensureProfile(ctx context.Context, sess *domain.Session) (*domain.UserProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, sess.UserID)
	if err == nil {
		return profile, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}

	profile = &domain.UserProfile{
		ID:    sess.UserID,
		Name:  sess.Name,
		Email: sess.Email,
		Theme: "light",
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	return s.auth.SignOut(ctx, accessToken)
}
