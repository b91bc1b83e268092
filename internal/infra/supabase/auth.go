package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// GoTrue auth (implements port.Authenticator)
// ============================================================

// goTrueSession is the token payload GoTrue returns on signup/login.
type goTrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         goTrueUser `json:"user"`
}

type goTrueUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

type goTrueError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Error   string `json:"error_description"`
}

// doAuth executes a request against the GoTrue API. The bearer token is
// the anon key unless an end-user token is supplied.
func (c *Client) doAuth(ctx context.Context, method, path, bearer string, payload any) (int, []byte, error) {
	if err := c.bh.Acquire(ctx); err != nil {
		return 0, nil, err
	}
	defer c.bh.Release()

	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)

	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gotrue: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// SignUp registers a new account. The display name travels in the user
// metadata so the profile row can be seeded from it.
func (c *Client) SignUp(ctx context.Context, in domain.RegisterInput) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	status, body, err := c.doAuth(ctx, http.MethodPost, "signup", "", map[string]any{
		"email":    in.Email,
		"password": in.Password,
		"data":     map[string]any{"name": in.Name},
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	switch {
	case status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return nil, &domain.ErrConflict{Message: authErrorMessage(body, "E-mail já cadastrado.")}
	case status < 200 || status >= 300:
		c.logger.Warn("gotrue: signup non-2xx", zap.Int("status", status), zap.String("body", string(body)))
		return nil, &domain.ErrExternalService{
			Service: "supabase/auth",
			Err:     fmt.Errorf("gotrue signup returned %d: %s", status, string(body)),
		}
	}

	var sess goTrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	// With e-mail confirmation on, GoTrue returns the user without tokens.
	return sess.session(), nil
}

// SignIn authenticates with e-mail and password.
func (c *Client) SignIn(ctx context.Context, in domain.LoginInput) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	status, body, err := c.doAuth(ctx, http.MethodPost, "token?grant_type=password", "", map[string]any{
		"email":    in.Email,
		"password": in.Password,
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized:
		return nil, &domain.ErrUnauthorized{Message: domain.MsgBadCredentials}
	case status < 200 || status >= 300:
		c.logger.Warn("gotrue: login non-2xx", zap.Int("status", status), zap.String("body", string(body)))
		return nil, &domain.ErrExternalService{
			Service: "supabase/auth",
			Err:     fmt.Errorf("gotrue login returned %d: %s", status, string(body)),
		}
	}

	var sess goTrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return sess.session(), nil
}

// SignOut revokes the user's session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	status, body, err := c.doAuth(ctx, http.MethodPost, "logout", accessToken, nil)
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	// An already-expired token is fine for logout purposes.
	if (status < 200 || status >= 300) && status != http.StatusUnauthorized {
		c.logger.Warn("gotrue: logout non-2xx", zap.Int("status", status), zap.String("body", string(body)))
		return &domain.ErrExternalService{
			Service: "supabase/auth",
			Err:     fmt.Errorf("gotrue logout returned %d", status),
		}
	}
	return nil
}

func (s goTrueSession) session() *domain.Session {
	name, _ := s.User.Metadata["name"].(string)
	return &domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		UserID:       s.User.ID,
		Email:        s.User.Email,
		Name:         name,
	}
}

func authErrorMessage(body []byte, fallback string) string {
	var ge goTrueError
	if err := json.Unmarshal(body, &ge); err == nil {
		if ge.Message != "" {
			return ge.Message
		}
		if ge.Error != "" {
			return ge.Error
		}
	}
	return fallback
}
