package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/handler"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/cache"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"
	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testJWTSecret = "router-test-secret"

// --- In-memory backends ---

type memStore struct {
	mu    sync.Mutex
	lists []domain.ListRecord
	items map[string][]domain.ShoppingItem
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string][]domain.ShoppingItem)}
}

func (m *memStore) ListsByUser(_ context.Context, userID string) ([]domain.ListRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ListRecord, 0)
	for _, l := range m.lists {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) CreateList(_ context.Context, rec *domain.ListRecord) (*domain.ListRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = append(m.lists, *rec)
	return rec, nil
}

func (m *memStore) UpdateListBalance(_ context.Context, listID string, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		if m.lists[i].ID == listID {
			m.lists[i].BalanceAtTime = balance
		}
	}
	return nil
}

func (m *memStore) UpdateListMeta(_ context.Context, listID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		if m.lists[i].ID == listID {
			if st, ok := updates["status"].(domain.ListStatus); ok {
				m.lists[i].Status = st
			}
		}
	}
	return nil
}

func (m *memStore) DeleteList(_ context.Context, listID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		if m.lists[i].ID == listID {
			m.lists = append(m.lists[:i], m.lists[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) ReplaceItems(_ context.Context, listID string, items []domain.ShoppingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[listID] = items
	return nil
}

func (m *memStore) InsertItems(_ context.Context, listID string, items []domain.ShoppingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[listID] = append(m.items[listID], items...)
	return nil
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*domain.UserProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]*domain.UserProfile)}
}

func (m *memProfiles) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) CreateProfile(_ context.Context, profile *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = profile
	return nil
}

func (m *memProfiles) UpdateProfile(_ context.Context, userID string, updates map[string]any) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	if name, ok := updates["name"].(string); ok {
		p.Name = name
	}
	if theme, ok := updates["theme"].(string); ok {
		p.Theme = theme
	}
	cp := *p
	return &cp, nil
}

// memAuth issues a signed session for any credentials.
type memAuth struct{}

func (memAuth) SignUp(_ context.Context, in domain.RegisterInput) (*domain.Session, error) {
	return &domain.Session{UserID: "user-1", Email: in.Email, Name: in.Name}, nil
}

func (memAuth) SignIn(_ context.Context, in domain.LoginInput) (*domain.Session, error) {
	return &domain.Session{
		AccessToken: signToken("user-1"), RefreshToken: "rt", ExpiresIn: 3600,
		UserID: "user-1", Email: in.Email, Name: "Ana",
	}, nil
}

func (memAuth) SignOut(_ context.Context, _ string) error { return nil }

func signToken(subject string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"email": "ana@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(testJWTSecret))
	return signed
}

type testEnv struct {
	router   http.Handler
	syncer   *service.ItemSyncer
	profiles *memProfiles
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	profiles := newMemProfiles()
	profiles.profiles["user-1"] = &domain.UserProfile{
		ID: "user-1", Name: "Ana", Email: "ana@example.com", Theme: "light",
	}

	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	syncer := service.NewItemSyncer(store, cfg, time.Second, metrics, zap.NewNop())
	t.Cleanup(syncer.Close)

	listSvc := service.NewListService(store, cache.New[*domain.ListSnapshot](5*time.Minute), syncer, metrics, zap.NewNop())
	profileSvc := service.NewProfileService(profiles, zap.NewNop())
	authSvc := service.NewAuthService(memAuth{}, profiles, listSvc, testJWTSecret, zap.NewNop())

	router := handler.NewRouter(listSvc, profileSvc, authSvc, metrics, []string{"*"}, zap.NewNop())
	return &testEnv{router: router, syncer: syncer, profiles: profiles}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) *service.ListView {
	t.Helper()
	var view service.ListView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode list view: %v", err)
	}
	return &view
}

// --- Tests ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/readyz", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Drive one request through the middleware so the counters exist.
	if rec := env.do(t, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "lista_requests_total") {
		t.Error("expected lista_requests_total in metrics output")
	}
	if !strings.Contains(body, "lista_request_duration_seconds") {
		t.Error("expected lista_request_duration_seconds in metrics output")
	}
}

func TestSyncMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/metrics/sync", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap domain.SyncMetrics
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode sync metrics: %v", err)
	}
	if snap.Period != "all_time" {
		t.Errorf("expected period 'all_time', got '%s'", snap.Period)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/list"},
		{http.MethodPost, "/v1/list/items"},
		{http.MethodGet, "/v1/history"},
		{http.MethodGet, "/v1/profile"},
		{http.MethodPost, "/v1/auth/logout"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestProtectedRoutesRejectBadToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/list", nil, "not-a-real-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"name": "Ana", "email": "ana@example.com",
		"password": "123456", "confirmPassword": "123456",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterValidationError(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"name": "Ana", "email": "ana@example.com",
		"password": "123", "confirmPassword": "123",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "ana@example.com", "password": "123456",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.Name != "Ana" || resp.Theme != "light" {
		t.Errorf("expected profile in login response, got %+v", resp)
	}
}

func TestListFlow(t *testing.T) {
	env := newTestEnv(t)
	token := signToken("user-1")

	// Fresh list.
	rec := env.do(t, http.MethodGet, "/v1/list", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	if len(view.Items) != 0 {
		t.Fatalf("expected empty list, got %d items", len(view.Items))
	}

	// Add an item.
	rec = env.do(t, http.MethodPost, "/v1/list/items", domain.ItemInput{
		Name: "Arroz", Quantity: 2, UnitPrice: 10,
	}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST items: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	view = decodeView(t, rec)
	if len(view.Items) != 1 || view.TotalExpense != 20 {
		t.Fatalf("unexpected view after add: %+v", view)
	}
	itemID := view.Items[0].ID

	// Edit it.
	rec = env.do(t, http.MethodPut, "/v1/list/items/"+itemID, domain.ItemInput{
		Name: "Arroz Integral", Quantity: 1, UnitPrice: 12,
	}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT item: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view = decodeView(t, rec)
	if view.Items[0].Name != "Arroz Integral" || view.TotalExpense != 12 {
		t.Fatalf("unexpected view after edit: %+v", view)
	}

	// Declare the balance.
	rec = env.do(t, http.MethodPut, "/v1/list/balance", map[string]float64{"balance": 100}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT balance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view = decodeView(t, rec)
	if view.RemainingBalance != 88 {
		t.Errorf("expected remaining 88, got %f", view.RemainingBalance)
	}

	// Finalize under a user-chosen name.
	rec = env.do(t, http.MethodPost, "/v1/list/finalize", map[string]string{"listName": "Feira da semana"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST finalize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view = decodeView(t, rec)
	if len(view.Items) != 0 || len(view.History) != 1 {
		t.Fatalf("unexpected view after finalize: %+v", view)
	}
	if view.Balance != 0 {
		t.Errorf("expected fresh list with zero balance, got %f", view.Balance)
	}
	if view.History[0].Status != domain.StatusConcluded {
		t.Errorf("expected concluded record, got '%s'", view.History[0].Status)
	}
	if view.History[0].ListName != "Feira da semana" {
		t.Errorf("expected record named 'Feira da semana', got '%s'", view.History[0].ListName)
	}

	// History endpoints.
	rec = env.do(t, http.MethodGet, "/v1/history", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET history: expected 200, got %d", rec.Code)
	}
	recordID := view.History[0].ID
	rec = env.do(t, http.MethodGet, "/v1/history/"+recordID, nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET history record: expected 200, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/history/"+recordID, nil, token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE history record: expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/history/"+recordID, nil, token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestFinalizeGuardReturns422(t *testing.T) {
	env := newTestEnv(t)
	token := signToken("user-1")

	rec := env.do(t, http.MethodPost, "/v1/list/items", domain.ItemInput{Name: "Ovos", Quantity: 1}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST items: expected 201, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/list/finalize", nil, token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestResumeConflictAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	token := signToken("user-1")

	env.do(t, http.MethodPost, "/v1/list/items", domain.ItemInput{Name: "Feijão", Quantity: 1, UnitPrice: 8}, token)
	rec := env.do(t, http.MethodPost, "/v1/list/draft", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST draft: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	recordID := view.History[0].ID

	// Dirty the fresh list so resume needs confirmation.
	env.do(t, http.MethodPost, "/v1/list/items", domain.ItemInput{Name: "Sabão", Quantity: 1}, token)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/history/%s/resume", recordID), nil, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/history/%s/resume", recordID), map[string]bool{"confirm": true}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on confirmed resume, got %d: %s", rec.Code, rec.Body.String())
	}
	view = decodeView(t, rec)
	if len(view.Items) != 1 || view.Items[0].Name != "Feijão" {
		t.Errorf("expected resumed items, got %+v", view.Items)
	}
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := signToken("user-1")

	rec := env.do(t, http.MethodGet, "/v1/profile", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET profile: expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/profile", map[string]string{"name": "Ana Maria"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT profile: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var profile domain.UserProfile
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.Name != "Ana Maria" {
		t.Errorf("expected updated name, got '%s'", profile.Name)
	}

	rec = env.do(t, http.MethodPost, "/v1/profile/theme", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST theme: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.Theme != "dark" {
		t.Errorf("expected toggled theme 'dark', got '%s'", profile.Theme)
	}

	rec = env.do(t, http.MethodPost, "/v1/profile/theme", map[string]string{"theme": "light"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST explicit theme: expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.Theme != "light" {
		t.Errorf("expected theme 'light', got '%s'", profile.Theme)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := signToken("user-1")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", nil, token)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
