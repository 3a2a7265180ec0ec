package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
	"github.com/propath-ai/api/internal/service/assistant"
	"github.com/propath-ai/api/internal/service/auth"
	"github.com/propath-ai/api/internal/service/chat"
	"github.com/propath-ai/api/internal/service/notify"
	"github.com/propath-ai/api/internal/service/scholarship"
	"github.com/propath-ai/api/internal/service/stats"
	"github.com/propath-ai/api/internal/service/user"
	"github.com/propath-ai/api/internal/ws"
	"github.com/propath-ai/api/pkg/config"
)

// memoryRepo is an in-process stand-in for the postgres repository.
// Creates prepend so listings come back newest first.
type memoryRepo struct {
	mu           sync.Mutex
	users        []domain.User
	scholarships []domain.Scholarship
	pushTokens   map[string]domain.PushToken

	scholarshipWriteErr error
	userLookupErr       error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{pushTokens: make(map[string]domain.PushToken)}
}

func (m *memoryRepo) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	m.users = append([]domain.User{*user}, m.users...)
	return nil
}

func (m *memoryRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userLookupErr != nil {
		return nil, m.userLookupErr
	}
	for _, u := range m.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.User(nil), m.users...), nil
}

func (m *memoryRepo) CountUsers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memoryRepo) CreateScholarship(_ context.Context, scholarship *domain.Scholarship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scholarshipWriteErr != nil {
		return m.scholarshipWriteErr
	}
	m.scholarships = append([]domain.Scholarship{*scholarship}, m.scholarships...)
	return nil
}

func (m *memoryRepo) GetScholarshipByID(_ context.Context, id string) (*domain.Scholarship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scholarships {
		if s.ID == id {
			copied := s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) ListScholarships(_ context.Context) ([]domain.Scholarship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Scholarship(nil), m.scholarships...), nil
}

func (m *memoryRepo) UpdateScholarship(_ context.Context, scholarship *domain.Scholarship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scholarshipWriteErr != nil {
		return m.scholarshipWriteErr
	}
	for i, s := range m.scholarships {
		if s.ID == scholarship.ID {
			m.scholarships[i] = *scholarship
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryRepo) DeleteScholarship(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.scholarships {
		if s.ID == id {
			m.scholarships = append(m.scholarships[:i], m.scholarships[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryRepo) CountScholarships(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scholarships), nil
}

func (m *memoryRepo) CountScholarshipsWithDeadlineAfter(_ context.Context, after time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.scholarships {
		if s.Deadline.After(after) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) CountScholarshipsCreatedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.scholarships {
		if !s.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) UpsertPushToken(_ context.Context, token *domain.PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushTokens[token.Fingerprint] = *token
	return nil
}

func setupRouter(t *testing.T) (*Router, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		JWTSecret:        "router-test-secret",
		TokenTTL:         time.Hour,
		SecretsKey:       "router-test-secrets",
		ChatDefaultRoom:  "lobby",
		AssistantURL:     "http://127.0.0.1:0",
		AssistantTimeout: time.Second,
	}
	router := NewRouter(
		log,
		auth.New(repo, log, cfg),
		user.New(repo, log),
		scholarship.New(repo, log),
		stats.New(repo, repo, log),
		chat.New(ws.NewHub(), log, cfg.ChatDefaultRoom),
		assistant.New(log, cfg),
		notify.New(repo, log, cfg),
		NewMemoryRateLimiter(),
		"*",
		nil,
	)
	t.Cleanup(router.Close)
	return router, repo
}

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return payload
}

func signupForToken(t *testing.T, router *Router, name, email, password string) string {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("signup returned no token")
	}
	return token
}

func TestSignupLoginFlow(t *testing.T) {
	router, _ := setupRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Alice", "email": "a@x.com", "password": "pw1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("unexpected rate limit header: %q", got)
	}
	payload := decodeBody(t, rr)
	if payload["token"] == "" {
		t.Fatal("expected token in signup response")
	}
	userView, ok := payload["user"].(map[string]any)
	if !ok || userView["email"] != "a@x.com" || userView["name"] != "Alice" {
		t.Fatalf("unexpected user view: %v", payload["user"])
	}

	rr = doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Other", "email": "a@x.com", "password": "pw2",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup returned %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "pw1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong-password login returned %d", rr.Code)
	}
}

func TestProfileRequiresBearerToken(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodGet, "/api/auth/profile", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token returned %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodGet, "/api/auth/profile", "garbage", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token returned %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/auth/profile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile returned %d: %s", rr.Code, rr.Body.String())
	}
	if body := rr.Body.String(); strings.Contains(strings.ToLower(body), "password") {
		t.Fatalf("profile response leaks credential field: %s", body)
	}
}

func TestUsersListIsGatedAndExcludesCredential(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")
	signupForToken(t, router, "Bob", "b@x.com", "pw2")

	rr := doJSON(t, router, http.MethodGet, "/api/users", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated listing returned %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/users", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("users listing returned %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(strings.ToLower(body), "password") {
		t.Fatalf("user listing leaks credential field: %s", body)
	}
	var users []map[string]any
	if err := json.Unmarshal([]byte(body), &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0]["email"] != "b@x.com" {
		t.Fatalf("expected newest user first, got %v", users[0]["email"])
	}
}

func TestScholarshipCreateValidation(t *testing.T) {
	router, repo := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodPost, "/api/scholarships", "", map[string]any{
		"title": "T", "description": "D", "amount": 100, "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create returned %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T", "description": "D", "amount": 100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("create without deadline returned %d", rr.Code)
	}
	if len(repo.scholarships) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(repo.scholarships))
	}

	rr = doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T", "description": "D", "amount": "not-a-number", "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("create with junk amount returned %d", rr.Code)
	}

	// Fractional amounts are rejected, not truncated.
	rr = doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T", "description": "D", "amount": 100.9, "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("create with fractional amount returned %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T", "description": "D", "amount": "250.75", "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("create with fractional string amount returned %d", rr.Code)
	}
	if len(repo.scholarships) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(repo.scholarships))
	}
}

func TestScholarshipStorageFailureIsServerError(t *testing.T) {
	router, repo := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T", "description": "D", "amount": 1000, "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}
	id := decodeBody(t, rr)["id"].(string)

	repo.scholarshipWriteErr = errors.New("connection refused on 10.0.0.7:5432")

	rr = doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "T2", "description": "D2", "amount": 2000, "deadline": "2027-01-01",
	})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("create with failing storage returned %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("driver error leaked to client: %s", rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodPut, "/api/scholarships/"+id, token, map[string]any{"amount": 3000})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("update with failing storage returned %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("driver error leaked to client: %s", rr.Body.String())
	}
}

func TestAuthLookupOutageIsServerError(t *testing.T) {
	router, repo := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	repo.userLookupErr = errors.New("connection refused on 10.0.0.7:5432")

	rr := doJSON(t, router, http.MethodGet, "/api/auth/profile", token, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("profile during storage outage returned %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("driver error leaked to client: %s", rr.Body.String())
	}
}

func TestScholarshipCRUDRoundTrip(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title":       "STEM Award",
		"description": "For undergraduates",
		"amount":      5000,
		"deadline":    "2027-06-30T00:00:00Z",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected created scholarship id")
	}
	if created["amount"].(float64) != 5000 {
		t.Fatalf("unexpected amount: %v", created["amount"])
	}

	// Reads are public.
	rr = doJSON(t, router, http.MethodGet, "/api/scholarships/"+id, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rr.Code, rr.Body.String())
	}
	fetched := decodeBody(t, rr)
	if fetched["title"] != "STEM Award" || fetched["description"] != "For undergraduates" {
		t.Fatalf("round trip mismatch: %v", fetched)
	}

	rr = doJSON(t, router, http.MethodPut, "/api/scholarships/"+id, token, map[string]any{
		"amount": "7500",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rr.Code, rr.Body.String())
	}
	updated := decodeBody(t, rr)
	if updated["amount"].(float64) != 7500 {
		t.Fatalf("expected merged amount, got %v", updated["amount"])
	}
	if updated["title"] != "STEM Award" {
		t.Fatalf("expected title preserved, got %v", updated["title"])
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/scholarships/"+id, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, http.MethodGet, "/api/scholarships/"+id, "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete returned %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodDelete, "/api/scholarships/"+id, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete returned %d", rr.Code)
	}
}

func TestScholarshipListNewestFirst(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	for _, title := range []string{"First", "Second"} {
		rr := doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
			"title": title, "description": "D", "amount": 1000, "deadline": "2027-01-01",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %q returned %d", title, rr.Code)
		}
	}

	rr := doJSON(t, router, http.MethodGet, "/api/scholarships", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list returned %d", rr.Code)
	}
	var listed []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 scholarships, got %d", len(listed))
	}
	if listed[0]["title"] != "Second" || listed[1]["title"] != "First" {
		t.Fatalf("expected newest first, got %v then %v", listed[0]["title"], listed[1]["title"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodPost, "/api/scholarships", token, map[string]any{
		"title": "Open", "description": "D", "amount": 1000,
		"deadline": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d", rr.Code)
	}

	if rr := doJSON(t, router, http.MethodGet, "/api/stats", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats returned %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodGet, "/api/stats", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats returned %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["total_users"].(float64) != 1 {
		t.Fatalf("unexpected total_users: %v", payload["total_users"])
	}
	if payload["active_scholarships"].(float64) != 1 {
		t.Fatalf("unexpected active_scholarships: %v", payload["active_scholarships"])
	}
}

func TestLogoutIsStatelessAck(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupForToken(t, router, "Alice", "a@x.com", "pw1")

	rr := doJSON(t, router, http.MethodPost, "/api/auth/logout", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout returned %d", rr.Code)
	}

	// The token stays valid: there is no server-side revocation.
	rr = doJSON(t, router, http.MethodGet, "/api/auth/profile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile after logout returned %d", rr.Code)
	}
}

func TestSaveTokenEndpoint(t *testing.T) {
	router, repo := setupRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/save-token", "", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing token returned %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/save-token", "", map[string]string{"token": "ExponentPushToken[abc]"})
	if rr.Code != http.StatusOK {
		t.Fatalf("save-token returned %d: %s", rr.Code, rr.Body.String())
	}
	if len(repo.pushTokens) != 1 {
		t.Fatalf("expected one stored push token, got %d", len(repo.pushTokens))
	}
}

func TestAssistantRequiresMessage(t *testing.T) {
	router, _ := setupRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/chat", "", map[string]any{"message": " ", "history": []any{}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing message returned %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthzReportsDatabaseState(t *testing.T) {
	router, _ := setupRouter(t)
	router.dbHealth = func(context.Context) error { return nil }

	rr := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rr.Code)
	}

	router.dbHealth = func(context.Context) error { return errors.New("connection refused") }
	rr = doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded healthz returned %d", rr.Code)
	}
}

func TestChatWebsocketFanout(t *testing.T) {
	router, _ := setupRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	dial := func(name string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", name, err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	readMessage := func(name string, conn *websocket.Conn) domain.ChatMessage {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg domain.ChatMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read on %s: %v", name, err)
		}
		return msg
	}

	// A sends and must hear itself back: a client's registration is
	// processed before any message it subsequently sends, so the echo
	// confirms A is in the room.
	connA := dial("A")
	if err := connA.WriteJSON(domain.ChatMessage{Text: "hello", Sender: "A"}); err != nil {
		t.Fatalf("send on A: %v", err)
	}
	if msg := readMessage("A", connA); msg.Text != "hello" || msg.Sender != "A" {
		t.Fatalf("unexpected echo on A: %+v", msg)
	}

	// B joins and sends; both B (its own echo) and the already
	// registered A must receive it.
	connB := dial("B")
	if err := connB.WriteJSON(domain.ChatMessage{Text: "hi", Sender: "B"}); err != nil {
		t.Fatalf("send on B: %v", err)
	}
	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		if msg := readMessage(name, conn); msg.Text != "hi" || msg.Sender != "B" {
			t.Fatalf("unexpected message on %s: %+v", name, msg)
		}
	}
}
