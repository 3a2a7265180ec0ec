package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	users        user.Service
	scholarships scholarship.Service
	stats        stats.Service
	chat         chat.Service
	assistant    assistant.Service
	notify       notify.Service
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	corsOrigin   string
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault    = time.Minute
	rateWindowRealtime   = 30 * time.Second
	rateLimitSignup      = 5
	rateLimitLogin       = 12
	rateLimitUserWrite   = 60
	rateLimitUserRead    = 120
	rateLimitChat        = 30
	rateLimitWebsocket   = 30
	healthCheckTimeout   = 2 * time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, scholarshipSvc scholarship.Service, statsSvc stats.Service, chatSvc chat.Service, assistantSvc assistant.Service, notifySvc notify.Service, limiter RateLimiter, corsOrigin string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		auth:         authSvc,
		users:        userSvc,
		scholarships: scholarshipSvc,
		stats:        statsSvc,
		chat:         chatSvc,
		assistant:    assistantSvc,
		notify:       notifySvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		corsOrigin: strings.TrimSpace(corsOrigin),
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP applies CORS headers then delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.corsOrigin != "" {
		headers := w.Header()
		headers.Set("Access-Control-Allow-Origin", r.corsOrigin)
		headers.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/auth/signup", r.audit("/api/auth/signup", r.withRateLimit("/api/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/api/auth/login", r.audit("/api/auth/login", r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/auth/logout", r.audit("/api/auth/logout", r.handleLogout))
	r.mux.HandleFunc("/api/auth/profile", r.audit("/api/auth/profile", r.handlerAuthRate("/api/auth/profile", rateLimitUserRead, rateWindowDefault, r.handleProfile)))
	r.mux.HandleFunc("/api/users", r.audit("/api/users", r.handlerAuthRate("/api/users", rateLimitUserRead, rateWindowDefault, r.handleUsers)))
	r.mux.HandleFunc("/api/stats", r.audit("/api/stats", r.handlerAuthRate("/api/stats", rateLimitUserRead, rateWindowDefault, r.handleStats)))
	r.mux.HandleFunc("/api/scholarships", r.audit("/api/scholarships", r.handleScholarships))
	r.mux.HandleFunc("/api/scholarships/", r.audit("/api/scholarships/{id}", r.handleScholarshipByID))
	r.mux.HandleFunc("/chat", r.audit("/chat", r.withRateLimit("/chat", rateLimitChat, rateWindowDefault, rateLimitKeyIP, r.handleAssistant)))
	r.mux.HandleFunc("/save-token", r.audit("/save-token", r.withRateLimit("/save-token", rateLimitUserWrite, rateWindowDefault, rateLimitKeyIP, r.handleSaveToken)))
	r.mux.HandleFunc("/ws/chat", r.audit("/ws/chat", r.withRateLimit("/ws/chat", rateLimitWebsocket, rateWindowRealtime, rateLimitKeyIP, r.handleChatWS)))
	r.mux.HandleFunc("/sse/chat", r.audit("/sse/chat", r.handleChatSSE))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) || errors.Is(err, auth.ErrMissingField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  user.Public(),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user.Public(),
	})
}

// handleLogout acknowledges without invalidating anything: tokens are
// self-contained and expire on their own.
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	writeJSON(w, http.StatusOK, info.User)
}

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	users, err := r.users.List(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	collected, err := r.stats.Collect(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	writeJSON(w, http.StatusOK, collected)
}

func (r *Router) handleScholarships(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		scholarships, err := r.scholarships.List(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch scholarships")
			return
		}
		writeJSON(w, http.StatusOK, scholarships)
	case http.MethodPost:
		r.handlerAuthRate("/api/scholarships", rateLimitUserWrite, rateWindowDefault, r.handleScholarshipCreate)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleScholarshipCreate(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Amount      json.RawMessage `json:"amount"`
		Deadline    string          `json:"deadline"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deadline, err := parseDeadline(payload.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := r.scholarships.Create(req.Context(), scholarship.CreateInput{
		Title:       payload.Title,
		Description: payload.Description,
		Amount:      amount,
		Deadline:    deadline,
	})
	if err != nil {
		if errors.Is(err, scholarship.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create scholarship")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleScholarshipByID(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/scholarships/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		r.notFound(w)
		return
	}
	id := trimmed
	switch req.Method {
	case http.MethodGet:
		found, err := r.scholarships.Get(req.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusNotFound, "scholarship not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to fetch scholarship")
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPut:
		r.handlerAuthRate("/api/scholarships/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleScholarshipUpdate(w, req, id)
		})(w, req)
	case http.MethodDelete:
		r.handlerAuthRate("/api/scholarships/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleScholarshipDelete(w, req, id)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleScholarshipUpdate(w http.ResponseWriter, req *http.Request, id string) {
	var payload struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		Amount      json.RawMessage `json:"amount"`
		Deadline    *string         `json:"deadline"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := scholarship.UpdateInput{
		Title:       payload.Title,
		Description: payload.Description,
	}
	if len(payload.Amount) > 0 {
		amount, err := parseAmount(payload.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.Amount = amount
	}
	if payload.Deadline != nil {
		deadline, err := parseDeadline(*payload.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.Deadline = deadline
	}
	updated, err := r.scholarships.Update(req.Context(), id, input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scholarship not found")
			return
		}
		if errors.Is(err, scholarship.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update scholarship")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleScholarshipDelete(w http.ResponseWriter, req *http.Request, id string) {
	if err := r.scholarships.Delete(req.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scholarship not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete scholarship")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) handleAssistant(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Message string                    `json:"message"`
		History []domain.AssistantMessage `json:"history"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, history, err := r.assistant.Complete(req.Context(), payload.Message, payload.History)
	if err != nil {
		if errors.Is(err, assistant.ErrMissingMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":          reply,
		"updatedHistory": history,
	})
}

func (r *Router) handleSaveToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.notify.SaveToken(req.Context(), payload.Token); err != nil {
		if errors.Is(err, notify.ErrMissingToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "token received"})
}

func (r *Router) handleChatWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	room := r.chat.Join(req.URL.Query().Get("room"), client)
	go func() {
		defer func() {
			r.chat.Leave(room, client)
			client.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg domain.ChatMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				r.logger.Warn("chat message undecodable", "error", err)
				continue
			}
			r.chat.Send(room, msg)
		}
	}()
}

func (r *Router) handleChatSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	room := r.chat.Join(req.URL.Query().Get("room"), client)
	defer func() {
		r.chat.Leave(room, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// parseAmount accepts a JSON number or a numeric string and converts to
// whole currency units. Fractional values are rejected rather than
// rounded so no cents are lost silently.
func parseAmount(raw json.RawMessage) (*int64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		parsed, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil {
			return nil, errors.New("amount must be numeric")
		}
		if parsed != math.Trunc(parsed) {
			return nil, errors.New("amount must be a whole number")
		}
		value = int64(parsed)
	}
	return &value, nil
}

// parseDeadline accepts an RFC 3339 timestamp or a plain date.
func parseDeadline(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		utc := parsed.UTC()
		return &utc, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errors.New("deadline must be a date or RFC 3339 timestamp")
	}
	utc := parsed.UTC()
	return &utc, nil
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
