package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"log/slog"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/pkg/config"
)

// ErrMissingMessage reports an empty user message.
var ErrMissingMessage = errors.New("message is required")

// ErrUpstream reports a failed completion call.
var ErrUpstream = errors.New("assistant upstream failed")

const fallbackReply = "Sorry, I didn't understand that."

// Service proxies chat turns to an external agent-completion API.
type Service struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        config.Config
}

// Option customises service instantiation.
type Option func(*Service)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *Service) {
		if h != nil {
			s.httpClient = h
		}
	}
}

// New constructs an assistant service.
func New(logger *slog.Logger, cfg config.Config, opts ...Option) Service {
	s := Service{
		httpClient: &http.Client{Timeout: cfg.AssistantTimeout},
		logger:     logger,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Complete appends the user message to history, requests a completion
// and returns the reply together with the updated history.
func (s Service) Complete(ctx context.Context, message string, history []domain.AssistantMessage) (string, []domain.AssistantMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", nil, ErrMissingMessage
	}
	messages := make([]domain.AssistantMessage, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, domain.AssistantMessage{Role: "user", Content: message})

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}
	messages = append(messages, domain.AssistantMessage{Role: "assistant", Content: reply})
	return reply, messages, nil
}

func (s Service) complete(ctx context.Context, messages []domain.AssistantMessage) (string, error) {
	body := map[string]any{
		"agent_id": s.cfg.AssistantAgentID,
		"messages": messages,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AssistantURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(s.cfg.AssistantAPIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("assistant request failed", "error", err)
		return "", ErrUpstream
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Error("assistant returned error", "status", resp.StatusCode, "body", string(snippet))
		return "", ErrUpstream
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		s.logger.Error("assistant response undecodable", "error", err)
		return "", ErrUpstream
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}
