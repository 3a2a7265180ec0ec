package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
	"github.com/propath-ai/api/pkg/config"
	"github.com/propath-ai/api/pkg/crypto"
)

// ErrMissingToken reports an absent push token.
var ErrMissingToken = errors.New("token is required")

// Service stores device push tokens sealed at rest.
type Service struct {
	tokens repository.PushTokenRepository
	logger *slog.Logger
	cfg    config.Config
}

// New returns a notify service.
func New(tokens repository.PushTokenRepository, logger *slog.Logger, cfg config.Config) Service {
	return Service{tokens: tokens, logger: logger, cfg: cfg}
}

// SaveToken seals and upserts a push token. Repeated saves of the same
// token collapse onto one row via its fingerprint.
func (s Service) SaveToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	ciphertext, err := crypto.Seal(s.cfg.SecretsKey, token)
	if err != nil {
		return err
	}
	sum := sha256.Sum256([]byte(token))
	record := &domain.PushToken{
		Fingerprint: hex.EncodeToString(sum[:]),
		Ciphertext:  ciphertext,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.tokens.UpsertPushToken(ctx, record); err != nil {
		return err
	}
	s.logger.Info("push token saved", "fingerprint", record.Fingerprint[:8])
	return nil
}
