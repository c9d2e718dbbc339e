package sanitize

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// ScoreStore persists scrubbed score data
type ScoreStore interface {
	StoreSanitizedScore(ctx context.Context, id int64, digest string) (bool, error)
}

// Sanitizer replaces client checksums with a keyed digest so scores can
// still be matched against each other without keeping the raw value
type Sanitizer struct {
	key    []byte
	store  ScoreStore
	logger *slog.Logger
}

// NewSanitizer creates a sanitizer keyed with key
func NewSanitizer(key string, store ScoreStore, logger *slog.Logger) *Sanitizer {
	return &Sanitizer{
		key:    []byte(key),
		store:  store,
		logger: logger,
	}
}

// Digest returns the hex HMAC-SHA256 of checksum; empty stays empty
func (s *Sanitizer) Digest(checksum string) string {
	if checksum == "" {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sanitize scrubs the sensitive fields of score in the record store
func (s *Sanitizer) Sanitize(ctx context.Context, score domain.Score) error {
	updated, err := s.store.StoreSanitizedScore(ctx, score.ID, s.Digest(score.ClientChecksum))
	if err != nil {
		return fmt.Errorf("sanitizing score %d: %w", score.ID, err)
	}
	if !updated {
		s.logger.Debug("score already sanitized or gone", "score_id", score.ID)
		return nil
	}
	metrics.ScoresSanitizedTotal.Inc()
	s.logger.Debug("sanitized score", "score_id", score.ID, "player_id", score.Player.ID)
	return nil
}
