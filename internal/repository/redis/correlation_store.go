package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/gateway"
)

// CorrelationStore реализует gateway.CorrelationStore используя Redis.
// Токен живёт ровно до callback-а или до истечения TTL; Consume делает
// GETDEL, поэтому повторное использование токена невозможно.
type CorrelationStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCorrelationStore создаёт новый Redis correlation store
func NewCorrelationStore(client *redis.Client, logger *zap.Logger) *CorrelationStore {
	return &CorrelationStore{
		client: client,
		logger: logger,
	}
}

func correlationKey(kind gateway.CallbackKind, token string) string {
	return fmt.Sprintf("callback:%s:%s", kind, token)
}

// Create сохраняет subjectID под новым случайным токеном с TTL
func (s *CorrelationStore) Create(ctx context.Context, kind gateway.CallbackKind, subjectID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	key := correlationKey(kind, token)

	if err := s.client.Set(ctx, key, subjectID, ttl).Err(); err != nil {
		s.logger.Error("failed to create correlation token in redis",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("subject_id", subjectID),
		)
		return "", fmt.Errorf("failed to create correlation token: %w", err)
	}

	s.logger.Debug("correlation token created",
		zap.String("kind", string(kind)),
		zap.String("subject_id", subjectID),
		zap.Duration("ttl", ttl),
	)

	return token, nil
}

// Consume возвращает subjectID и атомарно удаляет токен.
// GETDEL гарантирует, что из двух конкурентных callback-ов с одним токеном
// пройдёт не больше одного.
func (s *CorrelationStore) Consume(ctx context.Context, kind gateway.CallbackKind, token string) (string, error) {
	if token == "" {
		return "", gateway.ErrCorrelationNotFound
	}

	key := correlationKey(kind, token)

	subjectID, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			s.logger.Debug("correlation token not found",
				zap.String("kind", string(kind)),
			)
			return "", gateway.ErrCorrelationNotFound
		}
		s.logger.Error("failed to consume correlation token from redis",
			zap.Error(err),
			zap.String("kind", string(kind)),
		)
		return "", fmt.Errorf("failed to consume correlation token: %w", err)
	}

	return subjectID, nil
}
