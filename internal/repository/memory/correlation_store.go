package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronaldocpontes/contribute/internal/gateway"
)

// CorrelationStore реализует gateway.CorrelationStore в памяти
// Используется для разработки и тестирования, в production - Redis
type CorrelationStore struct {
	mu     sync.Mutex
	tokens map[string]correlationEntry // ключ = kind + ":" + token
}

type correlationEntry struct {
	subjectID string
	expiresAt time.Time
}

// NewCorrelationStore создаёт новый in-memory correlation store
func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{
		tokens: make(map[string]correlationEntry),
	}
}

// Create сохраняет subjectID под новым случайным токеном с TTL
func (s *CorrelationStore) Create(ctx context.Context, kind gateway.CallbackKind, subjectID string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.tokens[string(kind)+":"+token] = correlationEntry{
		subjectID: subjectID,
		expiresAt: time.Now().Add(ttl),
	}

	return token, nil
}

// Consume возвращает subjectID и атомарно удаляет токен
func (s *CorrelationStore) Consume(ctx context.Context, kind gateway.CallbackKind, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(kind) + ":" + token
	entry, exists := s.tokens[key]
	if !exists {
		return "", gateway.ErrCorrelationNotFound
	}

	// Одноразовое использование: удаляем до любых других проверок
	delete(s.tokens, key)

	if time.Now().After(entry.expiresAt) {
		return "", gateway.ErrCorrelationNotFound
	}

	return entry.subjectID, nil
}
