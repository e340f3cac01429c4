package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// Repository реализует ContributionRepository используя in-memory хранилище
// Используется для разработки и тестирования
// В production заменяется на PostgreSQL реализацию
type Repository struct {
	mu            sync.RWMutex
	contributions map[string]repository.Contribution // ключ = id контрибуции
}

// NewRepository создаёт новый in-memory репозиторий контрибуций
func NewRepository() *Repository {
	return &Repository{
		contributions: make(map[string]repository.Contribution),
	}
}

// Save сохраняет контрибуцию в памяти
// Защищён мьютексом для безопасного доступа из разных горутин
func (r *Repository) Save(ctx context.Context, c repository.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	r.contributions[c.ID] = c
	return nil
}

// GetByID получает контрибуцию по ID из памяти
func (r *Repository) GetByID(ctx context.Context, id string) (repository.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.contributions[id]
	if !exists {
		return repository.Contribution{}, repository.ErrNotFound
	}

	return c, nil
}

// ListByStatuses возвращает контрибуции в указанных статусах, старые первыми
func (r *Repository) ListByStatuses(ctx context.Context, statuses []repository.ContributionStatus, limit int) ([]repository.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[repository.ContributionStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	result := make([]repository.Contribution, 0)
	for _, c := range r.contributions {
		if wanted[c.Status] {
			result = append(result, c)
		}
	}

	// Сортируем по времени создания для стабильного порядка
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// HasActive проверяет, есть ли у пользователя активная контрибуция в проект
func (r *Repository) HasActive(ctx context.Context, projectID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.contributions {
		if c.ProjectID != projectID || c.UserID != userID {
			continue
		}
		switch c.Status {
		case repository.StatusRetryCancel, repository.StatusFailure, repository.StatusCancelled:
			// не активная
		default:
			return true, nil
		}
	}

	return false, nil
}

// Delete удаляет контрибуцию по ID
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.contributions, id)
	return nil
}
