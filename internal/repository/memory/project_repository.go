package memory

import (
	"context"
	"sync"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// ProjectRepository реализует repository.ProjectRepository в памяти
type ProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]repository.Project
}

// NewProjectRepository создаёт новый in-memory репозиторий проектов
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{
		projects: make(map[string]repository.Project),
	}
}

// Save сохраняет проект в памяти
func (r *ProjectRepository) Save(ctx context.Context, p repository.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects[p.ID] = p
	return nil
}

// GetByID получает проект по ID из памяти
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (repository.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.projects[id]
	if !exists {
		return repository.Project{}, repository.ErrProjectNotFound
	}

	return p, nil
}
