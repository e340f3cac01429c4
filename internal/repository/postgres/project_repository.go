package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// ProjectRepository реализует repository.ProjectRepository используя PostgreSQL
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository создаёт новый PostgreSQL репозиторий проектов
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{
		pool: pool,
	}
}

// Save сохраняет проект в PostgreSQL (upsert по id)
func (r *ProjectRepository) Save(ctx context.Context, p repository.Project) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, name, payment_account_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   name = EXCLUDED.name,
		   payment_account_id = EXCLUDED.payment_account_id`,
		p.ID, p.UserID, p.Name, p.PaymentAccountID)
	return err
}

// GetByID получает проект по ID из PostgreSQL
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (repository.Project, error) {
	var p repository.Project
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, payment_account_id
		 FROM projects
		 WHERE id = $1`,
		id).Scan(&p.ID, &p.UserID, &p.Name, &p.PaymentAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Project{}, repository.ErrProjectNotFound
		}
		return repository.Project{}, err
	}

	return p, nil
}
