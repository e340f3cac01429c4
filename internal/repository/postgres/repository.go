package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// Repository реализует ContributionRepository и ProjectRepository
// используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// Save сохраняет контрибуцию в PostgreSQL (upsert по id)
func (r *Repository) Save(ctx context.Context, c repository.Contribution) error {
	// Если CreatedAt == 0, используем DEFAULT now() из БД
	if c.CreatedAt > 0 {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO contributions (id, project_id, user_id, amount, payment_token, transaction_id, status, retry_count, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE SET
			   payment_token = EXCLUDED.payment_token,
			   transaction_id = EXCLUDED.transaction_id,
			   status = EXCLUDED.status,
			   retry_count = EXCLUDED.retry_count`,
			c.ID, c.ProjectID, c.UserID, c.Amount, c.PaymentToken, nullIfEmpty(c.TransactionID), string(c.Status), c.RetryCount, time.Unix(c.CreatedAt, 0))
		return err
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO contributions (id, project_id, user_id, amount, payment_token, transaction_id, status, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   payment_token = EXCLUDED.payment_token,
		   transaction_id = EXCLUDED.transaction_id,
		   status = EXCLUDED.status,
		   retry_count = EXCLUDED.retry_count`,
		c.ID, c.ProjectID, c.UserID, c.Amount, c.PaymentToken, nullIfEmpty(c.TransactionID), string(c.Status), c.RetryCount)
	return err
}

// GetByID получает контрибуцию по ID из PostgreSQL
func (r *Repository) GetByID(ctx context.Context, id string) (repository.Contribution, error) {
	var c repository.Contribution
	var transactionID *string
	var status string
	var createdAt time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, user_id, amount, payment_token, transaction_id, status, retry_count, created_at
		 FROM contributions
		 WHERE id = $1`,
		id).Scan(&c.ID, &c.ProjectID, &c.UserID, &c.Amount, &c.PaymentToken, &transactionID, &status, &c.RetryCount, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Contribution{}, repository.ErrNotFound
		}
		return repository.Contribution{}, err
	}

	if transactionID != nil {
		c.TransactionID = *transactionID
	}
	c.Status = repository.ContributionStatus(status)
	c.CreatedAt = createdAt.Unix()

	return c, nil
}

// ListByStatuses возвращает контрибуции в указанных статусах, старые первыми
func (r *Repository) ListByStatuses(ctx context.Context, statuses []repository.ContributionStatus, limit int) ([]repository.Contribution, error) {
	strStatuses := make([]string, 0, len(statuses))
	for _, s := range statuses {
		strStatuses = append(strStatuses, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, user_id, amount, payment_token, transaction_id, status, retry_count, created_at
		 FROM contributions
		 WHERE status = ANY($1)
		 ORDER BY created_at
		 LIMIT $2`,
		strStatuses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]repository.Contribution, 0)
	for rows.Next() {
		var c repository.Contribution
		var transactionID *string
		var status string
		var createdAt time.Time

		if err := rows.Scan(&c.ID, &c.ProjectID, &c.UserID, &c.Amount, &c.PaymentToken, &transactionID, &status, &c.RetryCount, &createdAt); err != nil {
			return nil, err
		}

		if transactionID != nil {
			c.TransactionID = *transactionID
		}
		c.Status = repository.ContributionStatus(status)
		c.CreatedAt = createdAt.Unix()

		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// HasActive проверяет, есть ли у пользователя активная контрибуция в проект
func (r *Repository) HasActive(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM contributions
		   WHERE project_id = $1 AND user_id = $2
		     AND status NOT IN ($3, $4, $5)
		 )`,
		projectID, userID,
		string(repository.StatusRetryCancel), string(repository.StatusFailure), string(repository.StatusCancelled)).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Delete удаляет контрибуцию по ID
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM contributions WHERE id = $1`, id)
	return err
}

// nullIfEmpty конвертирует пустую строку в NULL для nullable колонок
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
