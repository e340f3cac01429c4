package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronaldocpontes/contribute/internal/gateway"
	"github.com/ronaldocpontes/contribute/internal/repository"
)

func TestRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	c := repository.Contribution{
		ID:           "c1",
		ProjectID:    "p1",
		UserID:       "u1",
		Amount:       1000,
		PaymentToken: repository.UndefinedPaymentToken,
		Status:       repository.StatusNone,
	}
	require.NoError(t, repo.Save(ctx, c))

	stored, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.Amount)
	assert.NotZero(t, stored.CreatedAt) // проставляется при первом сохранении

	// Update по тому же id
	stored.Status = repository.StatusPending
	require.NoError(t, repo.Save(ctx, stored))

	updated, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, updated.Status)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo := NewRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRepository_ListByStatuses(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	now := time.Now().Unix()
	seed := []repository.Contribution{
		{ID: "c1", Status: repository.StatusPending, CreatedAt: now - 30},
		{ID: "c2", Status: repository.StatusRetryPay, CreatedAt: now - 20},
		{ID: "c3", Status: repository.StatusSuccess, CreatedAt: now - 10},
		{ID: "c4", Status: repository.StatusPending, CreatedAt: now},
	}
	for _, c := range seed {
		require.NoError(t, repo.Save(ctx, c))
	}

	result, err := repo.ListByStatuses(ctx, []repository.ContributionStatus{
		repository.StatusPending,
		repository.StatusRetryPay,
	}, 10)
	require.NoError(t, err)

	// Старые первыми, терминальные не попадают
	require.Len(t, result, 3)
	assert.Equal(t, "c1", result[0].ID)
	assert.Equal(t, "c2", result[1].ID)
	assert.Equal(t, "c4", result[2].ID)

	// Limit режет хвост
	limited, err := repo.ListByStatuses(ctx, []repository.ContributionStatus{
		repository.StatusPending,
		repository.StatusRetryPay,
	}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRepository_HasActive(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	require.NoError(t, repo.Save(ctx, repository.Contribution{
		ID: "c1", ProjectID: "p1", UserID: "u1", Status: repository.StatusPending,
	}))
	require.NoError(t, repo.Save(ctx, repository.Contribution{
		ID: "c2", ProjectID: "p1", UserID: "u2", Status: repository.StatusCancelled,
	}))

	active, err := repo.HasActive(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.True(t, active)

	// CANCELLED не считается активной
	active, err = repo.HasActive(ctx, "p1", "u2")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = repo.HasActive(ctx, "p1", "u3")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	require.NoError(t, repo.Save(ctx, repository.Contribution{ID: "c1"}))
	require.NoError(t, repo.Delete(ctx, "c1"))

	_, err := repo.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)

	p := repository.Project{
		ID:               "p1",
		UserID:           "u1",
		Name:             "Test",
		PaymentAccountID: repository.UndefinedPaymentAccountID,
	}
	require.NoError(t, repo.Save(ctx, p))

	stored, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, stored.Onboarded())

	stored.PaymentAccountID = "account-1"
	require.NoError(t, repo.Save(ctx, stored))

	updated, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, updated.Onboarded())
}

func TestCorrelationStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewCorrelationStore()

	token, err := store.Create(ctx, gateway.CallbackKindPaymentToken, "c1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subjectID, err := store.Consume(ctx, gateway.CallbackKindPaymentToken, token)
	require.NoError(t, err)
	assert.Equal(t, "c1", subjectID)

	// Второе использование того же токена отвергается
	_, err = store.Consume(ctx, gateway.CallbackKindPaymentToken, token)
	assert.ErrorIs(t, err, gateway.ErrCorrelationNotFound)
}

func TestCorrelationStore_KindMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewCorrelationStore()

	token, err := store.Create(ctx, gateway.CallbackKindRecipient, "p1", time.Minute)
	require.NoError(t, err)

	// Токен привязки получателя нельзя употребить как платёжный
	_, err = store.Consume(ctx, gateway.CallbackKindPaymentToken, token)
	assert.ErrorIs(t, err, gateway.ErrCorrelationNotFound)
}

func TestCorrelationStore_Expired(t *testing.T) {
	ctx := context.Background()
	store := NewCorrelationStore()

	token, err := store.Create(ctx, gateway.CallbackKindPaymentToken, "c1", -time.Second)
	require.NoError(t, err)

	_, err = store.Consume(ctx, gateway.CallbackKindPaymentToken, token)
	assert.ErrorIs(t, err, gateway.ErrCorrelationNotFound)
}
