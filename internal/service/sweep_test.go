package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/gateway"
	"github.com/ronaldocpontes/contribute/internal/repository"
)

func newTestSweeper(f *fixture) *Sweeper {
	return NewSweeper(zap.NewNop(), f.contributions, f.svc, time.Hour, 100, 2)
}

func TestSweeper_PendingResolvedToFailure(t *testing.T) {
	// Сценарий: PENDING контрибуция, шлюз сообщает что транзакция упала
	ctx := context.Background()
	f := newFixture()

	c := f.seedContribution(ctx, repository.StatusPending, 0)
	c.TransactionID = "T1"
	require.NoError(t, f.contributions.Save(ctx, c))

	f.gw.On("GetTransactionStatus", ctx, "T1").Return(&gateway.Response{
		GetTransactionStatusResult: &gateway.TxStatusResult{
			TransactionStatus: gateway.TransactionStatusFailure,
		},
	}, nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	stored, err := f.contributions.GetByID(ctx, "contribution-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusFailure, stored.Status)
	assert.Equal(t, "T1", stored.TransactionID) // transaction id не меняется
	assert.Empty(t, f.notifier.recorded())      // уведомления об успехе нет
	f.gw.AssertExpectations(t)
}

func TestSweeper_PendingResolvedToSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	c := f.seedContribution(ctx, repository.StatusPending, 0)
	c.TransactionID = "T1"
	require.NoError(t, f.contributions.Save(ctx, c))

	f.gw.On("GetTransactionStatus", ctx, "T1").Return(&gateway.Response{
		GetTransactionStatusResult: &gateway.TxStatusResult{
			TransactionStatus: gateway.TransactionStatusSuccess,
		},
	}, nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	stored, err := f.contributions.GetByID(ctx, "contribution-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusSuccess, stored.Status)
	assert.Equal(t, []string{"succeeded:contribution-1"}, f.notifier.recorded())
}

func TestSweeper_StillPendingIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	c := f.seedContribution(ctx, repository.StatusPending, 0)
	c.TransactionID = "T1"
	require.NoError(t, f.contributions.Save(ctx, c))

	f.gw.On("GetTransactionStatus", ctx, "T1").Return(&gateway.Response{
		GetTransactionStatusResult: &gateway.TxStatusResult{
			TransactionStatus: gateway.TransactionStatusPending,
		},
	}, nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	stored, err := f.contributions.GetByID(ctx, "contribution-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, stored.Status)
}

func TestSweeper_RetriesPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seedProject(ctx, "account-1")
	f.seedContribution(ctx, repository.StatusRetryPay, 1)

	f.gw.On("Pay", ctx, "token-1", "account-1", int64(1000)).Return(paySuccess("T5"), nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	stored, err := f.contributions.GetByID(ctx, "contribution-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusSuccess, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestSweeper_RetriesCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seedContribution(ctx, repository.StatusRetryCancel, 1)

	f.gw.On("CancelToken", ctx, "token-1").Return(&gateway.Response{}, nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	stored, err := f.contributions.GetByID(ctx, "contribution-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCancelled, stored.Status)
}

func TestSweeper_OneFailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedProject(ctx, "account-1")

	// Первая контрибуция: запрос статуса падает с транспортной ошибкой
	broken := repository.Contribution{
		ID:            "broken",
		ProjectID:     "project-1",
		UserID:        "user-1",
		Amount:        1000,
		PaymentToken:  "token-broken",
		TransactionID: "T-broken",
		Status:        repository.StatusPending,
		CreatedAt:     time.Now().Add(-time.Hour).Unix(),
	}
	require.NoError(t, f.contributions.Save(ctx, broken))

	// Вторая контрибуция: обычный повтор платежа
	healthy := repository.Contribution{
		ID:           "healthy",
		ProjectID:    "project-1",
		UserID:       "user-2",
		Amount:       500,
		PaymentToken: "token-healthy",
		Status:       repository.StatusRetryPay,
		CreatedAt:    time.Now().Unix(),
	}
	require.NoError(t, f.contributions.Save(ctx, healthy))

	f.gw.On("GetTransactionStatus", ctx, "T-broken").Return(nil, errors.New("timeout")).Once()
	f.gw.On("Pay", ctx, "token-healthy", "account-1", int64(500)).Return(paySuccess("T6"), nil).Once()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))

	// Ошибка одной контрибуции не помешала обработать другую
	stored, err := f.contributions.GetByID(ctx, "healthy")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusSuccess, stored.Status)

	unchanged, err := f.contributions.GetByID(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, unchanged.Status)
	f.gw.AssertExpectations(t)
}

func TestSweeper_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sweeper := newTestSweeper(f)
	require.NoError(t, sweeper.processBatch(ctx))
	f.gw.AssertNotCalled(t, "Pay")
	f.gw.AssertNotCalled(t, "CancelToken")
	f.gw.AssertNotCalled(t, "GetTransactionStatus")
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	f := newFixture()
	sweeper := newTestSweeper(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sweeper.Start(ctx)
	assert.NoError(t, err)
}
