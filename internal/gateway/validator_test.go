package gateway

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockCorrelationStore реализует CorrelationStore для тестов
type MockCorrelationStore struct {
	mock.Mock
}

func (m *MockCorrelationStore) Create(ctx context.Context, kind CallbackKind, subjectID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, kind, subjectID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockCorrelationStore) Consume(ctx context.Context, kind CallbackKind, token string) (string, error) {
	args := m.Called(ctx, kind, token)
	return args.String(0), args.Error(1)
}

const callbackURL = "https://app.example.com/callbacks/payment-token"

// signedParams подписывает параметры callback-а тем же способом,
// каким их подписал бы шлюз
func signedParams(t *testing.T, params map[string]string, secret string) map[string]string {
	t.Helper()

	u, err := url.Parse(callbackURL)
	require.NoError(t, err)

	signature, err := Sign(params, secret, http.MethodGet, u.Host, u.Path)
	require.NoError(t, err)

	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed[SignatureKey] = signature
	return signed
}

func TestCallbackValidator_ValidPaymentTokenCallback(t *testing.T) {
	ctx := context.Background()
	store := new(MockCorrelationStore)
	store.On("Consume", ctx, CallbackKindPaymentToken, "corr-1").Return("contribution-1", nil).Once()

	validator := NewCallbackValidator(zap.NewNop(), "secret-key", store)

	params := signedParams(t, map[string]string{
		"correlation": "corr-1",
		"tokenID":     "real-token",
		"status":      "SC",
	}, "secret-key")

	contributionID, tokenID, err := validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	require.NoError(t, err)
	assert.Equal(t, "contribution-1", contributionID)
	assert.Equal(t, "real-token", tokenID)
	store.AssertExpectations(t)
}

func TestCallbackValidator_UnknownCorrelation(t *testing.T) {
	ctx := context.Background()
	store := new(MockCorrelationStore)
	store.On("Consume", ctx, CallbackKindPaymentToken, "corr-unknown").Return("", ErrCorrelationNotFound).Once()

	validator := NewCallbackValidator(zap.NewNop(), "secret-key", store)

	params := signedParams(t, map[string]string{
		"correlation": "corr-unknown",
		"tokenID":     "real-token",
		"status":      "SC",
	}, "secret-key")

	_, _, err := validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	// Наружу уходит только обобщённая ошибка
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestCallbackValidator_StatusNotWhitelisted(t *testing.T) {
	ctx := context.Background()
	store := new(MockCorrelationStore)
	store.On("Consume", ctx, CallbackKindPaymentToken, "corr-1").Return("contribution-1", nil).Once()

	validator := NewCallbackValidator(zap.NewNop(), "secret-key", store)

	// Подпись валидна, но для платёжного токена допустим ровно один код,
	// и "SA" в него не входит
	params := signedParams(t, map[string]string{
		"correlation": "corr-1",
		"tokenID":     "real-token",
		"status":      "SA",
	}, "secret-key")

	_, _, err := validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestCallbackValidator_RecipientStatusWhitelist(t *testing.T) {
	ctx := context.Background()
	validator := NewCallbackValidator(zap.NewNop(), "secret-key", nil)

	// Для привязки получателя допустимы три кода
	for _, status := range []string{"SA", "SB", "SC"} {
		store := new(MockCorrelationStore)
		store.On("Consume", ctx, CallbackKindRecipient, "corr-1").Return("project-1", nil).Once()
		validator.store = store

		params := signedParams(t, map[string]string{
			"correlation": "corr-1",
			"tokenID":     "account-1",
			"status":      status,
		}, "secret-key")

		projectID, tokenID, err := validator.ValidateRecipientCallback(ctx, params, callbackURL)
		require.NoError(t, err, status)
		assert.Equal(t, "project-1", projectID)
		assert.Equal(t, "account-1", tokenID)
	}
}

func TestCallbackValidator_InvalidSignature(t *testing.T) {
	ctx := context.Background()
	store := new(MockCorrelationStore)
	store.On("Consume", ctx, CallbackKindPaymentToken, "corr-1").Return("contribution-1", nil).Once()

	validator := NewCallbackValidator(zap.NewNop(), "secret-key", store)

	params := signedParams(t, map[string]string{
		"correlation": "corr-1",
		"tokenID":     "real-token",
		"status":      "SC",
	}, "wrong-secret")

	_, _, err := validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestCallbackValidator_MissingTokenID(t *testing.T) {
	ctx := context.Background()
	store := new(MockCorrelationStore)
	store.On("Consume", ctx, CallbackKindPaymentToken, "corr-1").Return("contribution-1", nil).Once()

	validator := NewCallbackValidator(zap.NewNop(), "secret-key", store)

	params := signedParams(t, map[string]string{
		"correlation": "corr-1",
		"status":      "SC",
	}, "secret-key")

	_, _, err := validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}
