package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CallbackKind - тип входящего callback от шлюза
type CallbackKind string

const (
	// CallbackKindRecipient - возврат с привязки счёта получателя
	CallbackKindRecipient CallbackKind = "recipient"
	// CallbackKindPaymentToken - возврат с выдачи платёжного токена
	CallbackKindPaymentToken CallbackKind = "payment_token"
)

// ErrCallbackRejected - единственная ошибка, которую валидатор отдаёт наружу.
// Какая именно проверка не прошла, наружу не сообщается: подробный ответ
// дал бы атакующему оракул для подбора подписи.
var ErrCallbackRejected = errors.New("callback could not be verified")

// ErrCorrelationNotFound возвращается хранилищем корреляционных токенов,
// когда токен не найден, уже использован или истёк
var ErrCorrelationNotFound = errors.New("correlation token not found")

// CorrelationStore хранит короткоживущие корреляционные токены:
// случайный id выдаётся клиенту перед redirect на шлюз, а на callback
// ищется и атомарно инвалидируется (одноразовое использование)
type CorrelationStore interface {
	// Create сохраняет subjectID под новым случайным токеном с TTL
	Create(ctx context.Context, kind CallbackKind, subjectID string, ttl time.Duration) (string, error)

	// Consume возвращает subjectID и атомарно удаляет токен.
	// Возвращает ErrCorrelationNotFound, если токена нет или kind не совпал.
	Consume(ctx context.Context, kind CallbackKind, token string) (string, error)
}

// Наборы допустимых кодов status для каждого типа callback.
// Для привязки получателя шлюз возвращает один из трёх успешных кодов,
// для платёжного токена допустим ровно один код.
var (
	recipientStatusWhitelist    = map[string]bool{"SA": true, "SB": true, "SC": true}
	paymentTokenStatusWhitelist = map[string]bool{"SC": true}
)

// CallbackValidator проверяет подлинность входящих redirect/callback запросов:
// корреляционный токен + whitelist статусов + подпись по точному URL callback-а.
// Все отказы неотличимы друг от друга снаружи.
type CallbackValidator struct {
	logger    *zap.Logger
	secretKey string
	store     CorrelationStore
}

// NewCallbackValidator создаёт новый валидатор callback-ов
func NewCallbackValidator(logger *zap.Logger, secretKey string, store CorrelationStore) *CallbackValidator {
	return &CallbackValidator{
		logger:    logger,
		secretKey: secretKey,
		store:     store,
	}
}

// ValidateRecipientCallback проверяет callback привязки счёта получателя.
// Возвращает id проекта (из корреляционного токена) и tokenID счёта.
func (v *CallbackValidator) ValidateRecipientCallback(ctx context.Context, params map[string]string, callbackURL string) (projectID, tokenID string, err error) {
	return v.validate(ctx, CallbackKindRecipient, recipientStatusWhitelist, params, callbackURL)
}

// ValidatePaymentTokenCallback проверяет callback выдачи платёжного токена.
// Возвращает id контрибуции (из корреляционного токена) и сам токен.
func (v *CallbackValidator) ValidatePaymentTokenCallback(ctx context.Context, params map[string]string, callbackURL string) (contributionID, tokenID string, err error) {
	return v.validate(ctx, CallbackKindPaymentToken, paymentTokenStatusWhitelist, params, callbackURL)
}

// validate выполняет все проверки по порядку. Любой отказ - ErrCallbackRejected,
// подробности только в логах.
func (v *CallbackValidator) validate(ctx context.Context, kind CallbackKind, whitelist map[string]bool, params map[string]string, callbackURL string) (string, string, error) {
	// 1. Корреляционная проверка: токен существует, ожидает именно эту
	// операцию и используется ровно один раз
	subjectID, err := v.store.Consume(ctx, kind, params["correlation"])
	if err != nil {
		v.logger.Warn("callback rejected: correlation check failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return "", "", ErrCallbackRejected
	}

	// 2. Шлюз обязан вернуть tokenID
	tokenID := params["tokenID"]
	if tokenID == "" {
		v.logger.Warn("callback rejected: tokenID is missing",
			zap.String("kind", string(kind)),
		)
		return "", "", ErrCallbackRejected
	}

	// 3. Код статуса должен входить в фиксированный whitelist
	if !whitelist[params["status"]] {
		v.logger.Warn("callback rejected: status not allowed",
			zap.String("kind", string(kind)),
			zap.String("status", params["status"]),
		)
		return "", "", ErrCallbackRejected
	}

	// 4. Подпись проверяется по полному набору параметров и точному URL
	if !Verify(params, params[SignatureKey], v.secretKey, callbackURL, http.MethodGet) {
		v.logger.Warn("callback rejected: signature verification failed",
			zap.String("kind", string(kind)),
		)
		return "", "", ErrCallbackRejected
	}

	return subjectID, tokenID, nil
}
