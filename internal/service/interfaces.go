package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/gateway"
	"github.com/ronaldocpontes/contribute/internal/repository"
)

// GatewayClient определяет интерфейс для вызовов платёжного шлюза
// Использует доменные типы - это делает service независимым от транспорта
type GatewayClient interface {
	// Pay выполняет списание по платёжному токену в пользу получателя
	Pay(ctx context.Context, paymentToken, recipientAccountID string, amount int64) (*gateway.Response, error)

	// CancelToken отменяет платёжный токен и незавершённый платёж по нему
	CancelToken(ctx context.Context, paymentToken string) (*gateway.Response, error)

	// GetTransactionStatus запрашивает текущий статус транзакции
	GetTransactionStatus(ctx context.Context, transactionID string) (*gateway.Response, error)

	// PaymentTokenURL строит redirect URL для выдачи платёжного токена (без I/O)
	PaymentTokenURL(returnURL string, amount int64) (string, error)

	// RecipientOnboardingURL строит redirect URL для привязки счёта получателя (без I/O)
	RecipientOnboardingURL(returnURL string) (string, error)
}

// CallbackValidator определяет интерфейс проверки входящих callback-ов
type CallbackValidator interface {
	// ValidateRecipientCallback возвращает id проекта и tokenID счёта получателя
	ValidateRecipientCallback(ctx context.Context, params map[string]string, callbackURL string) (projectID, tokenID string, err error)

	// ValidatePaymentTokenCallback возвращает id контрибуции и платёжный токен
	ValidatePaymentTokenCallback(ctx context.Context, params map[string]string, callbackURL string) (contributionID, tokenID string, err error)
}

// Notifier определяет интерфейс уведомлений о жизненном цикле контрибуции.
// Все отправки best-effort: ошибка отправки логируется и никогда
// не откатывает переход состояния.
type Notifier interface {
	// ContributionSucceeded - контрибуция успешно оплачена
	ContributionSucceeded(ctx context.Context, c repository.Contribution) error

	// ContributionCancelled - контрибуция отменена
	ContributionCancelled(ctx context.Context, c repository.Contribution) error

	// ProjectRemoved - проект удалён, контрибуция будет отменена
	ProjectRemoved(ctx context.Context, c repository.Contribution) error

	// OperatorAlert - ситуация, требующая ручного разбора оператором
	OperatorAlert(ctx context.Context, c repository.Contribution, reason string) error
}

// NopNotifier - no-op реализация Notifier (для тестов и локального запуска
// без Kafka)
type NopNotifier struct {
	logger *zap.Logger
}

// NewNopNotifier создаёт no-op notifier
func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) ContributionSucceeded(ctx context.Context, c repository.Contribution) error {
	n.logger.Debug("nop notifier: contribution succeeded", zap.String("contribution_id", c.ID))
	return nil
}

func (n *NopNotifier) ContributionCancelled(ctx context.Context, c repository.Contribution) error {
	n.logger.Debug("nop notifier: contribution cancelled", zap.String("contribution_id", c.ID))
	return nil
}

func (n *NopNotifier) ProjectRemoved(ctx context.Context, c repository.Contribution) error {
	n.logger.Debug("nop notifier: project removed", zap.String("contribution_id", c.ID))
	return nil
}

func (n *NopNotifier) OperatorAlert(ctx context.Context, c repository.Contribution, reason string) error {
	n.logger.Debug("nop notifier: operator alert",
		zap.String("contribution_id", c.ID),
		zap.String("reason", reason),
	)
	return nil
}
