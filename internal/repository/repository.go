package repository

import (
	"context"
	"errors"
)

// ContributionStatus - статус контрибуции в жизненном цикле платежа
type ContributionStatus string

const (
	// StatusNone - контрибуция создана, платёж ещё не запускался
	StatusNone ContributionStatus = "NONE"
	// StatusPending - шлюз принял платёж, но ещё не завершил его
	StatusPending ContributionStatus = "PENDING"
	// StatusSuccess - платёж успешно завершён (терминальный)
	StatusSuccess ContributionStatus = "SUCCESS"
	// StatusFailure - платёж завершился неудачей (терминальный)
	StatusFailure ContributionStatus = "FAILURE"
	// StatusRetryPay - платёж упал с временной ошибкой, будет повторён
	StatusRetryPay ContributionStatus = "RETRY_PAY"
	// StatusRetryCancel - отмена упала с временной ошибкой, будет повторена
	StatusRetryCancel ContributionStatus = "RETRY_CANCEL"
	// StatusCancelled - контрибуция отменена (терминальный)
	StatusCancelled ContributionStatus = "CANCELLED"
)

// Terminal сообщает, является ли статус терминальным:
// из терминального статуса переходов больше нет
func (s ContributionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCancelled
}

const (
	// UndefinedPaymentToken - значение payment token до того,
	// как шлюз выдал настоящий токен через callback
	UndefinedPaymentToken = "TEMP"
	// UndefinedPaymentAccountID - значение счёта получателя проекта
	// до завершения привязки счёта на шлюзе
	UndefinedPaymentAccountID = "TEMP"
	// MinContributionAmount - минимальная сумма контрибуции в целых единицах
	MinContributionAmount = 1
)

// Contribution - доменная модель контрибуции.
// Amount хранится только как нормализованное целое число,
// TransactionID пустой, пока шлюз не подтвердил попытку платежа.
type Contribution struct {
	ID            string
	ProjectID     string
	UserID        string
	Amount        int64
	PaymentToken  string
	TransactionID string
	Status        ContributionStatus
	RetryCount    int
	CreatedAt     int64 // Unix timestamp для простоты
}

// Project - доменная модель проекта (цель сбора средств).
// PaymentAccountID - счёт получателя на шлюзе, до привязки равен sentinel-у.
type Project struct {
	ID               string
	UserID           string
	Name             string
	PaymentAccountID string
}

// Onboarded сообщает, привязан ли у проекта счёт получателя
func (p Project) Onboarded() bool {
	return p.PaymentAccountID != "" && p.PaymentAccountID != UndefinedPaymentAccountID
}

// ErrNotFound возвращается, когда контрибуция не найдена в хранилище
var ErrNotFound = errors.New("contribution not found")

// ErrProjectNotFound возвращается, когда проект не найден в хранилище
var ErrProjectNotFound = errors.New("project not found")

// ContributionRepository определяет интерфейс для работы с хранилищем контрибуций
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type ContributionRepository interface {
	// Save сохраняет контрибуцию (insert или update по ID)
	Save(ctx context.Context, c Contribution) error

	// GetByID получает контрибуцию по ID
	// Возвращает ErrNotFound, если контрибуция не найдена
	GetByID(ctx context.Context, id string) (Contribution, error)

	// ListByStatuses возвращает контрибуции в указанных статусах,
	// не более limit штук, старые первыми
	ListByStatuses(ctx context.Context, statuses []ContributionStatus, limit int) ([]Contribution, error)

	// HasActive сообщает, есть ли у пользователя активная контрибуция
	// в проект (активная = не RETRY_CANCEL, не FAILURE, не CANCELLED)
	HasActive(ctx context.Context, projectID, userID string) (bool, error)

	// Delete удаляет контрибуцию по ID
	Delete(ctx context.Context, id string) error
}

// ProjectRepository определяет интерфейс для работы с хранилищем проектов
type ProjectRepository interface {
	// Save сохраняет проект (insert или update по ID)
	Save(ctx context.Context, p Project) error

	// GetByID получает проект по ID
	// Возвращает ErrProjectNotFound, если проект не найден
	GetByID(ctx context.Context, id string) (Project, error)
}
