package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/gateway"
	"github.com/ronaldocpontes/contribute/internal/repository"
)

// ErrInvalidTransition возвращается при попытке выполнить операцию
// из состояния, из которого она недопустима
var ErrInvalidTransition = errors.New("operation is not valid for current contribution status")

// ErrProjectNotOnboarded возвращается при попытке контрибуции в проект,
// у которого ещё не привязан счёт получателя
var ErrProjectNotOnboarded = errors.New("project has no payment account linked")

// ErrActiveContributionExists возвращается, когда у пользователя уже есть
// активная контрибуция в этот проект
var ErrActiveContributionExists = errors.New("user already has an active contribution to this project")

// ContributionService содержит state machine жизненного цикла контрибуции.
// Все исходы вызовов шлюза разрешаются внутри методов переходов:
// вызывающий код видит итоговое состояние, а не транспортные ошибки.
// Переходы одной контрибуции сериализуются по её id.
type ContributionService struct {
	logger         *zap.Logger
	contributions  repository.ContributionRepository
	projects       repository.ProjectRepository
	correlation    gateway.CorrelationStore
	gw             GatewayClient
	validator      CallbackValidator
	notifier       Notifier
	maxRetries     int
	correlationTTL time.Duration
	locks          *keyedMutex
}

// NewContributionService создаёт новый экземпляр ContributionService
// Принимает интерфейсы как зависимости - это позволяет легко подменять их в тестах
func NewContributionService(
	logger *zap.Logger,
	contributions repository.ContributionRepository,
	projects repository.ProjectRepository,
	correlation gateway.CorrelationStore,
	gw GatewayClient,
	validator CallbackValidator,
	notifier Notifier,
	maxRetries int, //maxRetries - предел retry_count, после которого RETRY_* эскалируется в FAILURE
	correlationTTL time.Duration, //correlationTTL - время жизни корреляционного токена callback-а
) *ContributionService {
	return &ContributionService{
		logger:         logger,
		contributions:  contributions,
		projects:       projects,
		correlation:    correlation,
		gw:             gw,
		validator:      validator,
		notifier:       notifier,
		maxRetries:     maxRetries,
		correlationTTL: correlationTTL,
		locks:          newKeyedMutex(),
	}
}

// CreateContributionInput содержит входные данные для создания контрибуции
type CreateContributionInput struct {
	ProjectID string
	UserID    string
	Amount    string // сумма как её ввёл пользователь, например "1,000"
	ReturnURL string // куда шлюз вернёт пользователя после выдачи токена
}

// CreateContributionOutput содержит результат создания контрибуции
type CreateContributionOutput struct {
	ContributionID string
	RedirectURL    string // URL шлюза, куда отправить пользователя
}

// CreateContribution создаёт контрибуцию в статусе NONE и возвращает
// redirect URL шлюза для выдачи платёжного токена.
// У пользователя может быть не больше одной активной контрибуции в проект.
func (s *ContributionService) CreateContribution(ctx context.Context, input CreateContributionInput) (*CreateContributionOutput, error) {
	amount, err := ParseAmount(input.Amount)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.Onboarded() {
		return nil, ErrProjectNotOnboarded
	}

	// Инвариант: одна активная контрибуция на пользователя и проект
	active, err := s.contributions.HasActive(ctx, input.ProjectID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active contributions: %w", err)
	}
	if active {
		return nil, ErrActiveContributionExists
	}

	c := repository.Contribution{
		ID:           uuid.NewString(),
		ProjectID:    input.ProjectID,
		UserID:       input.UserID,
		Amount:       amount,
		PaymentToken: repository.UndefinedPaymentToken,
		Status:       repository.StatusNone,
		RetryCount:   0,
	}

	if err := s.contributions.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save contribution: %w", err)
	}

	// Корреляционный токен поедет в returnURL и вернётся в callback-е
	token, err := s.correlation.Create(ctx, gateway.CallbackKindPaymentToken, c.ID, s.correlationTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create correlation token: %w", err)
	}

	returnURL, err := appendCorrelation(input.ReturnURL, token)
	if err != nil {
		return nil, err
	}

	redirect, err := s.gw.PaymentTokenURL(returnURL, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment token url: %w", err)
	}

	s.logger.Info("contribution created",
		zap.String("contribution_id", c.ID),
		zap.String("project_id", c.ProjectID),
		zap.String("user_id", c.UserID),
		zap.Int64("amount", amount),
	)

	return &CreateContributionOutput{
		ContributionID: c.ID,
		RedirectURL:    redirect,
	}, nil
}

// StartRecipientOnboarding возвращает redirect URL шлюза для привязки
// счёта получателя к проекту
func (s *ContributionService) StartRecipientOnboarding(ctx context.Context, projectID, returnURL string) (string, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return "", err
	}

	token, err := s.correlation.Create(ctx, gateway.CallbackKindRecipient, projectID, s.correlationTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create correlation token: %w", err)
	}

	withToken, err := appendCorrelation(returnURL, token)
	if err != nil {
		return "", err
	}

	redirect, err := s.gw.RecipientOnboardingURL(withToken)
	if err != nil {
		return "", fmt.Errorf("failed to build onboarding url: %w", err)
	}

	return redirect, nil
}

// HandlePaymentTokenCallback обрабатывает callback выдачи платёжного токена:
// проверяет подлинность, записывает настоящий токен вместо sentinel-а
// и сразу запускает исполнение платежа
func (s *ContributionService) HandlePaymentTokenCallback(ctx context.Context, params map[string]string, callbackURL string) (repository.Contribution, error) {
	id, tokenID, err := s.validator.ValidatePaymentTokenCallback(ctx, params, callbackURL)
	if err != nil {
		return repository.Contribution{}, err
	}

	unlock := s.locks.Lock(id)

	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		unlock()
		return repository.Contribution{}, err
	}

	c.PaymentToken = tokenID
	if err := s.contributions.Save(ctx, c); err != nil {
		unlock()
		return c, fmt.Errorf("failed to persist payment token: %w", err)
	}

	// Освобождаем lock до ExecutePayment - он захватит его сам
	unlock()

	return s.ExecutePayment(ctx, id)
}

// HandleRecipientCallback обрабатывает callback привязки счёта получателя:
// проверяет подлинность и записывает счёт в проект
func (s *ContributionService) HandleRecipientCallback(ctx context.Context, params map[string]string, callbackURL string) (repository.Project, error) {
	projectID, tokenID, err := s.validator.ValidateRecipientCallback(ctx, params, callbackURL)
	if err != nil {
		return repository.Project{}, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return repository.Project{}, err
	}

	project.PaymentAccountID = tokenID
	if err := s.projects.Save(ctx, project); err != nil {
		return project, fmt.Errorf("failed to persist payment account: %w", err)
	}

	s.logger.Info("project payment account linked",
		zap.String("project_id", project.ID),
	)

	return project, nil
}

// ExecutePayment выполняет платёж по контрибуции.
// Допустим из NONE (первая попытка) и RETRY_PAY (повтор).
// Исход вызова шлюза определяет новое состояние; новое состояние
// сохраняется всегда, ошибка сохранения поднимается наверх.
func (s *ContributionService) ExecutePayment(ctx context.Context, id string) (repository.Contribution, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return repository.Contribution{}, err
	}

	// Пока контрибуция в PENDING или ждёт ответа, второй Pay отправлять
	// нельзя - иначе возможно двойное списание
	if c.Status != repository.StatusNone && c.Status != repository.StatusRetryPay {
		return c, ErrInvalidTransition
	}

	project, err := s.projects.GetByID(ctx, c.ProjectID)
	if err != nil {
		return c, err
	}

	resp, err := s.gw.Pay(ctx, c.PaymentToken, project.PaymentAccountID, c.Amount)
	if err != nil {
		// Транспортный сбой классифицируется как UNKNOWN:
		// платёж мог уйти, сам повторять нельзя - отдаём на ручной разбор
		s.logger.Error("payment transport failure",
			zap.Error(err),
			zap.String("contribution_id", c.ID),
		)
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		if saveErr := s.contributions.Save(ctx, c); saveErr != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", saveErr)
		}
		s.alertOperator(ctx, c, fmt.Sprintf("payment transport failure: %v", err))
		return c, nil
	}

	switch payTransactionStatus(resp) {
	case repository.StatusSuccess:
		c.Status = repository.StatusSuccess
		c.RetryCount = 0
		if resp.PayResult != nil {
			c.TransactionID = resp.PayResult.TransactionID
		}
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.logger.Info("payment succeeded",
			zap.String("contribution_id", c.ID),
			zap.String("transaction_id", c.TransactionID),
		)
		s.bestEffort(s.notifier.ContributionSucceeded(ctx, c), "contribution_succeeded", c.ID)
		return c, nil

	case repository.StatusPending:
		c.Status = repository.StatusPending
		c.RetryCount = 0
		if resp.PayResult != nil {
			c.TransactionID = resp.PayResult.TransactionID
		}
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.logger.Info("payment pending",
			zap.String("contribution_id", c.ID),
			zap.String("transaction_id", c.TransactionID),
		)
		return c, nil
	}

	// Платёж не прошёл - классифицируем ошибку шлюза
	ge, err := resp.GatewayError()
	if err != nil {
		// Конверт с ошибкой есть, но кода в нём нет: фатально, наверх
		return c, err
	}

	switch {
	case ge.Retriable:
		c.RetryCount++
		if c.RetryCount > s.maxRetries {
			// Предел повторов исчерпан - эскалируем в FAILURE
			c.Status = repository.StatusFailure
			c.RetryCount = 0
			if err := s.contributions.Save(ctx, c); err != nil {
				return c, fmt.Errorf("failed to persist contribution: %w", err)
			}
			s.alertOperator(ctx, c, fmt.Sprintf("payment retries exhausted, last error %s", ge.Code))
			return c, nil
		}
		c.Status = repository.StatusRetryPay
		s.logger.Warn("payment failed with retriable error",
			zap.String("contribution_id", c.ID),
			zap.String("error_code", ge.Code),
			zap.Int("retry_count", c.RetryCount),
		)

	case ge.Classification == gateway.ClassUnknown:
		// Незнакомый код: консервативно FAILURE + ручной разбор
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		s.alertOperator(ctx, c, fmt.Sprintf("payment failed with unknown gateway error %s", ge.Code))

	default:
		// Известная невосстановимая ошибка
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		s.alertOperator(ctx, c, fmt.Sprintf("payment failed with fatal gateway error %s", ge.Code))
	}

	if err := s.contributions.Save(ctx, c); err != nil {
		return c, fmt.Errorf("failed to persist contribution: %w", err)
	}

	return c, nil
}

// Cancel отменяет контрибуцию. Допустим из любого нетерминального состояния;
// право отменить уже списанный платёж определяет сам шлюз своим ответом.
func (s *ContributionService) Cancel(ctx context.Context, id string) (repository.Contribution, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return repository.Contribution{}, err
	}

	if c.Status.Terminal() {
		return c, ErrInvalidTransition
	}

	resp, err := s.gw.CancelToken(ctx, c.PaymentToken)
	if err != nil {
		// Таймаут отмены: отмена могла не дойти, консервативно повторяем,
		// а не считаем её прошедшей - иначе деньги повиснут
		s.logger.Warn("cancel transport failure, will retry",
			zap.Error(err),
			zap.String("contribution_id", c.ID),
		)
		return s.retryCancel(ctx, c, "")
	}

	if !resp.HasErrors() {
		c.Status = repository.StatusCancelled
		c.RetryCount = 0
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.logger.Info("contribution cancelled",
			zap.String("contribution_id", c.ID),
		)
		s.bestEffort(s.notifier.ContributionCancelled(ctx, c), "contribution_cancelled", c.ID)
		return c, nil
	}

	ge, err := resp.GatewayError()
	if err != nil {
		return c, err
	}

	switch {
	case ge.Retriable:
		return s.retryCancel(ctx, c, "")

	case ge.Classification == gateway.ClassUnknown:
		// Незнакомый код при отмене: оставить состояние как есть нельзя,
		// повторяем отмену и зовём оператора
		return s.retryCancel(ctx, c, fmt.Sprintf("cancel failed with unknown gateway error %s", ge.Code))

	default:
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.alertOperator(ctx, c, fmt.Sprintf("cancel failed with fatal gateway error %s", ge.Code))
		return c, nil
	}
}

// retryCancel переводит контрибуцию в RETRY_CANCEL с инкрементом счётчика;
// при исчерпании предела повторов эскалирует в FAILURE.
// Непустой alertReason дополнительно уведомляет оператора.
func (s *ContributionService) retryCancel(ctx context.Context, c repository.Contribution, alertReason string) (repository.Contribution, error) {
	c.RetryCount++
	if c.RetryCount > s.maxRetries {
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.alertOperator(ctx, c, "cancel retries exhausted")
		return c, nil
	}

	c.Status = repository.StatusRetryCancel
	if err := s.contributions.Save(ctx, c); err != nil {
		return c, fmt.Errorf("failed to persist contribution: %w", err)
	}

	if alertReason != "" {
		s.alertOperator(ctx, c, alertReason)
	}

	return c, nil
}

// CheckStatus запрашивает у шлюза статус транзакции контрибуции.
// Read-only: состояние контрибуции НЕ изменяется, применить результат
// должен вызывающий код через ApplyCheckedStatus.
// Без чистого ответа со статусом никогда не сообщает SUCCESS.
func (s *ContributionService) CheckStatus(ctx context.Context, id string) (repository.ContributionStatus, error) {
	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	// Без transaction id спрашивать нечего - консервативно FAILURE
	if c.TransactionID == "" {
		return repository.StatusFailure, nil
	}

	resp, err := s.gw.GetTransactionStatus(ctx, c.TransactionID)
	if err != nil {
		// Транспортный сбой: статус неизвестен, решение не принимаем
		return "", fmt.Errorf("status query failed: %w", err)
	}

	if resp.HasErrors() || resp.GetTransactionStatusResult == nil || resp.GetTransactionStatusResult.TransactionStatus == "" {
		return repository.StatusFailure, nil
	}

	return statusFromTransaction(resp.GetTransactionStatusResult.TransactionStatus), nil
}

// ApplyCheckedStatus применяет статус, полученный через CheckStatus,
// по тем же правилам, что success/failure ветки ExecutePayment.
// Допустим только из PENDING.
func (s *ContributionService) ApplyCheckedStatus(ctx context.Context, id string, checked repository.ContributionStatus) (repository.Contribution, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return repository.Contribution{}, err
	}

	if c.Status != repository.StatusPending {
		return c, ErrInvalidTransition
	}

	switch checked {
	case repository.StatusSuccess:
		c.Status = repository.StatusSuccess
		c.RetryCount = 0
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.logger.Info("pending contribution resolved to success",
			zap.String("contribution_id", c.ID),
		)
		s.bestEffort(s.notifier.ContributionSucceeded(ctx, c), "contribution_succeeded", c.ID)

	case repository.StatusFailure:
		c.Status = repository.StatusFailure
		c.RetryCount = 0
		if err := s.contributions.Save(ctx, c); err != nil {
			return c, fmt.Errorf("failed to persist contribution: %w", err)
		}
		s.logger.Info("pending contribution resolved to failure",
			zap.String("contribution_id", c.ID),
		)

	default:
		// Всё ещё PENDING - изменений нет
	}

	return c, nil
}

// Delete логически уничтожает контрибуцию (например, при удалении проекта).
// Жёсткий порядок: сначала уведомить контрибьютора, затем попытка отмены,
// и только после завершения попытки - удаление записи.
func (s *ContributionService) Delete(ctx context.Context, id string) error {
	c, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// 1. Уведомление контрибьютора идёт первым
	s.bestEffort(s.notifier.ProjectRemoved(ctx, c), "project_removed", c.ID)

	// 2. Затем отмена незавершённого платежа; её исход
	// на само удаление не влияет
	if !c.Status.Terminal() {
		if _, err := s.Cancel(ctx, id); err != nil {
			s.logger.Warn("cancel during delete failed",
				zap.Error(err),
				zap.String("contribution_id", c.ID),
			)
		}
	}

	// 3. Удаление записи только после завершения попытки отмены
	if err := s.contributions.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete contribution: %w", err)
	}

	s.logger.Info("contribution deleted",
		zap.String("contribution_id", c.ID),
	)

	return nil
}

// alertOperator отправляет уведомление в операторский канал (best-effort)
func (s *ContributionService) alertOperator(ctx context.Context, c repository.Contribution, reason string) {
	s.bestEffort(s.notifier.OperatorAlert(ctx, c, reason), "operator_alert", c.ID)
}

// bestEffort логирует ошибку отправки уведомления, не влияя на результат
// операции: уведомления никогда не откатывают переход состояния
func (s *ContributionService) bestEffort(err error, event, contributionID string) {
	if err != nil {
		s.logger.Warn("failed to send notification",
			zap.Error(err),
			zap.String("event", event),
			zap.String("contribution_id", contributionID),
		)
	}
}

// payTransactionStatus извлекает статус транзакции из ответа Pay.
// Если есть ошибки или статуса нет - FAILURE (консервативный дефолт).
func payTransactionStatus(resp *gateway.Response) repository.ContributionStatus {
	if resp.HasErrors() || resp.PayResult == nil || resp.PayResult.TransactionStatus == "" {
		return repository.StatusFailure
	}
	return statusFromTransaction(resp.PayResult.TransactionStatus)
}

// statusFromTransaction переводит строковый статус транзакции шлюза
// в статус контрибуции; незнакомые статусы - FAILURE
func statusFromTransaction(s string) repository.ContributionStatus {
	switch s {
	case gateway.TransactionStatusSuccess:
		return repository.StatusSuccess
	case gateway.TransactionStatusPending:
		return repository.StatusPending
	default:
		return repository.StatusFailure
	}
}

// appendCorrelation добавляет корреляционный токен в returnURL
func appendCorrelation(returnURL, token string) (string, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return "", fmt.Errorf("invalid return url: %w", err)
	}

	q := u.Query()
	q.Set("correlation", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
