package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/repository"
	"github.com/ronaldocpontes/contribute/internal/service"
)

// Handler содержит HTTP-обработчики Contribution Service
// Зависит от service слоя, но не знает о деталях реализации (шлюз, БД и т.д.)
type Handler struct {
	contributionService *service.ContributionService
	logger              *zap.Logger
	publicBaseURL       string // внешний адрес, по которому шлюз подписывает callback-и
}

// NewHandler создаёт новый HTTP handler
func NewHandler(contributionService *service.ContributionService, logger *zap.Logger, publicBaseURL string) *Handler {
	return &Handler{
		contributionService: contributionService,
		logger:              logger,
		publicBaseURL:       strings.TrimRight(publicBaseURL, "/"),
	}
}

// ContributionRequest представляет HTTP запрос на создание контрибуции
type ContributionRequest struct {
	ProjectID *string `json:"project_id"`
	UserID    *string `json:"user_id"`
	Amount    *string `json:"amount"`
}

// ContributionResponse представляет HTTP ответ на создание контрибуции
type ContributionResponse struct {
	ContributionID *string `json:"contribution_id"`
	RedirectURL    *string `json:"redirect_url"`
}

// PostContributions обрабатывает POST /contributions - создание контрибуции.
// Возвращает redirect URL шлюза для выдачи платёжного токена.
func (h *Handler) PostContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqBody ContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		h.logger.Warn("JSON decode error", zap.Error(err))
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Валидация входных данных
	if reqBody.ProjectID == nil || *reqBody.ProjectID == "" ||
		reqBody.UserID == nil || *reqBody.UserID == "" ||
		reqBody.Amount == nil || *reqBody.Amount == "" {
		http.Error(w, "Invalid payload: project_id, user_id and amount are required", http.StatusBadRequest)
		return
	}

	result, err := h.contributionService.CreateContribution(ctx, service.CreateContributionInput{
		ProjectID: *reqBody.ProjectID,
		UserID:    *reqBody.UserID,
		Amount:    *reqBody.Amount,
		ReturnURL: h.publicBaseURL + "/callbacks/payment-token",
	})
	if err != nil {
		h.logger.Warn("contribution creation error", zap.Error(err))
		switch {
		case errors.Is(err, service.ErrAmountNotWhole), errors.Is(err, service.ErrAmountTooSmall):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrProjectNotFound):
			http.Error(w, "Project not found", http.StatusNotFound)
		case errors.Is(err, service.ErrProjectNotOnboarded), errors.Is(err, service.ErrActiveContributionExists):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to create contribution", http.StatusServiceUnavailable)
		}
		return
	}

	resp := ContributionResponse{
		ContributionID: &result.ContributionID,
		RedirectURL:    &result.RedirectURL,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// DeleteContribution обрабатывает DELETE /contributions/{id} - логическое
// уничтожение контрибуции (уведомление, отмена платежа, удаление записи)
func (h *Handler) DeleteContribution(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	if err := h.contributionService.Delete(ctx, id); err != nil {
		h.logger.Warn("failed to delete contribution",
			zap.Error(err),
			zap.String("contribution_id", id),
		)
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Contribution not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete contribution", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PostProjectPaymentAccount обрабатывает POST /projects/{id}/payment-account
// - начало привязки счёта получателя, возвращает redirect URL шлюза
func (h *Handler) PostProjectPaymentAccount(w http.ResponseWriter, r *http.Request, projectID string) {
	ctx := r.Context()

	redirect, err := h.contributionService.StartRecipientOnboarding(ctx, projectID, h.publicBaseURL+"/callbacks/recipient")
	if err != nil {
		h.logger.Warn("failed to start recipient onboarding",
			zap.Error(err),
			zap.String("project_id", projectID),
		)
		if errors.Is(err, repository.ErrProjectNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to start onboarding", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"redirect_url": redirect}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// GetPaymentTokenCallback обрабатывает GET /callbacks/payment-token -
// возврат пользователя со шлюза после выдачи платёжного токена
func (h *Handler) GetPaymentTokenCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.contributionService.HandlePaymentTokenCallback(ctx, flattenQuery(r), h.callbackURL(r))
	if err != nil {
		// Наружу всегда один и тот же ответ, причина отказа не раскрывается
		h.rejectCallback(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"contribution_id": c.ID,
		"status":          string(c.Status),
	}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// GetRecipientCallback обрабатывает GET /callbacks/recipient -
// возврат владельца проекта со шлюза после привязки счёта
func (h *Handler) GetRecipientCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, err := h.contributionService.HandleRecipientCallback(ctx, flattenQuery(r), h.callbackURL(r))
	if err != nil {
		h.rejectCallback(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"project_id": project.ID,
	}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// rejectCallback отвечает на любой непрошедший проверку callback одинаково
func (h *Handler) rejectCallback(w http.ResponseWriter) {
	http.Error(w, "Callback could not be verified", http.StatusBadRequest)
}

// callbackURL восстанавливает точный внешний URL callback-а (без query) -
// именно по нему шлюз вычислял подпись
func (h *Handler) callbackURL(r *http.Request) string {
	return h.publicBaseURL + r.URL.Path
}

// flattenQuery превращает query-параметры запроса в map для валидатора.
// Повторяющиеся параметры шлюз не шлёт, берём первое значение.
func flattenQuery(r *http.Request) map[string]string {
	params := make(map[string]string)
	for k, values := range r.URL.Query() {
		if len(values) > 0 {
			params[k] = values[0]
		}
	}
	return params
}
