package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter создаёт и настраивает HTTP роутер Contribution Service.
// readiness - функция проверки готовности сервиса (ping БД);
// если она возвращает false, health endpoint отдаёт 503.
func NewRouter(handler *Handler, readiness func() bool) chi.Router {
	router := chi.NewRouter()

	router.Post("/contributions", handler.PostContributions)
	router.Delete("/contributions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		handler.DeleteContribution(w, r, id)
	})

	router.Post("/projects/{id}/payment-account", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		handler.PostProjectPaymentAccount(w, r, id)
	})

	// Callback-и шлюза: аутентификация - подпись + корреляционный токен,
	// никакой сессии здесь нет
	router.Get("/callbacks/payment-token", handler.GetPaymentTokenCallback)
	router.Get("/callbacks/recipient", handler.GetRecipientCallback)

	router.Get("/health", HealthHandler(readiness))

	return router
}
