package httpapi

import (
	"encoding/json"
	"net/http"
)

// HealthHandler возвращает HTTP handler для health check endpoint.
// 200 OK если readiness функция не указана или возвращает true,
// 503 Service Unavailable иначе.
func HealthHandler(readiness func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil && !readiness() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
