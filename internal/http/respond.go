package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON sends payload with the given status. Every dashboard
// endpoint answers in JSON, errors included.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the {"error": msg} envelope the dashboard client
// renders in its toasts.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
