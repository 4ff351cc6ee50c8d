package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sbilibin2017/gw-user-signup/internal/logger"
)

// writeJSON writes v as the JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorw("failed to encode response", "err", err)
	}
}
