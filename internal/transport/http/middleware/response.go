package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes the service's standard error payload.
func writeJSONError(w http.ResponseWriter, status int, msg, comingFrom string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    msg,
		"statusCode": status,
		"status":     "error",
		"comingFrom": comingFrom,
	})
}
