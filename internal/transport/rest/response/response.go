package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire error shape: {"error":"..."}.
// Dashboards and the tracker only ever look at the string.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes raw JSON with Content-Type.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Err writes {"error": message}.
func Err(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}
