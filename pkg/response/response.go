package response

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON writes data as the whole response body.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// NoStore marks the response as never cacheable; readers must always see the
// latest stored record.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

func Error(w http.ResponseWriter, statusCode int, err string, details string) {
	JSON(w, statusCode, ErrorBody{Error: err, Details: details})
}

func BadRequest(w http.ResponseWriter, err string, details string) {
	Error(w, http.StatusBadRequest, err, details)
}

func NotFound(w http.ResponseWriter, err string) {
	Error(w, http.StatusNotFound, err, "")
}

func TooLarge(w http.ResponseWriter, err string) {
	Error(w, http.StatusRequestEntityTooLarge, err, "")
}

func InternalError(w http.ResponseWriter, err string) {
	Error(w, http.StatusInternalServerError, err, "")
}
