package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"shared-notes-server/pkg/response"
)

// decodeBody decodes r's JSON body into dst and writes the error response
// itself when it fails. An empty body is accepted when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		response.TooLarge(w, "Request body too large")
		return false
	}

	response.BadRequest(w, "Invalid request payload", err.Error())
	return false
}
