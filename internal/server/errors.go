package server

import (
	"encoding/json"
	"net/http"

	"github.com/roach88/enclave/internal/entity"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch entity.CodeOf(err) {
	case entity.CodeNotFound:
		return http.StatusNotFound
	case entity.CodeUnauthorized:
		return http.StatusForbidden
	case entity.CodeCapacityExceeded:
		return http.StatusConflict
	case entity.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case entity.CodeAllocatorExhausted:
		return http.StatusInsufficientStorage
	case entity.CodeExternalServiceFailure:
		return http.StatusBadGateway
	case entity.CodeInvalidState:
		if entity.IsFatal(err) {
			return http.StatusInternalServerError
		}
		return http.StatusConflict
	case entity.CodeInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	code := string(entity.CodeOf(err))
	msg := err.Error()
	if code == "" {
		code = "INTERNAL"
		msg = "internal error"
	}
	writeJSON(w, statusFor(err), errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, entity.InvalidArgument("invalid JSON: "+err.Error()))
		return false
	}
	return true
}
