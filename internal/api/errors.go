package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/capiscio/pledge-core/pkg/badge"
)

// Codes for failures that happen before the badge service is reached.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeBodyTooLarge = "BODY_TOO_LARGE"
	CodeInternal     = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	badge.ErrCodeUnauthorized:           http.StatusUnauthorized,
	badge.ErrCodeNotEligible:            http.StatusForbidden,
	badge.ErrCodeNonTransferable:        http.StatusForbidden,
	badge.ErrCodeAlreadyClaimed:         http.StatusConflict,
	badge.ErrCodeRevoked:                http.StatusLocked,
	badge.ErrCodeInvalidSignature:       http.StatusBadRequest,
	badge.ErrCodeNoSuchPledge:           http.StatusNotFound,
	badge.ErrCodeEligibilityCheckFailed: http.StatusServiceUnavailable,
	badge.ErrCodeJournalWriteFailed:     http.StatusInternalServerError,
	CodeBadRequest:                      http.StatusBadRequest,
	CodeBodyTooLarge:                    http.StatusRequestEntityTooLarge,
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Code: CodeInternal, Message: "internal error"}
	if be, ok := badge.AsError(err); ok {
		resp = ErrorResponse{Code: be.Code, Message: be.Message}
	}
	writeJSON(w, StatusForCode(resp.Code), resp)
}

func writeBadRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    CodeBadRequest,
		Message: fmt.Sprintf(format, args...),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
