package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tho-bre/event-flow/internal/domain"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeMissingRequiredField  = "missing_required_field"
	codeValidation            = "validation_error"
	codeEventNameRequired     = "event_name_required"
	codeInvalidRange          = "invalid_range"
	codeInvalidDirection      = "invalid_direction"
	codeInvalidInterval       = "invalid_interval"
	codeEmailRequired         = "email_required"
	codePasswordTooShort      = "password_too_short"
	codeAssociationNameNeeded = "association_name_required"
	codeEmailTaken            = "email_taken"
	codeEventNotFound         = "event_not_found"
	codeTotalAtZero           = "total_at_zero"
	codeEventNotActive        = "event_not_active"
	codeLedgerFull            = "ledger_full"
	codeInvalidState          = "invalid_state"
	codeVersionConflict       = "version_conflict"
	codeUnauthorized          = "unauthorized"
	codePendingActivation     = "pending_activation"
	codeAccountNotActivated   = "account_not_activated"
	codeForbidden             = "forbidden"
	codePDFUnavailable        = "pdf_unavailable"
	codeTooManyRequests       = "too_many_requests"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Total carries the authoritative count on rejected taps so the
	// scanner can re-sync its display.
	Total *int `json:"total,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorBody(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(body)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrEventNameRequired, http.StatusBadRequest, codeEventNameRequired},
	{domain.ErrInvalidRange, http.StatusBadRequest, codeInvalidRange},
	{domain.ErrInvalidDirection, http.StatusBadRequest, codeInvalidDirection},
	{domain.ErrInvalidInterval, http.StatusBadRequest, codeInvalidInterval},
	{domain.ErrEmailRequired, http.StatusBadRequest, codeEmailRequired},
	{domain.ErrPasswordTooShort, http.StatusBadRequest, codePasswordTooShort},
	{domain.ErrAssociationNameRequired, http.StatusBadRequest, codeAssociationNameNeeded},
	{domain.ErrEmailTaken, http.StatusConflict, codeEmailTaken},
	{domain.ErrValidation, http.StatusBadRequest, codeValidation},
	{domain.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrTotalAtZero, http.StatusConflict, codeTotalAtZero},
	{domain.ErrEventNotActive, http.StatusConflict, codeEventNotActive},
	{domain.ErrLedgerFull, http.StatusConflict, codeLedgerFull},
	{domain.ErrInvalidState, http.StatusConflict, codeInvalidState},
	{domain.ErrVersionConflict, http.StatusConflict, codeVersionConflict},
	{domain.ErrAuthFailed, http.StatusUnauthorized, codeUnauthorized},
	{domain.ErrPendingActivation, http.StatusForbidden, codePendingActivation},
	{domain.ErrAccountNotActivated, http.StatusForbidden, codeAccountNotActivated},
}

// classify maps a service error onto a status and stable code. Specific
// errors are listed before the class they wrap.
func classify(err error) (int, string) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.status, ec.code
		}
	}
	return http.StatusInternalServerError, codeInternalError
}

// writeServiceError reports err to the client. Unexpected errors are
// logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}
