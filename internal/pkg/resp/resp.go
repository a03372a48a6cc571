/*
Package resp writes the admin surface's JSON envelope.

Every response carries a business code (0 on success, an errs code otherwise), a message,
the request ID assigned by chi's RequestID middleware and an optional payload.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

// Envelope is the body of every admin response.
type Envelope struct {
	// Code is 0 for success, otherwise an errs code.
	Code int `json:"code"`

	Message string `json:"message"`

	// RequestID echoes the X-Request-Id used in the server logs; empty outside the router.
	RequestID string `json:"request_id,omitempty"`

	Data any `json:"data,omitempty"`
}

// RespondJSON encodes payload with the given status.
func RespondJSON(w http.ResponseWriter, httpStatus int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(body)
}

// RespondSuccess sends data with HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, http.StatusOK, Envelope{
		Code:      0,
		Message:   "success",
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	})
}

// RespondError sends customErr with its HTTP status. Server-side failures are
// logged with their cause, which never reaches the body.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	status := customErr.Status
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		logx.Error(customErr, "Request failed",
			"code", customErr.Code,
			"path", r.URL.Path,
			"request_id", reqID,
		)
	}

	RespondJSON(w, status, Envelope{
		Code:      customErr.Code,
		Message:   customErr.Message,
		RequestID: reqID,
	})
}
