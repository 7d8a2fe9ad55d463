package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
)

// Logger is the subset of logger.Logger the error boundary needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorResponse is the JSON body of every failed relay request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorHandler is the outer boundary of the HTTP surface: it logs full
// detail server-side and answers the client with a sanitized message.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleHTTPError writes the response for err.
func (h *ErrorHandler) HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := AsStandardError(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"status":        status,
	}
	if r != nil {
		fields["method"] = r.Method
		fields["path"] = r.URL.Path
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("request failed", fields)

	if stdErr.Code == ErrCodeRateLimited {
		if secs, ok := stdErr.Metadata["retryAfterSeconds"].(int); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	WriteJSON(w, status, ErrorResponse{Success: false, Message: ClientMessage(stdErr)})
}

// Recover is a middleware turning panics into a generic 500. The stack
// trace goes to the log only.
func (h *ErrorHandler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic recovered", map[string]interface{}{
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
					"path":  r.URL.Path,
				})
				WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Success: false, Message: GenericMessage})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// WriteJSON serializes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
