package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zkgrants/aggregator/log"
)

// Error wraps an error with a stable code and the HTTP status it is
// answered with
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns {"error": Err.Error(), "code": Code}. HTTPstatus is not sent.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e Error) Unwrap() error {
	return e.Err
}

// Write sends e as the JSON body of the response
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	log.Debugw("api error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(msg); err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
}

// Withf returns a copy of e with the formatted string appended to e.Err
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of e with err appended to e.Err
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %w", e.Err, err),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}
