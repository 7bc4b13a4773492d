//nolint:lll
package api

import (
	"errors"
	"net/http"
)

// Codes 40001-49999 are client errors, 50001-59999 server errors. Codes are
// never reused: new errors get appended after the last code of their range.
var (
	ErrResourceNotFound = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: errors.New("resource not found")}
	ErrMalformedBody    = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed JSON body")}
	ErrInvalidRequest   = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: errors.New("invalid aggregation request")}
	ErrJobNotFound      = Error{Code: 40004, HTTPstatus: http.StatusNotFound, Err: errors.New("job not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: errors.New("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: errors.New("internal server error")}
)
