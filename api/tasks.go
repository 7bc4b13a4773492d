package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
)

// SubmitResponse is the answer to an accepted aggregation request
type SubmitResponse struct {
	RequestID string `json:"request_id"`
}

// submitTask starts the aggregation of the claims of a request
// POST /tasks
func (a *API) submitTask(w http.ResponseWriter, r *http.Request) {
	req := finalizer.Request{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}

	requestID, err := a.jobs.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			ErrInvalidRequest.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	a.logger.Infow("new aggregation request", "requestId", requestID, "numProofs", req.NumProofs, "grantId", req.GrantID)
	httpWriteJSON(w, http.StatusAccepted, SubmitResponse{RequestID: requestID})
}

// task returns the job of a request
// GET /tasks/{requestId}
func (a *API) task(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, RequestURLParam)
	job, err := a.jobs.GetJob(r.Context(), requestID)
	if err != nil {
		writeLookupError(w, requestID, err)
		return
	}

	httpWriteJSON(w, http.StatusOK, job)
}

// taskSummary returns the tasks run for a request
// GET /tasks/{requestId}/summary
func (a *API) taskSummary(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, RequestURLParam)
	records, err := a.jobs.Summary(r.Context(), requestID)
	if err != nil {
		writeLookupError(w, requestID, err)
		return
	}

	httpWriteJSON(w, http.StatusOK, records)
}

func writeLookupError(w http.ResponseWriter, requestID string, err error) {
	if errors.Is(err, types.ErrNotFound) {
		ErrJobNotFound.Withf("request %s", requestID).Write(w)
		return
	}
	ErrGenericInternalServerError.WithErr(err).Write(w)
}
