package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	maxBodyBytes      = 64 << 20
)

// CreateTaskRequest is the body of POST /tasks
type CreateTaskRequest struct {
	CircuitID  string          `json:"circuitId"`
	Input      types.TaskInput `json:"input"`
	ForceProve bool            `json:"forceProve"`
}

// StatusResponse is the body answered by GET /tasks/{id}/status
type StatusResponse struct {
	Status types.TaskStatus `json:"status"`
}

// SnarkResponse is the body answered by GET /tasks/{id}/snark
type SnarkResponse struct {
	Snark TaskProof `json:"snark"`
}

// TaskProof wraps the proof of a task
type TaskProof struct {
	Payload types.ProverProof `json:"payload"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler returns the HTTP handler of the worker protocol
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", s.createTask)
	mux.HandleFunc("GET /tasks/{id}/status", s.taskStatus)
	mux.HandleFunc("GET /tasks/{id}/snark", s.taskSnark)
	mux.HandleFunc("POST /reset", s.reset)
	mux.HandleFunc("GET /build_info", s.buildInfo)
	mux.HandleFunc("POST /internal/circuit-data", s.circuitData)
	mux.Handle("GET /metrics", metrics.Handler())

	corsHandler := handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type"}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))

	return recovery(handlers.CustomLoggingHandler(io.Discard, corsHandler(mux), s.logRequest))
}

// StartServer serves Handler until ctx is done
func (s *Service) StartServer(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("error shutting down worker server: %v", err)
		}
	}()

	s.logger.Infof("worker server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("worker server: %w", err)
	}

	return nil
}

func (s *Service) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err)
		return
	}

	task := types.ProverTask{CircuitID: req.CircuitID, Input: req.Input}
	id, err := s.Submit(r.Context(), task, req.ForceProve)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_task", err)
		case errors.Is(err, ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "queue_full", err)
		default:
			writeError(w, http.StatusInternalServerError, "unexpected_error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, id)
}

func (s *Service) taskStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: status})
}

func (s *Service) taskSnark(w http.ResponseWriter, r *http.Request) {
	proof, err := s.Proof(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SnarkResponse{Snark: TaskProof{Payload: proof}})
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task_not_found", err)
	case errors.Is(err, ErrTaskNotDone):
		writeError(w, http.StatusConflict, "task_not_done", err)
	default:
		writeError(w, http.StatusInternalServerError, "unexpected_error", err)
	}
}

func (s *Service) reset(w http.ResponseWriter, _ *http.Request) {
	s.Reset()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) buildInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("alive")); err != nil {
		s.logger.Warnf("failed to write build info: %v", err)
	}
}

func (s *Service) circuitData(w http.ResponseWriter, r *http.Request) {
	var task types.ProverTask
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err)
		return
	}
	if err := s.BuildCircuit(r.Context(), task); err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_task", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "build_error", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Service) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Debugw("worker request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"status", params.StatusCode,
		"size", params.Size,
	)
}

type recoveryLogger struct {
	logger *log.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.Error(args...)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnf("failed to write http response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}
