package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
	"github.com/zkgrants/aggregator/log"
)

const (
	corsMaxAge       = 300
	throttleBacklog  = 5000
	backlogTimeout   = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// JobService runs aggregation jobs and reports about them
type JobService interface {
	Submit(ctx context.Context, req finalizer.Request) (string, error)
	GetJob(ctx context.Context, requestID string) (tracker.Job, error)
	Summary(ctx context.Context, requestID string) ([]types.TaskRecord, error)
}

// API is the REST server receiving aggregation requests
type API struct {
	cfg    Config
	logger *log.Logger
	jobs   JobService
	router *chi.Mux
}

// New creates the API and its router
func New(logger *log.Logger, cfg Config, jobs JobService) *API {
	a := &API{
		cfg:    cfg,
		logger: logger,
		jobs:   jobs,
	}
	a.initRouter()

	return a
}

// Router returns the chi router
func (a *API) Router() *chi.Mux {
	return a.router
}

// Start serves the API until ctx is done
func (a *API) Start(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout.Duration,
		WriteTimeout:      a.cfg.WriteTimeout.Duration,
	}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			a.logger.Errorf("error shutting down api server: %v", err)
		}
	}()

	a.logger.Infof("api server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}

func (a *API) registerHandlers() {
	a.logger.Debugw("register handler", "endpoint", PingEndpoint, "method", http.MethodGet)
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	a.logger.Debugw("register handler", "endpoint", TasksEndpoint, "method", http.MethodPost)
	a.router.Post(TasksEndpoint, a.submitTask)
	a.logger.Debugw("register handler", "endpoint", TaskEndpoint, "method", http.MethodGet)
	a.router.Get(TaskEndpoint, a.task)
	a.logger.Debugw("register handler", "endpoint", TaskSummaryEndpoint, "method", http.MethodGet)
	a.router.Get(TaskSummaryEndpoint, a.taskSummary)

	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Withf("%s %s", r.Method, r.URL.Path).Write(w)
	})
}

func (a *API) initRouter() {
	origins := a.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         corsMaxAge,
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	if a.cfg.MaxConcurrentRequests > 0 {
		a.router.Use(middleware.ThrottleBacklog(a.cfg.MaxConcurrentRequests, throttleBacklog, backlogTimeout))
	}
	if a.cfg.RequestTimeout.Duration > 0 {
		a.router.Use(middleware.Timeout(a.cfg.RequestTimeout.Duration))
	}

	a.registerHandlers()
}
