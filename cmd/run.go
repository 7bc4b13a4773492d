package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/hermeznetwork/tracerr"
	"github.com/urfave/cli/v2"
	zkagg "github.com/zkgrants/aggregator"
	"github.com/zkgrants/aggregator/aggregator"
	"github.com/zkgrants/aggregator/aggregator/circuits"
	aggdb "github.com/zkgrants/aggregator/aggregator/db"
	"github.com/zkgrants/aggregator/aggregator/prover"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/api"
	zkcommon "github.com/zkgrants/aggregator/common"
	"github.com/zkgrants/aggregator/config"
	"github.com/zkgrants/aggregator/etherman"
	"github.com/zkgrants/aggregator/finalizer"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
	"github.com/zkgrants/aggregator/proving"
	"github.com/zkgrants/aggregator/rpc"
	"github.com/zkgrants/aggregator/worker"
)

func start(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return tracerr.Wrap(err)
	}

	log.Init(c.Log)

	if c.Log.Environment == log.EnvironmentDevelopment {
		zkagg.PrintVersion(os.Stdout)
		log.Info("Starting application")
	} else if c.Log.Environment == log.EnvironmentProduction {
		logVersion()
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	cancelFuncs := []context.CancelFunc{cancel}

	if c.Metrics.Enabled {
		go func() {
			if err := metrics.Start(ctx, c.Metrics, log.WithFields("module", "metrics")); err != nil {
				log.Fatal(err)
			}
		}()
	}

	components := cliCtx.StringSlice(config.FlagComponents)
	for _, component := range components {
		switch component {
		case zkcommon.SCHEDULER:
			closeFn, err := runScheduler(ctx, *c)
			if err != nil {
				cancel()
				return tracerr.Wrap(err)
			}
			cancelFuncs = append(cancelFuncs, closeFn)
		case zkcommon.WORKER:
			if err := runWorker(ctx, c.Worker); err != nil {
				cancel()
				return tracerr.Wrap(err)
			}
		default:
			cancel()
			return fmt.Errorf("unknown component %q", component)
		}
	}

	waitSignal(cancelFuncs)

	return nil
}

// runScheduler starts the scheduler with its finalizer and serves them over
// the REST API and the JSON-RPC server. It returns the func releasing the job storage.
func runScheduler(ctx context.Context, c config.Config) (context.CancelFunc, error) {
	logger := log.WithFields("module", zkcommon.SCHEDULER)

	repo, err := circuits.Load(logger, c.Scheduler.CircuitIDsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load circuit ids: %w", err)
	}
	executor, err := prover.New(logger, c.Scheduler.Executor)
	if err != nil {
		return nil, err
	}
	tasks := tracker.NewTaskTracker()
	scheduler := aggregator.New(logger, repo, executor, tasks)

	storage, closeFn, err := newJobStorage(logger, c.Finalizer.DBPath)
	if err != nil {
		return nil, err
	}
	submitter, err := newSubmitter(ctx, c.Etherman)
	if err != nil {
		closeFn()
		return nil, err
	}
	fin, err := finalizer.New(log.WithFields("module", "finalizer"), c.Finalizer,
		scheduler, tasks, tracker.NewJobTracker(storage), submitter)
	if err != nil {
		closeFn()
		return nil, err
	}

	restAPI := api.New(log.WithFields("module", "api"), c.API, fin)
	go func() {
		if err := restAPI.Start(ctx); err != nil {
			log.Fatal(err)
		}
	}()

	server := createRPC(c.RPC, fin)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal(err)
		}
	}()

	return closeFn, nil
}

func newJobStorage(logger *log.Logger, dbPath string) (tracker.JobStorage, context.CancelFunc, error) {
	if dbPath == "" {
		logger.Warn("no database configured, jobs are kept in memory")
		return tracker.NewMemoryStorage(), func() {}, nil
	}

	storage, err := aggdb.NewSQLStorage(logger, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open job storage: %w", err)
	}
	closeFn := func() {
		if err := storage.Close(); err != nil {
			logger.Errorf("error closing job storage: %v", err)
		}
	}

	return storage, closeFn, nil
}

func newSubmitter(ctx context.Context, cfg etherman.Config) (finalizer.Submitter, error) {
	if !cfg.Enabled() {
		return nil, nil //nolint:nilnil
	}

	client, err := etherman.NewClient(ctx, log.WithFields("module", "etherman"), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etherman client: %w", err)
	}

	return client, nil
}

// runWorker starts the prover workers and their HTTP server
func runWorker(ctx context.Context, cfg worker.Config) error {
	logger := log.WithFields("module", zkcommon.WORKER)

	queue, err := worker.NewQueue(ctx, logger, cfg.Queue)
	if err != nil {
		return err
	}
	backend, err := proving.NewDigestBackend(logger, cfg.Proving)
	if err != nil {
		return err
	}
	var repo *circuits.Repository
	if cfg.CircuitIDsPath != "" {
		repo, err = circuits.Load(logger, cfg.CircuitIDsPath)
		if err != nil {
			return fmt.Errorf("failed to load circuit ids: %w", err)
		}
	}
	service, err := worker.New(logger, cfg, backend, queue, repo)
	if err != nil {
		return err
	}

	go service.Start(ctx)
	go func() {
		if err := service.StartServer(ctx); err != nil {
			log.Fatal(err)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := queue.Close(); err != nil {
			logger.Errorf("error closing queue: %v", err)
		}
	}()

	return nil
}

func createRPC(cfg jRPC.Config, jobs rpc.JobService) *jRPC.Server {
	logger := log.WithFields("module", "rpc")
	services := []jRPC.Service{
		{
			Name: rpc.AGGREGATOR,
			Service: rpc.NewAggregatorEndpoints(
				logger,
				cfg.WriteTimeout.Duration,
				cfg.ReadTimeout.Duration,
				jobs,
			),
		},
	}

	return jRPC.NewServer(cfg, services, jRPC.WithLogger(logger.GetSugaredLogger()))
}

func logVersion() {
	log.Infow("Starting application",
		// version is already logged by default
		"gitRevision", zkagg.GitRev,
		"gitBranch", zkagg.GitBranch,
		"goVersion", runtime.Version(),
		"built", zkagg.BuildDate,
		"os/arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	)
}

func waitSignal(cancelFuncs []context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)

	for sig := range signals {
		switch sig {
		case os.Interrupt, os.Kill:
			log.Info("terminating application gracefully...")

			exitStatus := 0
			for _, cancel := range cancelFuncs {
				cancel()
			}
			os.Exit(exitStatus)
		}
	}
}
