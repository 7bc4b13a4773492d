package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/zkgrants/aggregator/aggregator/types"
	cfgTypes "github.com/zkgrants/aggregator/config/types"
	"github.com/zkgrants/aggregator/log"
	"golang.org/x/sync/semaphore"
)

const maxErrorBodyLen = 512

var (
	ErrTaskFailed    = errors.New("prover task failed")                  //nolint:revive
	ErrPollTimeout   = errors.New("timeout waiting for the prover task") //nolint:revive
	ErrUnknownStatus = errors.New("prover returned an unknown status")   //nolint:revive
	ErrBadResponse   = errors.New("prover returned a bad response")      //nolint:revive
)

// TaskFailedError is returned when a worker reports a task as FAILED
type TaskFailedError struct {
	TaskID string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed", e.TaskID)
}

// Is makes errors.Is(err, ErrTaskFailed) match
func (e *TaskFailedError) Is(target error) bool {
	return target == ErrTaskFailed
}

// DispatcherConfig is the configuration of the remote executor
type DispatcherConfig struct {
	// URL is the base url of the prover worker
	URL string `mapstructure:"URL"`
	// PollInterval is the time waited before every status request
	PollInterval cfgTypes.Duration `mapstructure:"PollInterval"`
	// PollTimeout bounds the time waiting for a task, 0 waits forever
	PollTimeout cfgTypes.Duration `mapstructure:"PollTimeout"`
	// Concurrency is the maximum number of tasks dispatched at once, 0 means unlimited
	Concurrency int `mapstructure:"Concurrency"`
	// ForceProve asks the worker to skip its result cache
	ForceProve bool `mapstructure:"ForceProve"`
	// MaxRetries is the number of retries of a failed http request
	MaxRetries int `mapstructure:"MaxRetries"`
	// RetryWaitMin is the minimum wait between retries
	RetryWaitMin cfgTypes.Duration `mapstructure:"RetryWaitMin"`
	// RetryWaitMax is the maximum wait between retries
	RetryWaitMax cfgTypes.Duration `mapstructure:"RetryWaitMax"`
}

// Validate checks the dispatcher configuration
func (c DispatcherConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid prover url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid prover url %q: scheme must be http or https", c.URL)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PollTimeout.Duration < 0 {
		return fmt.Errorf("poll timeout must not be negative, got %s", c.PollTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}

	return nil
}

type createTaskRequest struct {
	CircuitID  string          `json:"circuitId"`
	Input      types.TaskInput `json:"input"`
	ForceProve bool            `json:"forceProve"`
}

type taskStatusResponse struct {
	Status types.TaskStatus `json:"status"`
}

type taskSnarkResponse struct {
	Snark struct {
		Payload types.ProverProof `json:"payload"`
	} `json:"snark"`
}

// Dispatcher runs tasks on a remote prover worker: it creates the task,
// polls its status and downloads the proof once it is done.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *log.Logger
	client *retryablehttp.Client
	sem    *semaphore.Weighted
}

var _ Runner = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher for the worker at cfg.URL
func NewDispatcher(logger *log.Logger, cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
	}
	d.client = d.newClient(cleanhttp.DefaultPooledClient())
	if cfg.Concurrency > 0 {
		d.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}

	return d, nil
}

func (d *Dispatcher) newClient(httpClient *http.Client) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = d.cfg.MaxRetries
	if d.cfg.RetryWaitMin.Duration > 0 {
		client.RetryWaitMin = d.cfg.RetryWaitMin.Duration
	}
	if d.cfg.RetryWaitMax.Duration > 0 {
		client.RetryWaitMax = d.cfg.RetryWaitMax.Duration
	}
	client.Backoff = retryablehttp.DefaultBackoff
	client.Logger = log.RetryLogger{Logger: d.logger}

	return client
}

// Run dispatches task and blocks until its proof is downloaded. The
// concurrency slot is released as soon as the worker reports the task done.
func (d *Dispatcher) Run(ctx context.Context, task types.ProverTask) (string, types.ProverProof, error) {
	release := func() {}
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return "", types.ProverProof{}, err
		}
		var once sync.Once
		release = func() { once.Do(func() { d.sem.Release(1) }) }
	}
	defer release()

	taskID, err := d.createTask(ctx, task)
	if err != nil {
		return "", types.ProverProof{}, err
	}
	d.logger.Debugf("task %s created on circuit %s", taskID, task.CircuitID)

	if err := d.waitTask(ctx, taskID); err != nil {
		return taskID, types.ProverProof{}, err
	}
	release()

	proof, err := d.getSnark(ctx, taskID)
	if err != nil {
		return taskID, types.ProverProof{}, err
	}

	return taskID, proof, nil
}

func (d *Dispatcher) createTask(ctx context.Context, task types.ProverTask) (string, error) {
	endpoint, err := url.JoinPath(d.cfg.URL, "tasks")
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(createTaskRequest{
		CircuitID:  task.CircuitID,
		Input:      task.Input,
		ForceProve: d.cfg.ForceProve,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	var taskID string
	if err := d.do(ctx, d.client, http.MethodPost, endpoint, body, &taskID); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if taskID == "" {
		return "", fmt.Errorf("%w: empty task id", ErrBadResponse)
	}

	return taskID, nil
}

// waitTask polls the status of taskID until it is DONE. Every poll waits
// first and uses a new client without connection reuse.
func (d *Dispatcher) waitTask(ctx context.Context, taskID string) error {
	endpoint, err := url.JoinPath(d.cfg.URL, "tasks", taskID, "status")
	if err != nil {
		return err
	}

	var deadline <-chan time.Time
	if d.cfg.PollTimeout.Duration > 0 {
		timer := time.NewTimer(d.cfg.PollTimeout.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	wait := time.NewTimer(d.cfg.PollInterval.Duration)
	defer wait.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: task %s not done after %s", ErrPollTimeout, taskID, d.cfg.PollTimeout)
		case <-wait.C:
		}

		var resp taskStatusResponse
		if err := d.do(ctx, d.newClient(cleanhttp.DefaultClient()), http.MethodGet, endpoint, nil, &resp); err != nil {
			return fmt.Errorf("failed to get status of task %s: %w", taskID, err)
		}

		switch resp.Status {
		case types.TaskStatusDone:
			return nil
		case types.TaskStatusFailed:
			return &TaskFailedError{TaskID: taskID}
		case types.TaskStatusPending, types.TaskStatusPreparing, types.TaskStatusProving:
			d.logger.Debugf("task %s is %s", taskID, resp.Status)
		default:
			return fmt.Errorf("%w: task %s: %q", ErrUnknownStatus, taskID, resp.Status)
		}
		wait.Reset(d.cfg.PollInterval.Duration)
	}
}

func (d *Dispatcher) getSnark(ctx context.Context, taskID string) (types.ProverProof, error) {
	endpoint, err := url.JoinPath(d.cfg.URL, "tasks", taskID, "snark")
	if err != nil {
		return types.ProverProof{}, err
	}

	var resp taskSnarkResponse
	if err := d.do(ctx, d.client, http.MethodGet, endpoint, nil, &resp); err != nil {
		return types.ProverProof{}, fmt.Errorf("failed to get snark of task %s: %w", taskID, err)
	}

	return resp.Snark.Payload, nil
}

// do sends the request and decodes a 2xx JSON body into out
func (d *Dispatcher) do(ctx context.Context, client *retryablehttp.Client,
	method, endpoint string, body []byte, out interface{}) error {
	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(data) > maxErrorBodyLen {
			data = data[:maxErrorBodyLen]
		}
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrBadResponse, method, endpoint, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	return nil
}
