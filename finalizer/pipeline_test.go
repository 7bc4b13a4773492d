package finalizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator"
	"github.com/zkgrants/aggregator/aggregator/circuits"
	"github.com/zkgrants/aggregator/aggregator/prover"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	cfgTypes "github.com/zkgrants/aggregator/config/types"
	"github.com/zkgrants/aggregator/log"
)

// failingWorker accepts every task over the dispatch protocol and reports it FAILED
type failingWorker struct {
	mu      sync.Mutex
	circuit []string
}

func (w *failingWorker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			CircuitID string `json:"circuitId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.circuit = append(w.circuit, req.CircuitID)
		w.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode("t-leaf")
	})
	mux.HandleFunc("GET /tasks/{id}/status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]string{"status": string(types.TaskStatusFailed)})
	})
	mux.HandleFunc("GET /tasks/{id}/snark", func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "task is not done", http.StatusConflict)
	})

	return mux
}

func (w *failingWorker) circuits() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.circuit...)
}

func TestSubmitWorkerFailureIsNotSettled(t *testing.T) {
	ctx := context.Background()
	logger := log.GetDefaultLogger()
	worker := &failingWorker{}
	srv := httptest.NewServer(worker.handler())
	defer srv.Close()

	dispatcher, err := prover.NewDispatcher(logger, prover.DispatcherConfig{
		URL:          srv.URL,
		PollInterval: cfgTypes.NewDuration(5 * time.Millisecond),
		PollTimeout:  cfgTypes.NewDuration(5 * time.Second),
	})
	require.NoError(t, err)
	entries, err := circuits.Generate(3, 3, 1)
	require.NoError(t, err)
	repo, err := circuits.New(logger, entries)
	require.NoError(t, err)

	tasks := tracker.NewTaskTracker()
	scheduler := aggregator.New(logger, repo, prover.NewExecutor(logger, dispatcher), tasks)
	jobs := tracker.NewJobTracker(tracker.NewMemoryStorage())
	submitter := &fakeSubmitter{}
	cfg := testConfig(t)
	f, err := New(logger, cfg, scheduler, tasks, jobs, submitter)
	require.NoError(t, err)

	requestID, err := f.Submit(ctx, testRequest(8, 8))
	require.NoError(t, err)
	f.Wait()

	job, err := f.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "task t-leaf failed")
	require.Empty(t, job.TxHash)
	require.Empty(t, job.Proof)
	require.Zero(t, submitter.callCount())

	require.NotEmpty(t, worker.circuits())
	leaf, err := repo.Params(worker.circuits()[0])
	require.NoError(t, err)
	require.Equal(t, types.NodeKindLeaf, leaf.NodeType.Kind)

	_, err = os.Stat(filepath.Join(cfg.ExecutionSummaryPath, requestID+".json"))
	require.True(t, os.IsNotExist(err))
	require.Empty(t, tasks.Tasks(requestID))
}
