package common

const (
	// SCHEDULER name to identify the scheduler component (implies the finalizer, the REST API and the RPC)
	SCHEDULER = "scheduler"
	// WORKER name to identify the prover worker component
	WORKER = "worker"
)
