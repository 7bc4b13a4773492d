package api

const (
	// PingEndpoint is the liveness check
	PingEndpoint = "/ping"
	// TasksEndpoint receives new aggregation requests
	TasksEndpoint = "/tasks"
	// RequestURLParam is the name of the request id parameter
	RequestURLParam = "requestId"
	// TaskEndpoint returns the job of a request
	TaskEndpoint = TasksEndpoint + "/{" + RequestURLParam + "}"
	// TaskSummaryEndpoint returns the tasks run for a request
	TaskSummaryEndpoint = TaskEndpoint + "/summary"
)
