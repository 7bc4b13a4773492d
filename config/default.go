package config

// DefaultVars doesn't belong to config, but are the vars used
// to avoid repetition in config-files
const DefaultVars = `
PathRWData = "/tmp/zkagg"
ProverURL = "http://localhost:8081"
L1URL = "http://localhost:8545"
`

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
  # Environment is the environment where the node is running
  Environment = "development" # "production" or "development"
  # Level is the log level
  Level = "info"
  # Outputs are the outputs where the logs will be written
  Outputs = ["stderr"]

[Scheduler]
  # CircuitIDsPath is the key generation artifact mapping node params to circuit ids
  CircuitIDsPath = "{{PathRWData}}/cids.json"
  [Scheduler.Executor]
    # Type of executor: "dispatcher" sends tasks to a prover worker, "local" proves in-process
    Type = "dispatcher"
    [Scheduler.Executor.Dispatcher]
      URL = "{{ProverURL}}"
      PollInterval = "5s"
      # PollTimeout bounds how long a task is polled, 0 polls forever
      PollTimeout = "0s"
      # Concurrency is the maximum number of tasks in flight, 0 is unlimited
      Concurrency = 100
      ForceProve = false
      MaxRetries = 3
      RetryWaitMin = "1s"
      RetryWaitMax = "30s"
    [Scheduler.Executor.Local]
      Concurrency = 0
      [Scheduler.Executor.Local.Proving]
        OutDir = ""

[Finalizer]
  InitialDepth = 3
  ExtraRounds = 1
  ExecutionSummaryPath = "{{PathRWData}}/summaries"
  SubmitMaxAttempts = 5
  SubmitRetryDelay = "3s"
  # DBPath is the sqlite database storing jobs. Empty keeps them in memory
  DBPath = "{{PathRWData}}/jobs.sqlite"

[API]
  Host = "0.0.0.0"
  Port = 8000
  ReadTimeout = "10s"
  WriteTimeout = "10s"
  RequestTimeout = "30s"
  MaxConcurrentRequests = 100
  AllowedOrigins = ["*"]

[RPC]
  # Host defines the network adapter that will be used to serve the HTTP requests
  Host = "0.0.0.0"
  # Port defines the port to serve the endpoints via HTTP
  Port = 5576
  # ReadTimeout is the HTTP server read timeout
  # check net/http.server.ReadTimeout and net/http.server.ReadHeaderTimeout
  ReadTimeout = "2s"
  # WriteTimeout is the HTTP server write timeout
  # check net/http.server.WriteTimeout
  WriteTimeout = "2s"
  # MaxRequestsPerIPAndSecond defines how much requests a single IP can
  # send within a single second
  MaxRequestsPerIPAndSecond = 10

[Worker]
  Host = "0.0.0.0"
  Port = 8081
  Workers = 1
  CacheSize = 1024
  # CircuitIDsPath restricts the circuits the worker accepts. Empty accepts any
  CircuitIDsPath = ""
  [Worker.Queue]
    # Type of queue: "memory" or "redis"
    Type = "memory"
    Size = 1024
    RedisAddr = "localhost:6379"
    RedisPassword = ""
    RedisDB = 0
    RedisPrefix = "zkagg"
  [Worker.Proving]
    OutDir = "{{PathRWData}}/snarks"

[Etherman]
  # URL of the L1 node. Empty disables on-chain submission
  URL = ""
  ContractAddress = "0x0000000000000000000000000000000000000000"
  VKeyHash = "0x0000000000000000000000000000000000000000000000000000000000000000"
  GasLimit = 0
  WaitTxTimeout = "2m"
  PrivateKey = {Path = "{{PathRWData}}/submitter.keystore", Password = "testonly"}

[Metrics]
  Enabled = false
  Host = "0.0.0.0"
  Port = 9091
`
