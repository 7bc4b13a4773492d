package worker

import "github.com/zkgrants/aggregator/proving"

const (
	// QueueMemory keeps the pending tasks in process
	QueueMemory = "memory"
	// QueueRedis keeps the pending tasks in a redis list
	QueueRedis = "redis"
)

// Config is the configuration of the prover worker service
type Config struct {
	// Host defines the network adapter that will be used to serve the HTTP requests
	Host string `mapstructure:"Host"`
	// Port defines the port to serve the endpoints via HTTP
	Port int `mapstructure:"Port"`
	// Workers is the number of tasks proven at the same time
	Workers int `mapstructure:"Workers"`
	// CacheSize is the number of proofs kept by input hash, 0 disables the cache
	CacheSize int `mapstructure:"CacheSize"`
	// CircuitIDsPath restricts the accepted circuits to the ones of this key
	// generation artifact. Any circuit is accepted when empty.
	CircuitIDsPath string `mapstructure:"CircuitIDsPath"`
	// Queue is the configuration of the pending task queue
	Queue QueueConfig `mapstructure:"Queue"`
	// Proving is the configuration of the proving backend
	Proving proving.Config `mapstructure:"Proving"`
}

// QueueConfig is the configuration of the pending task queue
type QueueConfig struct {
	// Type is either "memory" or "redis"
	Type string `mapstructure:"Type"`
	// Size is the capacity of the memory queue
	Size int `mapstructure:"Size"`
	// RedisAddr is the host:port of the redis server
	RedisAddr string `mapstructure:"RedisAddr"`
	// RedisPassword is the password of the redis server
	RedisPassword string `mapstructure:"RedisPassword"`
	// RedisDB is the redis database number
	RedisDB int `mapstructure:"RedisDB"`
	// RedisPrefix namespaces the keys used by the worker
	RedisPrefix string `mapstructure:"RedisPrefix"`
}
