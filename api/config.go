package api

import "github.com/zkgrants/aggregator/config/types"

// Config represents the configuration of the REST API server
type Config struct {
	// Host defines the network adapter that will be used to serve the HTTP requests
	Host string `mapstructure:"Host"`

	// Port defines the port to serve the endpoints via HTTP
	Port int `mapstructure:"Port"`

	// ReadTimeout is the HTTP server read timeout
	ReadTimeout types.Duration `mapstructure:"ReadTimeout"`

	// WriteTimeout is the HTTP server write timeout
	WriteTimeout types.Duration `mapstructure:"WriteTimeout"`

	// RequestTimeout is the maximum time spent handling a single request
	RequestTimeout types.Duration `mapstructure:"RequestTimeout"`

	// MaxConcurrentRequests is the number of requests handled at the same time,
	// the rest wait in the backlog. 0 disables the limit.
	MaxConcurrentRequests int `mapstructure:"MaxConcurrentRequests"`

	// AllowedOrigins are the CORS origins allowed to call the API
	AllowedOrigins []string `mapstructure:"AllowedOrigins"`
}
