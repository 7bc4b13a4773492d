package finalizer

import (
	"github.com/zkgrants/aggregator/config/types"
)

// Config is the configuration of the finalizer
type Config struct {
	// InitialDepth is the depth of the leaf layer used when a request doesn't set one
	InitialDepth uint `mapstructure:"InitialDepth"`

	// ExtraRounds is the number of Evm wrapping rounds above the Root node
	ExtraRounds uint `mapstructure:"ExtraRounds"`

	// ExecutionSummaryPath is the directory where the {request_id}.json execution
	// summaries are written. Nothing is written when empty.
	ExecutionSummaryPath string `mapstructure:"ExecutionSummaryPath"`

	// SubmitMaxAttempts is the number of times the on-chain submission is tried
	SubmitMaxAttempts int `mapstructure:"SubmitMaxAttempts"`

	// SubmitRetryDelay is the time waited between two submission attempts
	SubmitRetryDelay types.Duration `mapstructure:"SubmitRetryDelay"`

	// DBPath is the path of the SQLite database storing jobs and their summaries.
	// Jobs are kept in memory when empty.
	DBPath string `mapstructure:"DBPath"`
}
