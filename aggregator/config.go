package aggregator

import (
	"github.com/zkgrants/aggregator/aggregator/prover"
)

// Config represents the configuration of the scheduler
type Config struct {
	// CircuitIDsPath is the path of the JSON file mapping node params to circuit ids,
	// as written by the keygen command
	CircuitIDsPath string `mapstructure:"CircuitIDsPath"`

	// Executor configures how proof tasks are run: on a remote worker or in-process
	Executor prover.Config `mapstructure:"Executor"`
}
