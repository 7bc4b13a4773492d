package main

import (
	"os"

	"github.com/urfave/cli/v2"
	zkagg "github.com/zkgrants/aggregator"
)

func versionCmd(*cli.Context) error {
	zkagg.PrintVersion(os.Stdout)
	return nil
}
