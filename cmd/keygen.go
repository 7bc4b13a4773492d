package main

import (
	"github.com/hermeznetwork/tracerr"
	"github.com/urfave/cli/v2"
	"github.com/zkgrants/aggregator/aggregator/circuits"
	"github.com/zkgrants/aggregator/config"
	"github.com/zkgrants/aggregator/log"
)

func keygenCmd(cliCtx *cli.Context) error {
	maxDepth := cliCtx.Uint(config.FlagMaxDepth)
	initialDepth := cliCtx.Uint(config.FlagInitialDepth)
	extraRounds := cliCtx.Uint(config.FlagExtraRounds)
	output := cliCtx.String(config.FlagOutputFile)

	entries, err := circuits.Generate(maxDepth, initialDepth, extraRounds)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if err := circuits.WriteFile(output, entries); err != nil {
		return tracerr.Wrap(err)
	}
	log.Infof("%d circuit ids written to %s", len(entries), output)

	return nil
}
