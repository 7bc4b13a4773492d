package main

import (
	"os"

	"github.com/urfave/cli/v2"
	zkagg "github.com/zkgrants/aggregator"
	"github.com/zkgrants/aggregator/common"
	"github.com/zkgrants/aggregator/config"
	"github.com/zkgrants/aggregator/log"
)

const appName = "zkagg"

var (
	configFileFlag = cli.StringSliceFlag{
		Name:     config.FlagCfg,
		Aliases:  []string{"c"},
		Usage:    "Configuration file(s)",
		Required: true,
	}
	componentsFlag = cli.StringSliceFlag{
		Name:     config.FlagComponents,
		Aliases:  []string{"co"},
		Usage:    "List of components to run",
		Required: false,
		Value:    cli.NewStringSlice(common.SCHEDULER),
	}
	saveConfigFlag = cli.StringFlag{
		Name:     config.FlagSaveConfigPath,
		Aliases:  []string{"s"},
		Usage:    "Save final configuration into to the indicated path (name: zkagg_config.toml)",
		Required: false,
	}
	maxDepthFlag = cli.UintFlag{
		Name:     config.FlagMaxDepth,
		Usage:    "Depth of the biggest aggregation tree",
		Required: true,
	}
	initialDepthFlag = cli.UintFlag{
		Name:  config.FlagInitialDepth,
		Usage: "Depth of the leaf layer",
		Value: 3, //nolint:mnd
	}
	extraRoundsFlag = cli.UintFlag{
		Name:  config.FlagExtraRounds,
		Usage: "Number of evm rounds wrapping the root proof",
		Value: 1,
	}
	outputFileFlag = cli.StringFlag{
		Name:     config.FlagOutputFile,
		Aliases:  []string{"o"},
		Usage:    "Output `FILE` of the circuit ids",
		Required: true,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Version = zkagg.Version
	app.Commands = []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Application version and build",
			Action:  versionCmd,
		},
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run the aggregation node",
			Action:  start,
			Flags:   []cli.Flag{&configFileFlag, &componentsFlag, &saveConfigFlag},
		},
		{
			Name:    "config",
			Aliases: []string{},
			Usage:   "Print the default configuration",
			Action:  configCmd,
		},
		{
			Name:    "keygen",
			Aliases: []string{},
			Usage:   "Write the circuit ids of every node of the aggregation trees",
			Action:  keygenCmd,
			Flags:   []cli.Flag{&maxDepthFlag, &initialDepthFlag, &extraRoundsFlag, &outputFileFlag},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
