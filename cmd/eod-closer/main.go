// Command eod-closer flattens a trading account once a day at a configured
// local time and reports the outcome.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/urfave/cli"
)

const defaultConfigPath = "config/eodcloser.yaml"

var version = "dev"

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path to the YAML configuration `FILE`",
	EnvVar: "CLOSER_CONFIG",
	Value:  defaultConfigPath,
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "eod-closer"
	app.Usage = "close every position and cancel every order at a fixed local time each day"
	app.Version = version
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "start the daily closer and its status servers",
			Action: runCmd,
		},
		{
			Name:   "check",
			Usage:  "validate the configuration and print the next trigger times",
			Action: checkCmd,
		},
		{
			Name:   "history",
			Usage:  "list recent run records",
			Action: historyCmd,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "limit, n",
					Usage: "number of records to show",
					Value: 20,
				},
			},
		},
		{
			Name:   "status",
			Usage:  "query a running closer",
			Action: statusCmd,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr",
					Usage: "status server `URL`, defaults to the configured listener",
				},
			},
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "eod-closer:", err)
		os.Exit(1)
	}
}
