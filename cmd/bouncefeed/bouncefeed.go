package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ruthkhan/bouncefeed"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bouncefeed",
		Usage: "query a running bouncefeed daemon",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "http://localhost:8080",
				EnvVars: []string{"BOUNCEFEED_HOST"},
				Usage:   "base url of the bouncefeed daemon",
			},
		},

		Commands: []*cli.Command{
			{
				Name:   "records",
				Usage:  "print the current bounce snapshot",
				Action: records,
			},
			{
				Name:   "refresh",
				Usage:  "trigger a fetch run and print its outcome",
				Action: refresh,
			},
			{
				Name:  "logs",
				Usage: "print recent fetch run log entries",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10},
				},
				Action: logs,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "got err", err)
		os.Exit(1)
	}
}

func records(c *cli.Context) error {
	res, err := bouncefeed.NewClient(c.String("host")).Records(c.Context)
	if err != nil {
		return err
	}
	return print(res)
}

func refresh(c *cli.Context) error {
	entry, err := bouncefeed.NewClient(c.String("host")).Refresh(c.Context)
	if err != nil {
		return err
	}
	return print(entry)
}

func logs(c *cli.Context) error {
	res, err := bouncefeed.NewClient(c.String("host")).Logs(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return print(res)
}

func print(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
