package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

const (
	configKey = "config"
	queueKey  = "queue"
)

func main() {
	cmd := &cli.Command{
		Name:  "observable",
		Usage: "Exercise thread-safe observable values",
		Commands: []*cli.Command{
			demoCommand(),
			benchCommand(),
			stressCommand(),
			watchCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    configKey,
		Aliases: []string{"c"},
		Usage:   "YAML file with defaults for this command",
	}
}

func queueFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  queueKey,
		Usage: "Where observers run: inline, main, global or serial",
		Value: "inline",
	}
}
