package main

import (
	"fmt"
	"os"
	"time"

	"github.com/roberthein/Observable/dispatch"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// fileConfig is the --config file. Unset fields fall back to the flag
// defaults; flags given on the command line win over the file.
type fileConfig struct {
	Queue *string `yaml:"queue"`

	Bench struct {
		Observers  []int `yaml:"observers"`
		Iterations *int  `yaml:"iterations"`
	} `yaml:"bench"`

	Stress struct {
		Writers   *int `yaml:"writers"`
		Writes    *int `yaml:"writes"`
		Observers *int `yaml:"observers"`
		Lanes     *int `yaml:"lanes"`
	} `yaml:"stress"`

	Watch struct {
		MetricsAddr *string        `yaml:"metrics_addr"`
		Linger      *time.Duration `yaml:"linger"`
	} `yaml:"watch"`
}

func loadConfig(cmd *cli.Command) (fileConfig, error) {
	var cfg fileConfig
	path := cmd.String(configKey)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func intSetting(cmd *cli.Command, name string, fromFile *int) int {
	if fromFile != nil && !cmd.IsSet(name) {
		return *fromFile
	}
	return int(cmd.Int(name))
}

func stringSetting(cmd *cli.Command, name string, fromFile *string) string {
	if fromFile != nil && !cmd.IsSet(name) {
		return *fromFile
	}
	return cmd.String(name)
}

func durationSetting(cmd *cli.Command, name string, fromFile *time.Duration) time.Duration {
	if fromFile != nil && !cmd.IsSet(name) {
		return *fromFile
	}
	return cmd.Duration(name)
}

// namedQueue resolves a --queue value. The returned close func releases
// queues created here and is a no-op for shared ones.
func namedQueue(name string) (dispatch.Queue, func(), error) {
	switch name {
	case "", "inline":
		return dispatch.Inline, func() {}, nil
	case "main":
		return dispatch.Main(), func() {}, nil
	case "global":
		return dispatch.Global(), func() {}, nil
	case "serial":
		q := dispatch.NewSerial("cli")
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue %q", name)
	}
}

// drain waits until a serial q is idle, including work queued by the tasks
// it ran while draining.
func drain(q dispatch.Queue) {
	s, ok := q.(*dispatch.Serial)
	if !ok {
		return
	}
	for {
		s.Sync(func() {})
		if s.Pending() == 0 {
			return
		}
	}
}
