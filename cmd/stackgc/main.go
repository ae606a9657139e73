// ABOUTME: stackgc command line: runs heap scenarios and analyses heap dumps
// ABOUTME: Global flags select the machine config file and log verbosity

// stackgc exercises the collector and inspects its heap dumps.
package main

import (
	"fmt"
	"os"

	"github.com/prateek/stackgc"
	"github.com/prateek/stackgc/vm"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file for the machine",
	}
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log level (debug|info|warn|error); debug reports every collection",
		Value: "info",
	}
	DumpFlag = &cli.StringFlag{
		Name:  "dump",
		Usage: "write a JSON heap dump to this file before teardown",
	}
	MaxPathsFlag = &cli.IntFlag{
		Name:  "paths",
		Usage: "number of paths to a root shown per object",
		Value: 1,
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "stackgc",
		Usage:   "mark-and-sweep collector playground",
		Version: stackgc.Version,
		Flags:   []cli.Flag{ConfigFileFlag, VerbosityFlag},
		Commands: []*cli.Command{
			scenarioCommand,
			analyzeCommand,
			configCommand,
		},
	}
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Print the effective machine configuration",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		out, err := cfg.EncodeTOML()
		if err != nil {
			return err
		}
		_, err = ctx.App.Writer.Write(out)
		return err
	},
}

// loadConfig returns the config named by --config, or the defaults
func loadConfig(ctx *cli.Context) (vm.Config, error) {
	file := ctx.String(ConfigFileFlag.Name)
	if file == "" {
		return vm.DefaultConfig, nil
	}
	cfg, err := vm.LoadConfig(file)
	if err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger at the --verbosity level
func newLogger(ctx *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(ctx.String(VerbosityFlag.Name))); err != nil {
		return nil, fmt.Errorf("invalid verbosity: %w", err)
	}
	handler := slog.NewTextHandler(ctx.App.ErrWriter, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
