package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/ossuary-pi/ossuary/pkg/logging"
	"github.com/ossuary-pi/ossuary/pkg/service"
)

type flagOptions struct {
	Settings string `long:"settings" description:"path to daemon settings YAML file"`
	LogLevel string `long:"log-level" description:"log level override (debug, info, warn, error)"`
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config := service.DefaultConfig()
	if opts.Settings != "" {
		loaded, err := service.LoadConfigFromFile(opts.Settings)
		if err != nil {
			fmt.Printf("Failed to load settings: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}
	if opts.LogLevel != "" {
		config.LogLevel = opts.LogLevel
	}

	logger := logging.NewZapLogger(config.LogLevel)
	logger.Infof("Starting startup supervisor, pid: %d", os.Getpid())

	if err := service.RunSupervisor(context.Background(), config, logger); err != nil {
		logger.Errorf("Supervisor failed: %v", err)
		os.Exit(1)
	}
}
