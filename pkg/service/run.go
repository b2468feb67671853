package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ossuary-pi/ossuary/pkg/configstore"
	"github.com/ossuary-pi/ossuary/pkg/display"
	"github.com/ossuary-pi/ossuary/pkg/logging"
	"github.com/ossuary-pi/ossuary/pkg/logsink"
	"github.com/ossuary-pi/ossuary/pkg/netprobe"
	"github.com/ossuary-pi/ossuary/pkg/panel"
	"github.com/ossuary-pi/ossuary/pkg/processfile"
	"github.com/ossuary-pi/ossuary/pkg/supervisor"
	"github.com/ossuary-pi/ossuary/web"
)

// RunSupervisor wires up and runs the supervisor daemon until it is told to
// stop. SIGTERM and SIGINT request shutdown, SIGHUP requests a reload; the
// handlers only enqueue messages, the loop does the work.
func RunSupervisor(ctx context.Context, config *ServiceConfig, logger logging.Logger) error {
	pidFiles := processfile.NewManager(processfile.Config{
		BaseDirectory: config.Supervisor.PIDDirectory,
	}, logger)
	if err := pidFiles.Write(processfile.SupervisorFile, os.Getpid()); err != nil {
		logger.Warnf("Failed to write supervisor pid file: %v", err)
	}
	defer func() {
		if err := pidFiles.Remove(processfile.SupervisorFile); err != nil {
			logger.Warnf("Failed to remove supervisor pid file: %v", err)
		}
	}()

	sink, err := logsink.Open(config.Supervisor.LogPath, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	store := configstore.NewStore(config.Supervisor.ConfigPath, logger)

	s, err := supervisor.New(supervisor.Options{
		Store:              store,
		Sink:               sink,
		PIDFiles:           pidFiles,
		Prober:             netprobe.NewTCPProber(config.Supervisor.ProbeAddress, 0),
		Detector:           display.NewDetector(logger),
		PollInterval:       config.Supervisor.PollInterval,
		NetworkWaitCeiling: config.Supervisor.NetworkWaitCeiling,
		DisplayWaitCeiling: config.Supervisor.DisplayWaitCeiling,
		GracefulTimeout:    config.Supervisor.GracefulTimeout,
	}, logger)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(signals)

	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("Received %v, reloading configuration", sig)
				s.Reload()
			default:
				logger.Infof("Received %v, shutting down", sig)
				s.Stop()
			}
		}
	}()

	return s.Run(ctx)
}

// RunPanel wires up and runs the administrative panel until SIGTERM or
// SIGINT, or until ctx is cancelled.
func RunPanel(ctx context.Context, config *ServiceConfig, logger logging.Logger) error {
	pidFiles := processfile.NewManager(processfile.Config{
		BaseDirectory: config.Supervisor.PIDDirectory,
	}, logger)
	store := configstore.NewStore(config.Supervisor.ConfigPath, logger)

	server, err := panel.NewServer(panel.Options{
		Address:  config.Panel.Address,
		Store:    store,
		PIDFiles: pidFiles,
		LogPath:  config.Supervisor.LogPath,
		StaticFS: web.StaticFS(),
	}, logger)
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return server.Run(runCtx)
}
