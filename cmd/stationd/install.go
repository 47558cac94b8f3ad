package main

import (
	"context"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"stationd/internal/config"
)

// program adapts run to the service manager
type program struct {
	ctx context.Context
	log logr.Logger
	cfg config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := run(ctx, p.log, p.cfg); err != nil {
			// Let the service manager restart us
			p.log.Error(err, "Daemon failed")
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func newSystemService(ctx context.Context, log logr.Logger, cfg config.Config) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        config.Name,
		DisplayName: "stationd",
		Description: "Wi-Fi station connection daemon for iwd",
		Dependencies: []string{
			"Requires=dbus.service",
			"After=iwd.service",
		},
	}
	s, err := service.New(&program{ctx: ctx, log: log, cfg: cfg}, svcConfig)
	if err != nil {
		log.Error(err, "Failed to create service")
		return nil, err
	}
	return s, nil
}

func loadService(cmd *cobra.Command) (service.Service, error) {
	log := logr.FromContextOrDiscard(cmd.Context())
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	return newSystemService(cmd.Context(), log, cfg)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install stationd as a " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadService(cmd)
		if err != nil {
			return err
		}
		logr.FromContextOrDiscard(cmd.Context()).Info("Installing service")
		return s.Install()
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall stationd as a " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadService(cmd)
		if err != nil {
			return err
		}
		logr.FromContextOrDiscard(cmd.Context()).Info("Uninstalling service")
		return s.Uninstall()
	},
}
