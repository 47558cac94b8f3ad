package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	gobus "github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"

	"stationd/internal/config"
	stationbus "stationd/internal/dbus"
	"stationd/internal/iwd"
	"stationd/internal/netlink"
	"stationd/internal/scheduler"
	"stationd/internal/state"
	"stationd/internal/store"
	"stationd/internal/traffic"
	"stationd/internal/wifi"
)

func runInteractive(ctx context.Context, log logr.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, log, cfg)
}

// run wires the daemon together and blocks until ctx is done or a component
// fails
func run(ctx context.Context, log logr.Logger, cfg config.Config) error {
	log.Info("stationd starting", "bus", cfg.Bus, "store", cfg.StoreDriver, "interface", cfg.Interface)

	creds, err := store.Open(log.WithName("store"), cfg.StoreDriver, cfg.StorePath)
	if err != nil {
		return err
	}
	defer creds.Close()

	// iwd lives on the system bus whatever bus the service is exported on
	sysBus, err := gobus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to the system bus: %w", err)
	}

	loop := scheduler.New(log)
	stateMgr := state.NewManager()
	radio := iwd.NewClient(log, sysBus, stateMgr, loop.Post, iwd.Options{
		Interface:     cfg.Interface,
		CredentialTTL: cfg.CredentialTTL,
	})
	controller := wifi.NewController(log, creds, radio, loop, cfg.Controller)

	busConn, err := stationbus.Connect(cfg.Bus)
	if err != nil {
		return err
	}
	svc, err := stationbus.NewService(log, busConn, stateMgr, loop, controller)
	if err != nil {
		busConn.Close()
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(ctx) })

	var startErr error
	err = loop.Call(ctx, func() {
		if startErr = radio.Start(); startErr != nil {
			return
		}
		mirror := state.NewMirror(stateMgr, controller)
		controller.AddListener(mirror)
		controller.AddListener(svc)
		controller.Begin()
		radio.AddEventListener(mirror)
		// Nothing pauses a daemon except sleep, so scanning starts now
		controller.Resume()
		mirror.Sync()
	})
	if err = errors.Join(err, startErr); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("failed to start controller: %w", err)
	}

	if watcher, err := netlink.NewWatcher(log, stateMgr, radio, loop.Post); err != nil {
		log.Error(err, "Netlink watcher unavailable, got-ip will not be reported")
	} else {
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if counters, err := traffic.DialLinkCounters(); err != nil {
		log.Error(err, "Traffic counters unavailable")
	} else {
		defer counters.Close()
		monitor := traffic.NewMonitor(log, stateMgr, counters)
		g.Go(func() error { return monitor.Run(ctx) })
	}

	g.Go(func() error { return watchSleep(ctx, log, loop, controller) })

	log.Info("stationd ready")
	err = g.Wait()

	// The loop has stopped; nothing else touches the controller now.
	controller.Close()
	radio.Close()
	log.Info("stationd stopped")
	return err
}
