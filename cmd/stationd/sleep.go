package main

import (
	"context"

	"github.com/go-logr/logr"
	gobus "github.com/godbus/dbus/v5"

	"stationd/internal/scheduler"
	"stationd/internal/wifi"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// watchSleep listens for the PrepareForSleep signal from logind. Scanning is
// paused before suspend and the controller resumes on wake-up, which refreshes
// the current network and scans right away.
func watchSleep(ctx context.Context, log logr.Logger, loop *scheduler.Loop, controller *wifi.Controller) error {
	log = log.WithName("sleep")

	conn, err := gobus.ConnectSystemBus()
	if err != nil {
		log.Error(err, "Cannot watch system sleep")
		return nil
	}
	defer conn.Close()

	rule := "type='signal',interface='org.freedesktop.login1.Manager',member='PrepareForSleep'"
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		log.Error(err, "Cannot subscribe to PrepareForSleep")
		return nil
	}

	ch := make(chan *gobus.Signal, 1)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if sig.Name != prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			goingToSleep, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if goingToSleep {
				log.Info("System going to sleep, pausing scans")
				loop.Post(controller.Pause)
			} else {
				log.Info("System resumed from sleep")
				loop.Post(controller.Resume)
			}
		}
	}
}
