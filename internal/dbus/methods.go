package dbus

import (
	"context"

	"github.com/godbus/dbus/v5"

	"stationd/internal/wifi"
)

// D-Bus method implementations. Each one runs on the controller goroutine.

func errorf(name, msg string) *dbus.Error {
	return dbus.NewError(Interface+".Error."+name, []interface{}{msg})
}

// call runs fn on the controller goroutine
func (s *Service) call(method string, fn func()) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := s.dispatcher.Call(ctx, fn); err != nil {
		s.log.Error(err, "Method not dispatched", "method", method)
		return errorf("Unavailable", err.Error())
	}
	return nil
}

func validSSID(ssid string) *dbus.Error {
	if ssid == "" || len(ssid) > wifi.MaxSSIDLen {
		return errorf("InvalidArgs", "SSID must be 1 to 32 bytes")
	}
	return nil
}

// ToggleEnabled flips the enabled flag and returns the new value
func (s *Service) ToggleEnabled() (bool, *dbus.Error) {
	var enabled bool
	derr := s.call("ToggleEnabled", func() {
		s.controller.ToggleEnabled()
		enabled = s.controller.IsEnabled()
	})
	return enabled, derr
}

// Scan requests a scan
func (s *Service) Scan() (bool, *dbus.Error) {
	var started bool
	derr := s.call("Scan", func() {
		started = s.controller.StartScan()
	})
	return started, derr
}

// Connect connects to ssid, storing it as the default network
func (s *Service) Connect(ssid, password string) (bool, *dbus.Error) {
	if derr := validSSID(ssid); derr != nil {
		return false, derr
	}
	s.log.Info("Connect requested", "ssid", ssid)
	var ok bool
	derr := s.call("Connect", func() {
		ok = s.controller.ConnectTo(ssid, password)
	})
	return ok, derr
}

// ConnectSaved connects to the default network with its stored password
func (s *Service) ConnectSaved() (bool, *dbus.Error) {
	var ok bool
	derr := s.call("ConnectSaved", func() {
		ok = s.controller.ConnectWithStored()
	})
	return ok, derr
}

func (s *Service) Disconnect() *dbus.Error {
	return s.call("Disconnect", s.controller.Disconnect)
}

// Forget drops the stored password of ssid, and the default network if it
// is ssid. The current association is left alone.
func (s *Service) Forget(ssid string) *dbus.Error {
	if derr := validSSID(ssid); derr != nil {
		return derr
	}
	return s.call("Forget", func() {
		s.controller.Forget(ssid)
	})
}

func (s *Service) SetPassword(ssid, password string) *dbus.Error {
	if derr := validSSID(ssid); derr != nil {
		return derr
	}
	return s.call("SetPassword", func() {
		s.controller.SetPassword(ssid, password)
	})
}

func (s *Service) Pause() *dbus.Error {
	return s.call("Pause", s.controller.Pause)
}

func (s *Service) Resume() *dbus.Error {
	return s.call("Resume", s.controller.Resume)
}

// OtherNetwork returns the i-th in-range network other than the current one
func (s *Service) OtherNetwork(i int32) (string, bool, int16, *dbus.Error) {
	var n wifi.Network
	var ok bool
	if derr := s.call("OtherNetwork", func() {
		n, ok = s.controller.OtherNetwork(int(i))
	}); derr != nil {
		return "", false, 0, derr
	}
	if !ok {
		return "", false, 0, errorf("OutOfRange", "no such network")
	}
	return n.SSID, n.Open, int16(n.RSSI), nil
}
