package dbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"stationd/internal/state"
	"stationd/internal/wifi"
)

const (
	ServiceName = "org.stationd.Station"
	ObjectPath  = "/org/stationd/Station"
	Interface   = "org.stationd.Station"

	propertiesIface = "org.freedesktop.DBus.Properties"

	callTimeout = 5 * time.Second
)

// Dispatcher runs fn on the controller goroutine and waits for it
type Dispatcher interface {
	Call(ctx context.Context, fn func()) error
}

type emitFunc func(path dbus.ObjectPath, name string, values ...interface{}) error

// Service exports the controller on the bus
type Service struct {
	conn       *dbus.Conn
	log        logr.Logger
	stateMgr   *state.Manager
	dispatcher Dispatcher
	controller *wifi.Controller
	emit       emitFunc

	mu        sync.Mutex
	published map[string]dbus.Variant
}

// Connect opens a private connection to the named bus ("system" or "session")
func Connect(busType string) (*dbus.Conn, error) {
	var conn *dbus.Conn
	var err error

	if busType == "system" {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to D-Bus: %w", err)
	}
	return conn, nil
}

func newService(log logr.Logger, stateMgr *state.Manager, dispatcher Dispatcher, controller *wifi.Controller, emit emitFunc) *Service {
	return &Service{
		log:        log.WithName("dbus"),
		stateMgr:   stateMgr,
		dispatcher: dispatcher,
		controller: controller,
		emit:       emit,
	}
}

// NewService claims the service name on conn and exports the station object.
// The caller registers the service as a controller listener.
func NewService(log logr.Logger, conn *dbus.Conn, stateMgr *state.Manager, dispatcher Dispatcher, controller *wifi.Controller) (*Service, error) {
	s := newService(log, stateMgr, dispatcher, controller, conn.Emit)
	s.conn = conn

	// Request service name
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", ServiceName)
	}

	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	if err := conn.Export(s, ObjectPath, propertiesIface); err != nil {
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:       Interface,
				Methods:    methods(),
				Properties: properties(),
				Signals:    signals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	stateMgr.SetOnChange(s.onStateChange)
	s.log.Info("Service registered", "name", ServiceName, "path", ObjectPath)
	return s, nil
}

// Close releases the service name and closes the connection
func (s *Service) Close() {
	s.stateMgr.SetOnChange(nil)
	if s.conn == nil {
		return
	}
	if _, err := s.conn.ReleaseName(ServiceName); err != nil {
		s.log.V(1).Info("Failed to release name", "error", err.Error())
	}
	s.conn.Close()
}

// Notify turns controller notifications into bus signals. It runs on the
// controller goroutine.
func (s *Service) Notify(n wifi.Notification) {
	switch n := n.(type) {
	case wifi.EnableChanged:
		s.emitSignal("EnableChanged", n.Enabled)
	case wifi.ScanStarted:
		s.emitSignal("ScanStarted")
	case wifi.ScanCompleted:
		s.emitSignal("ScanCompleted")
	case wifi.CurrentNetworkChanged:
		cur := s.controller.CurrentNetwork()
		s.emitSignal("CurrentNetworkChanged", cur.SSID, s.controller.CurrentNetworkStatus().String())
	case wifi.ConnectionStateChanged:
		s.emitSignal("ConnectionStateChanged", n.Event.String())
	case wifi.StoreFailed:
		msg := ""
		if n.Err != nil {
			msg = n.Err.Error()
		}
		s.emitSignal("Error", n.Op, msg)
	}
}

// onStateChange emits PropertiesChanged for the properties that differ from
// the last emission. Updates from several goroutines can hand over their
// copies out of order, so the current state is read under s.mu instead.
func (s *Service) onStateChange(*state.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.stateMgr.Get()
	next := propertyMap(&cur)
	changed := changedProperties(s.published, next)
	s.published = next
	if len(changed) == 0 {
		return
	}
	err := s.emit(ObjectPath, propertiesIface+".PropertiesChanged", Interface, changed, []string{})
	if err != nil {
		s.log.Error(err, "Failed to emit PropertiesChanged")
	}
}

// changedProperties returns the entries of next that are new or differ from prev
func changedProperties(prev, next map[string]dbus.Variant) map[string]dbus.Variant {
	changed := make(map[string]dbus.Variant)
	for name, v := range next {
		old, ok := prev[name]
		if ok && reflect.DeepEqual(old.Value(), v.Value()) {
			continue
		}
		changed[name] = v
	}
	return changed
}

func (s *Service) emitSignal(name string, values ...interface{}) {
	if err := s.emit(ObjectPath, Interface+"."+name, values...); err != nil {
		s.log.Error(err, "Failed to emit signal", "signal", name)
	}
}

// methods returns introspection method definitions
func methods() []introspect.Method {
	return []introspect.Method{
		{Name: "ToggleEnabled", Args: []introspect.Arg{
			{Name: "enabled", Type: "b", Direction: "out"},
		}},
		{Name: "Scan", Args: []introspect.Arg{
			{Name: "started", Type: "b", Direction: "out"},
		}},
		{Name: "Connect", Args: []introspect.Arg{
			{Name: "ssid", Type: "s", Direction: "in"},
			{Name: "password", Type: "s", Direction: "in"},
			{Name: "success", Type: "b", Direction: "out"},
		}},
		{Name: "ConnectSaved", Args: []introspect.Arg{
			{Name: "success", Type: "b", Direction: "out"},
		}},
		{Name: "Disconnect"},
		{Name: "Forget", Args: []introspect.Arg{
			{Name: "ssid", Type: "s", Direction: "in"},
		}},
		{Name: "SetPassword", Args: []introspect.Arg{
			{Name: "ssid", Type: "s", Direction: "in"},
			{Name: "password", Type: "s", Direction: "in"},
		}},
		{Name: "Pause"},
		{Name: "Resume"},
		{Name: "OtherNetwork", Args: []introspect.Arg{
			{Name: "index", Type: "i", Direction: "in"},
			{Name: "ssid", Type: "s", Direction: "out"},
			{Name: "open", Type: "b", Direction: "out"},
			{Name: "rssi", Type: "n", Direction: "out"},
		}},
	}
}

// properties returns introspection property definitions
func properties() []introspect.Property {
	return []introspect.Property{
		{Name: "Enabled", Type: "b", Access: "read"},
		{Name: "Connecting", Type: "b", Access: "read"},
		{Name: "Scanning", Type: "b", Access: "read"},
		{Name: "Status", Type: "s", Access: "read"},
		{Name: "CurrentSSID", Type: "s", Access: "read"},
		{Name: "CurrentOpen", Type: "b", Access: "read"},
		{Name: "CurrentRSSI", Type: "n", Access: "read"},
		{Name: "CurrentSignal", Type: "y", Access: "read"},
		{Name: "Networks", Type: "a(sbn)", Access: "read"},
		{Name: "InterfaceName", Type: "s", Access: "read"},
		{Name: "MacAddress", Type: "s", Access: "read"},
		{Name: "IpAddress", Type: "s", Access: "read"},
		{Name: "Gateway", Type: "s", Access: "read"},
		{Name: "TrafficIn", Type: "t", Access: "read"},
		{Name: "TrafficOut", Type: "t", Access: "read"},
		{Name: "LastEvent", Type: "s", Access: "read"},
		{Name: "LastError", Type: "s", Access: "read"},
	}
}

// signals returns introspection signal definitions
func signals() []introspect.Signal {
	return []introspect.Signal{
		{Name: "EnableChanged", Args: []introspect.Arg{{Name: "enabled", Type: "b"}}},
		{Name: "ScanStarted"},
		{Name: "ScanCompleted"},
		{Name: "CurrentNetworkChanged", Args: []introspect.Arg{
			{Name: "ssid", Type: "s"},
			{Name: "status", Type: "s"},
		}},
		{Name: "ConnectionStateChanged", Args: []introspect.Arg{{Name: "event", Type: "s"}}},
		{Name: "Error", Args: []introspect.Arg{
			{Name: "operation", Type: "s"},
			{Name: "message", Type: "s"},
		}},
	}
}
