package dbus

import (
	"github.com/godbus/dbus/v5"

	"stationd/internal/state"
)

// Properties interface implementation for org.freedesktop.DBus.Properties

// Get implements org.freedesktop.DBus.Properties.Get
func (s *Service) Get(iface, propName string) (dbus.Variant, *dbus.Error) {
	if iface != Interface {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{"Unknown interface"})
	}
	st := s.stateMgr.Get()
	v, ok := propertyMap(&st)[propName]
	if !ok {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []interface{}{"Unknown property: " + propName})
	}
	return v, nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll
func (s *Service) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != Interface {
		return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{"Unknown interface"})
	}
	st := s.stateMgr.Get()
	return propertyMap(&st), nil
}

// Set implements org.freedesktop.DBus.Properties.Set (read-only, returns error)
func (s *Service) Set(iface, propName string, value dbus.Variant) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []interface{}{"Properties are read-only"})
}

func propertyMap(st *state.State) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Enabled":       dbus.MakeVariant(st.Enabled),
		"Connecting":    dbus.MakeVariant(st.Connecting),
		"Scanning":      dbus.MakeVariant(st.Scanning),
		"Status":        dbus.MakeVariant(st.Status),
		"CurrentSSID":   dbus.MakeVariant(st.CurrentSSID),
		"CurrentOpen":   dbus.MakeVariant(st.CurrentOpen),
		"CurrentRSSI":   dbus.MakeVariant(st.SignalRSSI),
		"CurrentSignal": dbus.MakeVariant(st.SignalStrength),
		"Networks":      dbus.MakeVariant(networksToDBus(st.Networks)),
		"InterfaceName": dbus.MakeVariant(st.InterfaceName),
		"MacAddress":    dbus.MakeVariant(st.MacAddress),
		"IpAddress":     dbus.MakeVariant(st.IpAddress),
		"Gateway":       dbus.MakeVariant(st.Gateway),
		"TrafficIn":     dbus.MakeVariant(st.TrafficIn),
		"TrafficOut":    dbus.MakeVariant(st.TrafficOut),
		"LastEvent":     dbus.MakeVariant(st.LastEvent),
		"LastError":     dbus.MakeVariant(st.LastError),
	}
}

// NetworkDBus represents a network for D-Bus
type NetworkDBus struct {
	SSID string
	Open bool
	RSSI int16
}

// networksToDBus converts networks to D-Bus format
func networksToDBus(networks []state.Network) []NetworkDBus {
	result := make([]NetworkDBus, len(networks))
	for i, n := range networks {
		result[i] = NetworkDBus{
			SSID: n.SSID,
			Open: n.Open,
			RSSI: n.SignalDBm,
		}
	}
	return result
}
