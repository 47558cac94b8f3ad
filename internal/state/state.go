package state

import (
	"sync"
)

// Network is a ranked network as published on the bus
type Network struct {
	SSID      string
	Open      bool
	SignalDBm int16 // Raw RSSI in dBm
	Signal    uint8 // Derived percentage 0-100
	Current   bool
}

// State is a snapshot of the station, safe to read from any goroutine
type State struct {
	// Controller state
	Enabled    bool
	Connecting bool
	Scanning   bool
	Status     string

	// Network of interest
	CurrentSSID    string
	CurrentOpen    bool
	SignalKnown    bool
	SignalRSSI     int16
	SignalStrength uint8

	Networks []Network

	// Interface info, from iwd and netlink
	InterfaceName string
	MacAddress    string
	IpAddress     string
	Gateway       string

	// Traffic (bytes/sec)
	TrafficIn  uint64
	TrafficOut uint64

	// Last connection event, e.g. "connection-lost"
	LastEvent string
	// Last error message for UI feedback
	LastError string
}

// Manager manages state with thread-safe access
type Manager struct {
	mu       sync.RWMutex
	state    State
	onChange func(*State) // Callback when state changes
}

// NewManager creates a new state manager
func NewManager() *Manager {
	return &Manager{}
}

// SetOnChange sets the callback for state changes
func (m *Manager) SetOnChange(fn func(*State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Get returns a copy of current state
func (m *Manager) Get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	st.Networks = append([]Network(nil), m.state.Networks...)
	return st
}

// Update atomically updates state and triggers callback
func (m *Manager) Update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	stateCopy := m.state
	stateCopy.Networks = append([]Network(nil), m.state.Networks...)
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(&stateCopy)
	}
}

// Helper: Convert dBm to percentage
func DBmToPercent(dBm int16) uint8 {
	// Linear scale: -100 dBm = 0%, -50 dBm = 100%
	if dBm <= -100 {
		return 0
	}
	if dBm >= -50 {
		return 100
	}
	return uint8(2 * (int(dBm) + 100))
}
