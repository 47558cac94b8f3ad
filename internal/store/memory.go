package store

import (
	"sort"
	"sync"
)

// Memory is a volatile store.
type Memory struct {
	mu        sync.Mutex
	enabled   bool
	ssid      string
	passwords map[string]string
}

func NewMemory() *Memory {
	return &Memory{passwords: make(map[string]string)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Enabled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

func (m *Memory) SetEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	return nil
}

func (m *Memory) DefaultSSID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ssid, nil
}

func (m *Memory) SetDefaultSSID(ssid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ssid = ssid
	return nil
}

func (m *Memory) ClearDefaultSSID() error {
	return m.SetDefaultSSID("")
}

func (m *Memory) Password(ssid string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pw, ok := m.passwords[ssid]
	return pw, ok, nil
}

func (m *Memory) SetPassword(ssid, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[ssid] = password
	return nil
}

func (m *Memory) ClearPassword(ssid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.passwords, ssid)
	return nil
}

func (m *Memory) SSIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ssids := make([]string, 0, len(m.passwords))
	for ssid := range m.passwords {
		ssids = append(ssids, ssid)
	}
	sort.Strings(ssids)
	return ssids, nil
}
