package state

import (
	"stationd/internal/wifi"
)

// Mirror copies the controller's state into a Manager after every
// notification. It must be registered on the controller goroutine.
//
// A scan that finds nothing produces no notification, so the Mirror also
// listens to the radio and must be added there after the controller has
// subscribed.
type Mirror struct {
	mgr *Manager
	c   *wifi.Controller
}

func NewMirror(mgr *Manager, c *wifi.Controller) *Mirror {
	return &Mirror{mgr: mgr, c: c}
}

func (m *Mirror) Notify(n wifi.Notification) {
	m.mgr.Update(func(st *State) {
		switch n := n.(type) {
		case wifi.ScanStarted:
			st.Scanning = true
		case wifi.ScanCompleted:
			st.Scanning = false
		case wifi.ConnectionStateChanged:
			st.LastEvent = n.Event.String()
		case wifi.StoreFailed:
			st.LastError = n.Op
			if n.Err != nil {
				st.LastError += ": " + n.Err.Error()
			}
		}
		m.snapshot(st)
	})
}

// OnEvent resyncs after the controller has handled a completed scan.
func (m *Mirror) OnEvent(ev wifi.EventType) {
	if ev != wifi.EventScanCompleted {
		return
	}
	m.mgr.Update(func(st *State) {
		st.Scanning = false
		m.snapshot(st)
	})
}

// Sync refreshes the snapshot without a notification.
func (m *Mirror) Sync() {
	m.mgr.Update(m.snapshot)
}

func (m *Mirror) snapshot(st *State) {
	c := m.c
	st.Enabled = c.IsEnabled()
	st.Connecting = c.IsConnecting()
	st.Status = c.CurrentNetworkStatus().String()

	cur := c.CurrentNetwork()
	st.CurrentSSID = cur.SSID
	st.CurrentOpen = cur.Open
	st.SignalKnown = cur.SignalKnown
	st.SignalRSSI = int16(cur.RSSI)
	st.SignalStrength = 0
	if cur.SignalKnown {
		st.SignalStrength = DBmToPercent(int16(cur.RSSI))
	}

	nets := c.Networks()
	st.Networks = make([]Network, len(nets))
	for i, n := range nets {
		st.Networks[i] = Network{
			SSID:      n.SSID,
			Open:      n.Open,
			SignalDBm: int16(n.RSSI),
			Signal:    DBmToPercent(int16(n.RSSI)),
			Current:   i == c.CurrentNetworkIndex(),
		}
	}
}
