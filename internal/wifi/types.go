package wifi

import "time"

const (
	// MaxSSIDLen is the longest SSID accepted by 802.11.
	MaxSSIDLen = 32

	// UnknownRSSI is reported for networks that were never seen in a scan.
	UnknownRSSI int8 = -128

	DefaultScanInterval    = 15 * time.Second
	DefaultRefreshInterval = 2 * time.Second
	DefaultMaxScanResults  = 100
)

// ConnectionStatus of the network of interest
type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusNoNetworkInRange
	StatusScanCompleted
	StatusConnected
	StatusConnectFailed
	StatusConnectionLost
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNoNetworkInRange:
		return "no-network-in-range"
	case StatusScanCompleted:
		return "scan-completed"
	case StatusConnected:
		return "connected"
	case StatusConnectFailed:
		return "connect-failed"
	case StatusConnectionLost:
		return "connection-lost"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// EventType is an asynchronous event delivered by the radio
type EventType int

const (
	EventUnknown EventType = iota
	EventScanCompleted
	EventConnected
	EventGotIP
	EventDisconnected
	EventConnectionFailed
	EventConnectionLost
)

func (e EventType) String() string {
	switch e {
	case EventScanCompleted:
		return "scan-completed"
	case EventConnected:
		return "connected"
	case EventGotIP:
		return "got-ip"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionFailed:
		return "connection-failed"
	case EventConnectionLost:
		return "connection-lost"
	default:
		return "unknown"
	}
}

// terminal reports whether the event ends a connection attempt.
func (e EventType) terminal() bool {
	return e == EventDisconnected || e == EventConnectionFailed || e == EventConnectionLost
}

// status maps a connectivity event to the status it leads to.
func (e EventType) status() ConnectionStatus {
	switch e {
	case EventConnected:
		return StatusIdle
	case EventGotIP:
		return StatusConnected
	case EventDisconnected:
		return StatusDisconnected
	case EventConnectionLost:
		return StatusConnectionLost
	default:
		return StatusConnectFailed
	}
}

// AuthMode of an access point
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWEP
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPAWPA2PSK
	AuthWPA2Enterprise
	AuthWPA3PSK
	AuthWPA2WPA3PSK
	AuthWAPIPSK
	AuthUnknown
)

func (a AuthMode) String() string {
	switch a {
	case AuthOpen:
		return "open"
	case AuthWEP:
		return "wep"
	case AuthWPAPSK:
		return "wpa-psk"
	case AuthWPA2PSK:
		return "wpa2-psk"
	case AuthWPAWPA2PSK:
		return "wpa-wpa2-psk"
	case AuthWPA2Enterprise:
		return "wpa2-enterprise"
	case AuthWPA3PSK:
		return "wpa3-psk"
	case AuthWPA2WPA3PSK:
		return "wpa2-wpa3-psk"
	case AuthWAPIPSK:
		return "wapi-psk"
	default:
		return "unknown"
	}
}

// RawNetwork is one access point as reported by the radio, before
// deduplication. Several RawNetworks may share an SSID.
type RawNetwork struct {
	SSID    string
	BSSID   string
	Channel int
	RSSI    int8
	Auth    AuthMode
}

// APInfo describes the access point the radio is associated with.
type APInfo struct {
	RawNetwork
	Status ConnectionStatus
}

// Network is a ranked, deduplicated scan entry, or the remembered network of
// interest.
type Network struct {
	SSID string
	Open bool
	RSSI int8
	// SignalKnown is false when RSSI carries no measurement (the network
	// has not been seen by the radio).
	SignalKnown bool
}

func measured(ssid string, open bool, rssi int8) Network {
	return Network{SSID: ssid, Open: open, RSSI: rssi, SignalKnown: true}
}

func unmeasured(ssid string, open bool) Network {
	return Network{SSID: ssid, Open: open, RSSI: UnknownRSSI}
}
