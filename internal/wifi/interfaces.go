package wifi

import "time"

// EventListener receives radio events. Implementations must be invoked on the
// goroutine that owns the Controller.
type EventListener interface {
	OnEvent(EventType)
}

// Radio is the single Wi-Fi radio driven by the Controller. All methods are
// called from the controller goroutine and must not block for long.
type Radio interface {
	AddEventListener(EventListener)
	RemoveEventListener(EventListener)

	// StartScan returns false when the radio refuses (off, busy).
	StartScan() bool
	// ScanCompleted reports whether results of the last scan are available.
	ScanCompleted() bool
	// ScanResults returns at most max raw entries of the last scan.
	ScanResults(max int) []RawNetwork
	// APInfo returns the associated access point, if any.
	APInfo() (APInfo, bool)

	// Connect returns false when the radio refuses the request.
	Connect(ssid, password string) bool
	Disconnect()
	Status() ConnectionStatus
}

// Store persists the controller settings and per-network credentials.
type Store interface {
	Enabled() (bool, error)
	SetEnabled(enabled bool) error

	// DefaultSSID returns "" when no default network is stored.
	DefaultSSID() (string, error)
	SetDefaultSSID(ssid string) error
	ClearDefaultSSID() error

	// Password returns ok=false when nothing is stored for ssid.
	Password(ssid string) (password string, ok bool, err error)
	SetPassword(ssid, password string) error
	ClearPassword(ssid string) error
}

// TaskHandle identifies a scheduled task. The zero handle is never issued.
type TaskHandle uint64

// Task is a unit of work run by a Scheduler.
type Task interface {
	Run()
}

// Scheduler runs one-shot delayed tasks on the controller goroutine.
type Scheduler interface {
	ScheduleAfter(delay time.Duration, task Task) TaskHandle
	Cancel(TaskHandle)
	IsScheduled(TaskHandle) bool
}
