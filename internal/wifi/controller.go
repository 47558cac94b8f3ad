package wifi

import (
	"time"

	"github.com/go-logr/logr"
)

// Config tunes the Controller. Zero fields take the defaults.
type Config struct {
	ScanInterval    time.Duration
	RefreshInterval time.Duration
	MaxScanResults  int
}

// Controller tracks available networks, drives the connect/disconnect
// lifecycle of a single radio and notifies listeners of every change.
//
// A Controller is not safe for concurrent use. All methods, scheduled tasks
// and radio events must run on one goroutine (see scheduler.Loop).
type Controller struct {
	log    logr.Logger
	store  Store
	radio  Radio
	config Config

	enabled      bool
	connecting   bool
	current      Network
	currentIndex int
	status       ConnectionStatus
	networks     []Network

	radioListener *radioListener
	listeners     listenerSet

	scan    timer
	refresh timer
}

// NewController creates a disabled controller. Call Begin to load the persisted
// settings and subscribe to radio events.
func NewController(log logr.Logger, store Store, radio Radio, sched Scheduler, config Config) *Controller {
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultScanInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.MaxScanResults <= 0 {
		config.MaxScanResults = DefaultMaxScanResults
	}

	c := &Controller{
		log:          log.WithName("controller"),
		store:        store,
		radio:        radio,
		config:       config,
		current:      unmeasured("", false),
		currentIndex: -1,
		status:       StatusNoNetworkInRange,
	}
	c.radioListener = &radioListener{sink: c}
	c.scan = timer{sched: sched, task: scanTask{c}}
	c.refresh = timer{sched: sched, task: refreshTask{c}}
	return c
}

// Begin subscribes to radio events, loads the persisted settings and, when
// enabled with a default network, starts connecting to it.
func (c *Controller) Begin() {
	c.radio.AddEventListener(c.radioListener)

	enabled, err := c.store.Enabled()
	if err != nil {
		c.storeFailed("get-enabled", err)
	}
	c.enabled = enabled
	c.log.Info("Loaded settings", "enabled", enabled)
	if c.enabled {
		c.notifyEnableChanged()
	}

	if c.enabled && c.defaultSSID() != "" {
		c.ConnectWithStored()
	}
}

// Close unsubscribes from the radio and cancels the background tasks.
func (c *Controller) Close() {
	c.radio.RemoveEventListener(c.radioListener)
	c.scan.cancel()
	c.refresh.cancel()
}

func (c *Controller) AddListener(l Listener) ListenerID {
	return c.listeners.add(l)
}

// RemoveListener returns false if id is not registered.
func (c *Controller) RemoveListener(id ListenerID) bool {
	return c.listeners.remove(id)
}

// OtherNetworksCount returns the number of ranked networks, excluding the
// current one.
func (c *Controller) OtherNetworksCount() int {
	count := len(c.networks)
	if c.currentIndex >= 0 {
		count--
	}
	return count
}

// OtherNetwork returns the i-th ranked network, skipping the current one.
func (c *Controller) OtherNetwork(i int) (Network, bool) {
	if i < 0 {
		return Network{}, false
	}
	if c.currentIndex >= 0 && i >= c.currentIndex {
		i++
	}
	if i >= len(c.networks) {
		return Network{}, false
	}
	return c.networks[i], true
}

// CurrentNetwork is the network of interest. It may be the default network
// even when it is out of range.
func (c *Controller) CurrentNetwork() Network {
	return c.current
}

// CurrentNetworkIndex is the rank of the current network, or -1.
func (c *Controller) CurrentNetworkIndex() int {
	return c.currentIndex
}

func (c *Controller) CurrentNetworkStatus() ConnectionStatus {
	return c.status
}

// LookupNetwork finds ssid among the ranked networks of the last scan.
func (c *Controller) LookupNetwork(ssid string) (Network, bool) {
	if i := c.indexOf(ssid); i >= 0 {
		return c.networks[i], true
	}
	return Network{}, false
}

// Networks returns a copy of the ranked networks of the last scan.
func (c *Controller) Networks() []Network {
	return append([]Network(nil), c.networks...)
}

func (c *Controller) IsScanCompleted() bool {
	return c.radio.ScanCompleted()
}

func (c *Controller) IsEnabled() bool {
	return c.enabled
}

func (c *Controller) IsConnecting() bool {
	return c.connecting
}

// StartScan asks the radio for a scan. Listeners hear ScanStarted only if the
// radio accepted.
func (c *Controller) StartScan() bool {
	if !c.radio.StartScan() {
		c.log.V(1).Info("Radio refused scan")
		return false
	}
	c.listeners.dispatch(ScanStarted{})
	return true
}

// ToggleEnabled flips and persists the enabled flag. Disabling drops the
// association and stops periodic scanning.
func (c *Controller) ToggleEnabled() {
	c.enabled = !c.enabled
	if err := c.store.SetEnabled(c.enabled); err != nil {
		c.storeFailed("set-enabled", err)
	}
	if !c.enabled {
		c.radio.Disconnect()
	}
	c.connecting = false
	c.log.Info("Toggled", "enabled", c.enabled)
	c.notifyEnableChanged()
	if c.enabled {
		c.Resume()
	} else {
		c.Pause()
	}
}

// Pause cancels periodic scanning. The periodic refresh of the current
// network keeps running until the controller is disabled.
func (c *Controller) Pause() {
	c.scan.cancel()
}

// Resume refreshes the current network, makes sure the periodic refresh is
// running, and either reports the available scan results or starts a scan.
func (c *Controller) Resume() {
	if !c.enabled {
		return
	}
	c.refreshCurrentNetwork()
	if !c.refresh.isScheduled() {
		c.refresh.scheduleAfter(c.config.RefreshInterval)
	}
	if c.radio.ScanCompleted() {
		c.listeners.dispatch(ScanCompleted{})
		c.scan.scheduleAfter(c.config.ScanInterval)
	} else {
		c.StartScan()
	}
}

func (c *Controller) SetPassword(ssid, password string) {
	if err := c.store.SetPassword(ssid, password); err != nil {
		c.storeFailed("set-password", err)
	}
}

// StoredPassword returns the persisted password for ssid.
func (c *Controller) StoredPassword(ssid string) (string, bool) {
	password, ok, err := c.store.Password(ssid)
	if err != nil {
		c.storeFailed("get-password", err)
		return "", false
	}
	return password, ok
}

// ConnectWithStored connects to the default network with its stored password.
func (c *Controller) ConnectWithStored() bool {
	ssid := c.defaultSSID()
	password, _ := c.StoredPassword(ssid)
	return c.ConnectTo(ssid, password)
}

// ConnectTo makes ssid the default network, stores a changed non-empty
// password, and asks the radio to connect. The current network is seeded
// right away so listeners see the attempt before the radio reports back.
func (c *Controller) ConnectTo(ssid, password string) bool {
	if !c.enabled {
		c.log.V(1).Info("Not connecting while disabled", "ssid", ssid)
		return false
	}

	if ssid != c.defaultSSID() {
		if err := c.store.SetDefaultSSID(ssid); err != nil {
			c.storeFailed("set-default-ssid", err)
		}
	}
	if password != "" {
		if stored, ok := c.StoredPassword(ssid); !ok || stored != password {
			c.SetPassword(ssid, password)
		}
	}

	if !c.radio.Connect(ssid, password) {
		c.log.Info("Radio refused connection", "ssid", ssid)
		return false
	}
	c.connecting = true
	c.log.Info("Connecting", "ssid", ssid)

	if n, ok := c.LookupNetwork(ssid); ok {
		c.updateCurrentNetwork(n, StatusDisconnected, true)
	} else {
		c.updateCurrentNetwork(unmeasured(ssid, password == ""), StatusDisconnected, true)
	}
	return true
}

// Disconnect drops the association. The current network and its credentials
// are kept.
func (c *Controller) Disconnect() {
	c.connecting = false
	c.radio.Disconnect()
}

// Forget deletes the stored password for ssid, and the default network
// pointer if it names ssid.
func (c *Controller) Forget(ssid string) {
	ForgetNetwork(c.store, ssid, c.storeFailed)
	c.log.Info("Forgot network", "ssid", ssid)
}

// ForgetNetwork deletes the stored password for ssid, and the default network
// pointer if it names ssid. Each failing store operation is passed to failed
// and the remaining ones still run.
func ForgetNetwork(s Store, ssid string, failed func(op string, err error)) {
	if err := s.ClearPassword(ssid); err != nil {
		failed("clear-password", err)
	}
	def, err := s.DefaultSSID()
	if err != nil {
		failed("get-default-ssid", err)
		return
	}
	if def == ssid {
		if err := s.ClearDefaultSSID(); err != nil {
			failed("clear-default-ssid", err)
		}
	}
}

func (c *Controller) defaultSSID() string {
	ssid, err := c.store.DefaultSSID()
	if err != nil {
		c.storeFailed("get-default-ssid", err)
		return ""
	}
	return ssid
}

func (c *Controller) notifyEnableChanged() {
	c.listeners.dispatch(EnableChanged{Enabled: c.enabled})
}

func (c *Controller) storeFailed(op string, err error) {
	c.log.Error(err, "Store operation failed", "op", op)
	c.listeners.dispatch(StoreFailed{Op: op, Err: err})
}

func (c *Controller) indexOf(ssid string) int {
	for i, n := range c.networks {
		if n.SSID == ssid {
			return i
		}
	}
	return -1
}
