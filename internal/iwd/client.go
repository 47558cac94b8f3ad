package iwd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"

	"stationd/internal/state"
	"stationd/internal/wifi"
)

const (
	IWDService        = "net.connman.iwd"
	StationIface      = "net.connman.iwd.Station"
	DeviceIface       = "net.connman.iwd.Device"
	NetworkIface      = "net.connman.iwd.Network"
	KnownNetworkIface = "net.connman.iwd.KnownNetwork"

	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"
)

// Station states reported by iwd
const (
	stateConnected    = "connected"
	stateConnecting   = "connecting"
	stateDisconnected = "disconnected"
	stateRoaming      = "roaming"
)

// Options configures the client
type Options struct {
	// Interface selects the station by name; empty takes the first one.
	Interface     string
	CredentialTTL time.Duration
}

// Client drives one iwd station and implements wifi.Radio.
//
// D-Bus signals are received on a separate goroutine and handed to post, so
// every field below is only touched from the controller goroutine.
type Client struct {
	conn     *dbus.Conn
	log      logr.Logger
	stateMgr *state.Manager
	post     func(func())
	opts     Options
	agent    *Agent
	signals  chan *dbus.Signal

	forwarders sync.WaitGroup

	initialized bool
	devicePath  dbus.ObjectPath
	stationPath dbus.ObjectPath
	ifaceName   string
	powered     bool

	stationState     string
	connectedNetwork dbus.ObjectPath
	wasConnected     bool

	// hasIP tracks whether the interface holds an IPv4 address, whatever
	// the station state. ipReported is set once got-ip went out for the
	// current association.
	hasIP      bool
	ipReported bool

	scanning      bool
	scanCompleted bool

	// attempt is set by Connect and cleared once iwd reports a result
	attempt             bool
	disconnectRequested bool

	listeners []wifi.EventListener
}

var _ wifi.Radio = (*Client)(nil)

// NewClient creates a client on the system bus connection conn. Nothing is
// queried until Start.
func NewClient(log logr.Logger, conn *dbus.Conn, stateMgr *state.Manager, post func(func()), opts Options) *Client {
	log = log.WithName("iwd")
	return &Client{
		conn:         conn,
		log:          log,
		stateMgr:     stateMgr,
		post:         post,
		opts:         opts,
		agent:        NewAgent(log, conn, opts.CredentialTTL),
		stationState: stateDisconnected,
	}
}

// Start subscribes to iwd lifecycle and property signals and picks up the
// station if iwd is already running. Must run on the controller goroutine.
func (c *Client) Start() error {
	if err := c.subscribe(); err != nil {
		return err
	}
	if err := c.maybeInitIWD(); err != nil {
		c.log.Info("iwd not available yet, waiting for it to appear", "reason", err.Error())
	}
	return nil
}

// Close stops signal delivery and unregisters the agent
func (c *Client) Close() {
	if c.signals != nil {
		// A terminated connection has closed the channel already
		if c.conn.Connected() {
			c.conn.RemoveSignal(c.signals)
			close(c.signals)
		}
		c.signals = nil
		c.forwarders.Wait()
	}
	if c.initialized {
		if err := c.agent.UnregisterFromIWD(); err != nil {
			c.log.V(1).Info("Failed to unregister agent", "error", err.Error())
		}
	}
}

func (c *Client) subscribe() error {
	rules := []string{
		"type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='" + IWDService + "'",
		"type='signal',sender='" + IWDService + "',interface='" + objectManagerIface + "',member='InterfacesAdded'",
		"type='signal',sender='" + IWDService + "',interface='" + objectManagerIface + "',member='InterfacesRemoved'",
		"type='signal',sender='" + IWDService + "',interface='" + propertiesIface + "',member='PropertiesChanged'",
	}
	for _, rule := range rules {
		if err := c.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return fmt.Errorf("failed to add match %q: %w", rule, err)
		}
	}

	c.signals = make(chan *dbus.Signal, 16)
	c.conn.Signal(c.signals)
	c.forward(c.signals)
	return nil
}

// forward hands signals from ch to the controller goroutine until ch is
// closed.
func (c *Client) forward(ch <-chan *dbus.Signal) {
	c.forwarders.Add(1)
	go func() {
		defer c.forwarders.Done()
		for sig := range ch {
			sig := sig
			c.post(func() { c.handleSignal(sig) })
		}
	}()
}

func (c *Client) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case "org.freedesktop.DBus.NameOwnerChanged":
		if len(sig.Body) != 3 {
			return
		}
		name, _ := sig.Body[0].(string)
		oldOwner, _ := sig.Body[1].(string)
		newOwner, _ := sig.Body[2].(string)
		if name != IWDService {
			return
		}
		if oldOwner == "" && newOwner != "" {
			c.log.Info("iwd appeared, initializing")
			if err := c.maybeInitIWD(); err != nil {
				c.log.Error(err, "Failed to initialize iwd")
			}
		} else if oldOwner != "" && newOwner == "" {
			c.log.Info("iwd disappeared")
			c.stationGone()
		}

	case objectManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		if _, hasStation := ifaces[StationIface]; hasStation && !c.initialized {
			c.log.Info("Station appeared, initializing")
			if err := c.maybeInitIWD(); err != nil {
				c.log.Error(err, "Failed to initialize iwd after station appeared")
			}
		}

	case objectManagerIface + ".InterfacesRemoved":
		if len(sig.Body) < 2 {
			return
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].([]string)
		if path != c.stationPath {
			return
		}
		for _, iface := range ifaces {
			if iface == StationIface {
				c.log.Info("Station removed", "path", path)
				c.stationGone()
				return
			}
		}

	case propertiesIface + ".PropertiesChanged":
		if len(sig.Body) < 2 {
			return
		}
		iface, _ := sig.Body[0].(string)
		props, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		switch {
		case iface == StationIface && sig.Path == c.stationPath:
			c.handleStationChange(props)
		case iface == DeviceIface && sig.Path == c.devicePath:
			c.handleDeviceChange(props)
		}
	}
}

// maybeInitIWD finds the station and registers the agent. It is idempotent.
func (c *Client) maybeInitIWD() error {
	if c.initialized {
		return nil
	}
	if err := c.findStation(); err != nil {
		return err
	}
	if err := c.agent.RegisterWithIWD(); err != nil {
		// Open and known networks still connect without an agent.
		c.log.Error(err, "Failed to register agent")
	}
	c.initialized = true
	c.log.Info("iwd client connected", "station", c.stationPath, "interface", c.ifaceName)
	return nil
}

// findStation picks the station object and reads its initial properties
func (c *Client) findStation() error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := c.conn.Object(IWDService, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return fmt.Errorf("failed to get managed objects: %w", err)
	}

	for path, ifaces := range objects {
		stationProps, ok := ifaces[StationIface]
		if !ok {
			continue
		}
		devProps, ok := ifaces[DeviceIface]
		if !ok {
			continue
		}
		name, _ := devProps["Name"].Value().(string)
		if c.opts.Interface != "" && name != c.opts.Interface {
			continue
		}
		c.stationPath = path
		c.devicePath = path
		c.handleDeviceChange(devProps)
		c.stationState = stateDisconnected
		c.handleStationChange(stationProps)
		return nil
	}

	if c.opts.Interface != "" {
		return fmt.Errorf("no station on interface %s", c.opts.Interface)
	}
	return fmt.Errorf("no WiFi station found")
}

// stationGone forgets the station. A live connection is reported as lost.
func (c *Client) stationGone() {
	wasConnected := c.wasConnected
	c.initialized = false
	c.devicePath = ""
	c.stationPath = ""
	c.powered = false
	c.stationState = stateDisconnected
	c.connectedNetwork = ""
	c.wasConnected = false
	c.hasIP = false
	c.ipReported = false
	c.scanning = false
	c.attempt = false

	c.stateMgr.Update(func(st *state.State) {
		st.InterfaceName = ""
		st.MacAddress = ""
	})
	if wasConnected {
		c.emit(wifi.EventConnectionLost)
	}
}

func (c *Client) handleDeviceChange(props map[string]dbus.Variant) {
	if v, ok := props["Powered"]; ok {
		c.powered, _ = v.Value().(bool)
		c.log.V(1).Info("Device power changed", "powered", c.powered)
	}
	var name, mac string
	if v, ok := props["Name"]; ok {
		name, _ = v.Value().(string)
		c.ifaceName = name
	}
	if v, ok := props["Address"]; ok {
		mac, _ = v.Value().(string)
	}
	if name != "" || mac != "" {
		c.stateMgr.Update(func(st *state.State) {
			if name != "" {
				st.InterfaceName = name
			}
			if mac != "" {
				st.MacAddress = mac
			}
		})
	}
}

// handleStationChange turns station property changes into radio events
func (c *Client) handleStationChange(props map[string]dbus.Variant) {
	if v, ok := props["ConnectedNetwork"]; ok {
		c.connectedNetwork, _ = v.Value().(dbus.ObjectPath)
	}
	if v, ok := props["State"]; ok {
		if s, ok := v.Value().(string); ok {
			c.stationStateChanged(s)
		}
	}
	if v, ok := props["Scanning"]; ok {
		scanning, _ := v.Value().(bool)
		if scanning {
			c.scanning = true
		} else if c.scanning {
			c.scanning = false
			c.scanCompleted = true
			c.log.V(1).Info("Scan completed")
			c.emit(wifi.EventScanCompleted)
		}
	}
}

func (c *Client) stationStateChanged(next string) {
	prev := c.stationState
	if next == prev {
		return
	}
	c.stationState = next
	c.log.V(1).Info("Station state", "from", prev, "to", next)

	switch next {
	case stateConnected:
		c.attempt = false
		if prev == stateRoaming {
			return
		}
		c.wasConnected = true
		c.emit(wifi.EventConnected)
		// With iwd doing network configuration the address shows up
		// before the state leaves connecting.
		c.reportIP()
	case stateRoaming:
		c.wasConnected = true
	case stateDisconnected:
		ev := disconnectEvent(prev, c.wasConnected, c.disconnectRequested)
		c.wasConnected = false
		c.disconnectRequested = false
		c.attempt = false
		c.ipReported = false
		c.connectedNetwork = ""
		c.emit(ev)
	}
}

// disconnectEvent classifies a transition to the disconnected state
func disconnectEvent(prev string, wasConnected, requested bool) wifi.EventType {
	switch {
	case requested:
		return wifi.EventDisconnected
	case prev == stateConnecting:
		return wifi.EventConnectionFailed
	case wasConnected:
		return wifi.EventConnectionLost
	default:
		return wifi.EventDisconnected
	}
}

// AddressAcquired reports that ifname got an IPv4 address. It emits got-ip
// when ifname is the connected station, otherwise once it connects.
func (c *Client) AddressAcquired(ifname string) {
	if ifname != c.ifaceName {
		return
	}
	c.hasIP = true
	c.reportIP()
}

// AddressLost reports that ifname lost its last IPv4 address.
func (c *Client) AddressLost(ifname string) {
	if ifname == c.ifaceName {
		c.hasIP = false
		c.ipReported = false
	}
}

func (c *Client) reportIP() {
	if !c.hasIP || c.ipReported {
		return
	}
	if c.stationState != stateConnected && c.stationState != stateRoaming {
		return
	}
	c.ipReported = true
	c.emit(wifi.EventGotIP)
}

func (c *Client) emit(ev wifi.EventType) {
	for _, l := range append([]wifi.EventListener(nil), c.listeners...) {
		l.OnEvent(ev)
	}
}

func (c *Client) AddEventListener(l wifi.EventListener) {
	c.listeners = append(c.listeners, l)
}

func (c *Client) RemoveEventListener(l wifi.EventListener) {
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *Client) ready() bool {
	return c.initialized && c.powered
}

// StartScan asks iwd to scan. It returns false when there is no powered
// station or iwd is busy.
func (c *Client) StartScan() bool {
	if !c.ready() {
		return false
	}
	err := c.conn.Object(IWDService, c.stationPath).Call(StationIface+".Scan", 0).Err
	if err != nil {
		if !strings.Contains(err.Error(), "Busy") {
			c.log.Error(err, "Scan call failed")
		}
		return false
	}
	c.scanCompleted = false
	return true
}

func (c *Client) ScanCompleted() bool {
	return c.scanCompleted
}

type orderedNetwork struct {
	Path dbus.ObjectPath
	RSSI int16 // 1/100 dBm
}

func (c *Client) orderedNetworks() ([]orderedNetwork, error) {
	var result []orderedNetwork
	err := c.conn.Object(IWDService, c.stationPath).Call(StationIface+".GetOrderedNetworks", 0).Store(&result)
	if err != nil {
		return nil, fmt.Errorf("GetOrderedNetworks failed: %w", err)
	}
	return result, nil
}

// ScanResults returns the networks iwd currently knows about
func (c *Client) ScanResults(max int) []wifi.RawNetwork {
	if !c.initialized {
		return nil
	}
	ordered, err := c.orderedNetworks()
	if err != nil {
		c.log.Error(err, "Failed to fetch scan results")
		return nil
	}
	results := make([]wifi.RawNetwork, 0, len(ordered))
	for _, n := range ordered {
		if len(results) == max {
			break
		}
		raw, err := c.networkInfo(n.Path, n.RSSI)
		if err != nil {
			c.log.V(1).Info("Skipping network", "path", n.Path, "error", err.Error())
			continue
		}
		results = append(results, raw)
	}
	return results
}

func (c *Client) networkInfo(path dbus.ObjectPath, rssi int16) (wifi.RawNetwork, error) {
	var props map[string]dbus.Variant
	err := c.conn.Object(IWDService, path).Call(propertiesIface+".GetAll", 0, NetworkIface).Store(&props)
	if err != nil {
		return wifi.RawNetwork{}, err
	}
	raw := wifi.RawNetwork{RSSI: centiDBmToRSSI(rssi), Auth: wifi.AuthUnknown}
	if v, ok := props["Name"]; ok {
		raw.SSID, _ = v.Value().(string)
	}
	if v, ok := props["Type"]; ok {
		typ, _ := v.Value().(string)
		raw.Auth = authMode(typ)
	}
	return raw, nil
}

// APInfo describes the connected network
func (c *Client) APInfo() (wifi.APInfo, bool) {
	if !c.initialized || c.connectedNetwork == "" {
		return wifi.APInfo{}, false
	}
	if c.stationState != stateConnected && c.stationState != stateRoaming {
		return wifi.APInfo{}, false
	}
	ordered, err := c.orderedNetworks()
	if err != nil {
		c.log.Error(err, "Failed to fetch active signal")
		return wifi.APInfo{}, false
	}
	rssi := int16(wifi.UnknownRSSI) * 100
	for _, n := range ordered {
		if n.Path == c.connectedNetwork {
			rssi = n.RSSI
			break
		}
	}
	raw, err := c.networkInfo(c.connectedNetwork, rssi)
	if err != nil {
		c.log.Error(err, "Failed to fetch connected network")
		return wifi.APInfo{}, false
	}
	return wifi.APInfo{RawNetwork: raw, Status: c.Status()}, true
}

// Connect starts connecting to ssid. The outcome is reported as an event.
func (c *Client) Connect(ssid, password string) bool {
	if !c.ready() {
		c.log.Info("Refusing connect, no powered station", "ssid", ssid)
		return false
	}

	path, err := c.findNetwork(ssid)
	if err != nil {
		c.log.Error(err, "Failed to look up network", "ssid", ssid)
		return false
	}

	if password != "" {
		c.agent.SetPending(ssid, password)
	}
	c.attempt = true
	c.disconnectRequested = false

	var call *dbus.Call
	if path != "" {
		c.log.Info("Connecting", "ssid", ssid, "path", path)
		call = c.conn.Object(IWDService, path).Go(NetworkIface+".Connect", 0, make(chan *dbus.Call, 1))
	} else {
		c.log.Info("Connecting to hidden network", "ssid", ssid)
		call = c.conn.Object(IWDService, c.stationPath).Go(StationIface+".ConnectHiddenNetwork", 0, make(chan *dbus.Call, 1), ssid)
	}
	go func() {
		<-call.Done
		if call.Err == nil {
			return
		}
		c.post(func() { c.connectFailed(ssid, call.Err) })
	}()
	return true
}

// connectFailed handles an error reply to a connect call. The station state
// usually reports the failure first; otherwise it is reported here.
func (c *Client) connectFailed(ssid string, err error) {
	c.agent.ClearPending(ssid)
	c.log.Info("Connect call failed", "ssid", ssid, "error", err.Error())
	if !c.attempt {
		return
	}
	c.attempt = false
	c.emit(wifi.EventConnectionFailed)
}

func (c *Client) findNetwork(ssid string) (dbus.ObjectPath, error) {
	ordered, err := c.orderedNetworks()
	if err != nil {
		return "", err
	}
	for _, n := range ordered {
		name, err := c.conn.Object(IWDService, n.Path).GetProperty(NetworkIface + ".Name")
		if err != nil {
			continue
		}
		if s, _ := name.Value().(string); s == ssid {
			return n.Path, nil
		}
	}
	return "", nil
}

// Disconnect asks iwd to drop the association
func (c *Client) Disconnect() {
	if !c.initialized {
		return
	}
	c.attempt = false
	c.disconnectRequested = c.stationState != stateDisconnected
	call := c.conn.Object(IWDService, c.stationPath).Go(StationIface+".Disconnect", 0, make(chan *dbus.Call, 1))
	go func() {
		<-call.Done
		if call.Err != nil && !strings.Contains(call.Err.Error(), "NotConnected") {
			c.log.Error(call.Err, "Disconnect failed")
		}
	}()
}

// Status reports the link status of the station
func (c *Client) Status() wifi.ConnectionStatus {
	switch {
	case !c.initialized:
		return wifi.StatusNoNetworkInRange
	case c.stationState == stateConnected || c.stationState == stateRoaming:
		if c.hasIP {
			return wifi.StatusConnected
		}
		return wifi.StatusIdle
	default:
		return wifi.StatusDisconnected
	}
}

// authMode maps an iwd network type
func authMode(typ string) wifi.AuthMode {
	switch typ {
	case "open":
		return wifi.AuthOpen
	case "wep":
		return wifi.AuthWEP
	case "psk":
		return wifi.AuthWPA2PSK
	case "sae":
		return wifi.AuthWPA3PSK
	case "8021x":
		return wifi.AuthWPA2Enterprise
	default:
		return wifi.AuthUnknown
	}
}

// centiDBmToRSSI converts iwd's 1/100 dBm to whole dBm, clamped to int8
func centiDBmToRSSI(v int16) int8 {
	dbm := int(v) / 100
	if dbm < -128 {
		return -128
	}
	if dbm > 127 {
		return 127
	}
	return int8(dbm)
}
