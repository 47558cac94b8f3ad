package dbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationd/internal/state"
	"stationd/internal/store"
	"stationd/internal/wifi"
)

type inline struct{ err error }

func (d inline) Call(ctx context.Context, fn func()) error {
	if d.err != nil {
		return d.err
	}
	fn()
	return nil
}

type stubRadio struct {
	listeners []wifi.EventListener
	results   []wifi.RawNetwork
	connects  []string
}

func (r *stubRadio) AddEventListener(l wifi.EventListener)  { r.listeners = append(r.listeners, l) }
func (r *stubRadio) RemoveEventListener(wifi.EventListener) {}
func (r *stubRadio) StartScan() bool                        { return true }
func (r *stubRadio) ScanCompleted() bool                    { return false }
func (r *stubRadio) ScanResults(int) []wifi.RawNetwork      { return r.results }
func (r *stubRadio) APInfo() (wifi.APInfo, bool)            { return wifi.APInfo{}, false }
func (r *stubRadio) Disconnect()                            {}
func (r *stubRadio) Status() wifi.ConnectionStatus          { return wifi.StatusDisconnected }

func (r *stubRadio) Connect(ssid, _ string) bool {
	r.connects = append(r.connects, ssid)
	return true
}

func (r *stubRadio) emit(ev wifi.EventType) {
	for _, l := range r.listeners {
		l.OnEvent(ev)
	}
}

type nopScheduler struct{ next wifi.TaskHandle }

func (s *nopScheduler) ScheduleAfter(time.Duration, wifi.Task) wifi.TaskHandle {
	s.next++
	return s.next
}
func (s *nopScheduler) Cancel(wifi.TaskHandle)           {}
func (s *nopScheduler) IsScheduled(wifi.TaskHandle) bool { return false }

type emitted struct {
	name   string
	values []interface{}
}

type harness struct {
	svc     *Service
	c       *wifi.Controller
	radio   *stubRadio
	store   *store.Memory
	mgr     *state.Manager
	signals []emitted
}

func newHarness(t *testing.T, dispatcher Dispatcher) *harness {
	t.Helper()
	h := &harness{radio: &stubRadio{}, store: store.NewMemory(), mgr: state.NewManager()}
	h.c = wifi.NewController(testr.New(t), h.store, h.radio, &nopScheduler{}, wifi.Config{})
	h.svc = newService(testr.New(t), h.mgr, dispatcher, h.c, func(path dbus.ObjectPath, name string, values ...interface{}) error {
		assert.Equal(t, dbus.ObjectPath(ObjectPath), path)
		h.signals = append(h.signals, emitted{name: name, values: values})
		return nil
	})
	h.mgr.SetOnChange(h.svc.onStateChange)
	mirror := state.NewMirror(h.mgr, h.c)
	h.c.AddListener(mirror)
	h.c.AddListener(h.svc)
	h.c.Begin()
	mirror.Sync()
	return h
}

func (h *harness) names() []string {
	var names []string
	for _, s := range h.signals {
		names = append(names, s.name)
	}
	return names
}

func (h *harness) find(name string) (emitted, bool) {
	for _, s := range h.signals {
		if s.name == name {
			return s, true
		}
	}
	return emitted{}, false
}

func TestToggleEnabled(t *testing.T) {
	h := newHarness(t, inline{})

	enabled, derr := h.svc.ToggleEnabled()
	require.Nil(t, derr)
	assert.True(t, enabled)

	sig, ok := h.find(Interface + ".EnableChanged")
	require.True(t, ok, "signals: %v", h.names())
	assert.Equal(t, []interface{}{true}, sig.values)
	assert.Contains(t, h.names(), Interface+".ScanStarted")

	stored, err := h.store.Enabled()
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestConnectSignals(t *testing.T) {
	h := newHarness(t, inline{})
	_, derr := h.svc.ToggleEnabled()
	require.Nil(t, derr)
	h.signals = nil

	ok, derr := h.svc.Connect("Home", "secret")
	require.Nil(t, derr)
	assert.True(t, ok)
	assert.Equal(t, []string{"Home"}, h.radio.connects)

	sig, found := h.find(Interface + ".CurrentNetworkChanged")
	require.True(t, found, "signals: %v", h.names())
	assert.Equal(t, []interface{}{"Home", "disconnected"}, sig.values)

	h.radio.emit(wifi.EventConnectionFailed)
	sig, found = h.find(Interface + ".ConnectionStateChanged")
	require.True(t, found)
	assert.Equal(t, []interface{}{"connection-failed"}, sig.values)

	pw, stored, err := h.store.Password("Home")
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "secret", pw)
}

func TestConnectRejectsBadSSID(t *testing.T) {
	h := newHarness(t, inline{})

	_, derr := h.svc.Connect("", "pw")
	require.NotNil(t, derr)
	assert.Equal(t, Interface+".Error.InvalidArgs", derr.Name)

	_, derr = h.svc.Connect("0123456789abcdef0123456789abcdefX", "pw")
	require.NotNil(t, derr)
	assert.Empty(t, h.radio.connects)
}

func TestConnectWhileDisabled(t *testing.T) {
	h := newHarness(t, inline{})

	ok, derr := h.svc.Connect("Home", "pw")
	require.Nil(t, derr)
	assert.False(t, ok)
}

func TestStoppedLoop(t *testing.T) {
	h := newHarness(t, inline{err: errors.New("event loop stopped")})

	_, derr := h.svc.Scan()
	require.NotNil(t, derr)
	assert.Equal(t, Interface+".Error.Unavailable", derr.Name)
	assert.NotNil(t, h.svc.Pause())
}

func TestOtherNetwork(t *testing.T) {
	h := newHarness(t, inline{})
	_, derr := h.svc.ToggleEnabled()
	require.Nil(t, derr)
	h.radio.results = []wifi.RawNetwork{
		{SSID: "Cafe", RSSI: -60, Auth: wifi.AuthWPA2PSK},
		{SSID: "Library", RSSI: -70, Auth: wifi.AuthOpen},
	}
	h.radio.emit(wifi.EventScanCompleted)

	ssid, open, rssi, derr := h.svc.OtherNetwork(1)
	require.Nil(t, derr)
	assert.Equal(t, "Library", ssid)
	assert.True(t, open)
	assert.Equal(t, int16(-70), rssi)

	_, _, _, derr = h.svc.OtherNetwork(2)
	require.NotNil(t, derr)
	assert.Equal(t, Interface+".Error.OutOfRange", derr.Name)
}

func TestForget(t *testing.T) {
	h := newHarness(t, inline{})
	require.NoError(t, h.store.SetPassword("Home", "pw"))
	require.NoError(t, h.store.SetDefaultSSID("Home"))

	require.Nil(t, h.svc.Forget("Home"))

	_, ok, err := h.store.Password("Home")
	require.NoError(t, err)
	assert.False(t, ok)
	ssid, err := h.store.DefaultSSID()
	require.NoError(t, err)
	assert.Empty(t, ssid)
}

func TestPropertiesChangedOnlyDiffs(t *testing.T) {
	h := newHarness(t, inline{})
	h.signals = nil

	h.mgr.Update(func(st *state.State) { st.IpAddress = "10.0.0.2" })
	h.mgr.Update(func(st *state.State) { st.IpAddress = "10.0.0.2" })

	require.Len(t, h.signals, 1)
	sig := h.signals[0]
	assert.Equal(t, "org.freedesktop.DBus.Properties.PropertiesChanged", sig.name)
	require.Len(t, sig.values, 3)
	assert.Equal(t, Interface, sig.values[0])
	changed := sig.values[1].(map[string]dbus.Variant)
	assert.Len(t, changed, 1)
	assert.Equal(t, "10.0.0.2", changed["IpAddress"].Value())
}

func TestPropertiesChangedIgnoresStaleCopy(t *testing.T) {
	h := newHarness(t, inline{})
	stale := h.mgr.Get()
	h.mgr.Update(func(st *state.State) { st.TrafficIn = 5000 })
	h.signals = nil

	stale.TrafficIn = 200
	h.svc.onStateChange(&stale)

	assert.Empty(t, h.signals)
	v, derr := h.svc.Get(Interface, "TrafficIn")
	require.Nil(t, derr)
	assert.Equal(t, uint64(5000), v.Value())
}

func TestGetProperties(t *testing.T) {
	h := newHarness(t, inline{})
	h.mgr.Update(func(st *state.State) {
		st.Networks = []state.Network{{SSID: "Cafe", Open: false, SignalDBm: -60}}
	})

	v, derr := h.svc.Get(Interface, "Networks")
	require.Nil(t, derr)
	assert.Equal(t, []NetworkDBus{{SSID: "Cafe", Open: false, RSSI: -60}}, v.Value())

	v, derr = h.svc.Get(Interface, "Status")
	require.Nil(t, derr)
	assert.Equal(t, "no-network-in-range", v.Value())

	_, derr = h.svc.Get(Interface, "Bogus")
	assert.NotNil(t, derr)
	_, derr = h.svc.Get("org.example.Other", "Status")
	assert.NotNil(t, derr)
	assert.NotNil(t, h.svc.Set(Interface, "Enabled", dbus.MakeVariant(true)))

	all, derr := h.svc.GetAll(Interface)
	require.Nil(t, derr)
	assert.Len(t, all, len(properties()))
}

func TestChangedProperties(t *testing.T) {
	prev := map[string]dbus.Variant{
		"A": dbus.MakeVariant("x"),
		"B": dbus.MakeVariant([]NetworkDBus{{SSID: "n"}}),
	}
	next := map[string]dbus.Variant{
		"A": dbus.MakeVariant("x"),
		"B": dbus.MakeVariant([]NetworkDBus{{SSID: "n"}}),
		"C": dbus.MakeVariant(uint64(1)),
	}

	assert.Equal(t, []string{"C"}, keys(changedProperties(prev, next)))
	assert.Len(t, changedProperties(nil, next), 3)
}

func keys(m map[string]dbus.Variant) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
