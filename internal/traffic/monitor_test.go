package traffic

import (
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"

	"stationd/internal/state"
)

type fakeCounters struct {
	rx, tx uint64
	err    error
	reads  []string
}

func (c *fakeCounters) Bytes(iface string) (uint64, uint64, error) {
	c.reads = append(c.reads, iface)
	return c.rx, c.tx, c.err
}

func TestSampleDeltas(t *testing.T) {
	mgr := state.NewManager()
	counters := &fakeCounters{rx: 10_000, tx: 5_000}
	m := NewMonitor(testr.New(t), mgr, counters)

	m.sample()
	assert.Empty(t, counters.reads, "no station interface yet")

	mgr.Update(func(st *state.State) { st.InterfaceName = "wlan0" })
	m.sample()
	assert.Zero(t, mgr.Get().TrafficIn)

	counters.rx += 2_000
	counters.tx += 300
	m.sample()
	st := mgr.Get()
	assert.Equal(t, uint64(2_000), st.TrafficIn)
	assert.Equal(t, uint64(300), st.TrafficOut)

	m.sample()
	st = mgr.Get()
	assert.Zero(t, st.TrafficIn)
	assert.Zero(t, st.TrafficOut)
	assert.Equal(t, []string{"wlan0", "wlan0", "wlan0"}, counters.reads)
}

func TestIdleEmittedOnce(t *testing.T) {
	mgr := state.NewManager()
	mgr.Update(func(st *state.State) { st.InterfaceName = "wlan0" })
	changes := 0
	mgr.SetOnChange(func(*state.State) { changes++ })
	m := NewMonitor(testr.New(t), mgr, &fakeCounters{rx: 1, tx: 1})

	m.sample()
	m.sample()
	m.sample()

	assert.Equal(t, 1, changes)
}

func TestCounterReset(t *testing.T) {
	mgr := state.NewManager()
	mgr.Update(func(st *state.State) { st.InterfaceName = "wlan0" })
	counters := &fakeCounters{rx: 50_000, tx: 50_000}
	m := NewMonitor(testr.New(t), mgr, counters)

	m.sample()
	counters.rx, counters.tx = 400, 200
	m.sample()

	assert.Zero(t, mgr.Get().TrafficIn)
	assert.Zero(t, mgr.Get().TrafficOut)
}

func TestReadError(t *testing.T) {
	mgr := state.NewManager()
	mgr.Update(func(st *state.State) { st.InterfaceName = "wlan0" })
	changes := 0
	mgr.SetOnChange(func(*state.State) { changes++ })
	m := NewMonitor(testr.New(t), mgr, &fakeCounters{err: errors.New("gone")})

	m.sample()

	assert.Zero(t, changes)
}
