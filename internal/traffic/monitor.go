package traffic

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jsimonetti/rtnetlink"

	"stationd/internal/state"
)

const (
	updateInterval = 1 * time.Second
	minDeltaBytes  = 100 // Only emit if delta > 100 bytes
)

// Counters reads cumulative byte counters of an interface
type Counters interface {
	Bytes(iface string) (rx, tx uint64, err error)
}

// Monitor publishes the station interface throughput as bytes per interval
type Monitor struct {
	log      logr.Logger
	stateMgr *state.Manager
	counters Counters
	interval time.Duration
	running  atomic.Bool

	iface       string
	lastRx      uint64
	lastTx      uint64
	idleEmitted bool // Track if we've emitted 0,0 to avoid repeated emissions
}

// NewMonitor creates a new traffic monitor
func NewMonitor(log logr.Logger, stateMgr *state.Manager, counters Counters) *Monitor {
	return &Monitor{
		log:      log.WithName("traffic"),
		stateMgr: stateMgr,
		counters: counters,
		interval: updateInterval,
	}
}

// Run samples the station interface until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample samples current traffic and calculates delta
func (m *Monitor) sample() {
	iface := m.stateMgr.Get().InterfaceName
	if iface == "" {
		return
	}
	if iface != m.iface {
		m.iface = iface
		m.lastRx, m.lastTx = 0, 0
	}

	rx, tx, err := m.counters.Bytes(iface)
	if err != nil {
		m.log.V(1).Info("Failed to read counters", "interface", iface, "error", err.Error())
		return
	}

	var deltaRx, deltaTx uint64
	if m.lastRx > 0 || m.lastTx > 0 {
		// Counters restart when the link is recreated
		if rx >= m.lastRx {
			deltaRx = rx - m.lastRx
		}
		if tx >= m.lastTx {
			deltaTx = tx - m.lastTx
		}
	}
	m.lastRx = rx
	m.lastTx = tx

	// Only update if significant traffic (delta > threshold)
	if deltaRx > minDeltaBytes || deltaTx > minDeltaBytes {
		m.stateMgr.Update(func(s *state.State) {
			s.TrafficIn = deltaRx
			s.TrafficOut = deltaTx
		})
		m.idleEmitted = false
	} else if !m.idleEmitted {
		// Reset to 0 ONCE when idle, not every second
		m.stateMgr.Update(func(s *state.State) {
			s.TrafficIn = 0
			s.TrafficOut = 0
		})
		m.idleEmitted = true
	}
}

// LinkCounters reads interface statistics over rtnetlink
type LinkCounters struct {
	conn *rtnetlink.Conn
}

// DialLinkCounters opens an rtnetlink connection for counter reads
func DialLinkCounters() (*LinkCounters, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rtnetlink: %w", err)
	}
	return &LinkCounters{conn: conn}, nil
}

// Close closes the rtnetlink connection
func (c *LinkCounters) Close() error {
	return c.conn.Close()
}

func (c *LinkCounters) Bytes(iface string) (rx, tx uint64, err error) {
	links, err := c.conn.Link.List()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list links: %w", err)
	}
	for _, link := range links {
		if link.Attributes == nil || link.Attributes.Name != iface {
			continue
		}
		switch {
		case link.Attributes.Stats64 != nil:
			return link.Attributes.Stats64.RXBytes, link.Attributes.Stats64.TXBytes, nil
		case link.Attributes.Stats != nil:
			return uint64(link.Attributes.Stats.RXBytes), uint64(link.Attributes.Stats.TXBytes), nil
		default:
			return 0, 0, fmt.Errorf("no statistics for %s", iface)
		}
	}
	return 0, 0, fmt.Errorf("no such interface %s", iface)
}
