package wifi

import "time"

// eventSink receives radio events routed through radioListener.
type eventSink interface {
	onScanCompleted()
	onConnectionStateChanged(EventType)
}

// radioListener is the adapter the Controller registers with the Radio.
type radioListener struct {
	sink eventSink
}

func (l *radioListener) OnEvent(ev EventType) {
	if ev == EventScanCompleted {
		l.sink.onScanCompleted()
		return
	}
	l.sink.onConnectionStateChanged(ev)
}

// timer is a one-shot task slot on a Scheduler.
type timer struct {
	sched  Scheduler
	task   Task
	handle TaskHandle
}

// scheduleAfter replaces any pending run of the task.
func (t *timer) scheduleAfter(d time.Duration) {
	t.cancel()
	t.handle = t.sched.ScheduleAfter(d, t.task)
}

func (t *timer) cancel() {
	if t.handle != 0 {
		t.sched.Cancel(t.handle)
		t.handle = 0
	}
}

func (t *timer) isScheduled() bool {
	return t.handle != 0 && t.sched.IsScheduled(t.handle)
}

type scanTask struct{ c *Controller }

func (t scanTask) Run() { t.c.StartScan() }

type refreshTask struct{ c *Controller }

func (t refreshTask) Run() {
	t.c.refreshCurrentNetwork()
	if t.c.enabled {
		t.c.refresh.scheduleAfter(t.c.config.RefreshInterval)
	}
}

func (c *Controller) onConnectionStateChanged(ev EventType) {
	if ev == EventUnknown {
		return
	}
	if ev.terminal() {
		c.connecting = false
	}
	c.log.V(1).Info("Connection state changed", "event", ev, "ssid", c.current.SSID)
	c.updateCurrentNetwork(c.current, ev.status(), true)
	c.listeners.dispatch(ConnectionStateChanged{Event: ev})
}

func (c *Controller) onScanCompleted() {
	c.currentIndex = -1
	ranked := Rank(c.radio.ScanResults(c.config.MaxScanResults))
	if len(ranked) == 0 {
		// No reschedule: the next scan starts from resume or a caller.
		c.networks = nil
		c.log.V(1).Info("Scan returned no networks")
		return
	}
	c.networks = ranked

	found := false
	for i, n := range c.networks {
		if n.SSID == c.current.SSID {
			found = true
			c.currentIndex = i
			if c.status == StatusNoNetworkInRange {
				c.status = StatusDisconnected
			}
			break
		}
	}
	if !found && c.status == StatusDisconnected {
		c.status = StatusNoNetworkInRange
	}
	c.log.V(1).Info("Scan completed", "networks", len(c.networks), "currentIndex", c.currentIndex)

	c.listeners.dispatch(ScanCompleted{})
	if c.enabled {
		c.scan.scheduleAfter(c.config.ScanInterval)
	}
}

// refreshCurrentNetwork adopts the associated access point if there is one,
// and otherwise tracks the default network against the last scan. An
// unchanged default network keeps its status across refreshes.
func (c *Controller) refreshCurrentNetwork() {
	if ap, ok := c.radio.APInfo(); ok {
		c.updateCurrentNetwork(measured(ap.SSID, ap.Auth == AuthOpen, ap.RSSI), ap.Status, false)
		return
	}

	ssid := c.defaultSSID()
	var inRange Network
	found := false
	if ssid != "" {
		inRange, found = c.LookupNetwork(ssid)
	}

	if !found {
		status := StatusNoNetworkInRange
		if ssid == c.current.SSID {
			status = c.status
		}
		c.updateCurrentNetwork(unmeasured(ssid, true), status, false)
		return
	}
	status := StatusDisconnected
	if ssid == c.current.SSID {
		status = c.status
	}
	c.updateCurrentNetwork(inRange, status, false)
}

// updateCurrentNetwork stores n and status and notifies listeners. Without
// force, an update that changes nothing is dropped.
func (c *Controller) updateCurrentNetwork(n Network, status ConnectionStatus, force bool) {
	if !force && n == c.current && status == c.status {
		return
	}
	c.current = n
	c.status = status
	c.currentIndex = c.indexOf(n.SSID)
	c.listeners.dispatch(CurrentNetworkChanged{})
}
