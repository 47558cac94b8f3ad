package wifi

import (
	"errors"
	"sort"
	"time"
)

type fakeRadio struct {
	listeners []EventListener

	scanOK        bool
	scanCompleted bool
	results       []RawNetwork
	ap            *APInfo
	connectOK     bool

	scans       int
	connects    []string
	disconnects int
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{scanOK: true, connectOK: true}
}

func (r *fakeRadio) AddEventListener(l EventListener) { r.listeners = append(r.listeners, l) }

func (r *fakeRadio) RemoveEventListener(l EventListener) {
	for i, x := range r.listeners {
		if x == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *fakeRadio) StartScan() bool {
	if r.scanOK {
		r.scans++
	}
	return r.scanOK
}

func (r *fakeRadio) ScanCompleted() bool { return r.scanCompleted }

func (r *fakeRadio) ScanResults(max int) []RawNetwork {
	if len(r.results) > max {
		return r.results[:max]
	}
	return r.results
}

func (r *fakeRadio) APInfo() (APInfo, bool) {
	if r.ap == nil {
		return APInfo{}, false
	}
	return *r.ap, true
}

func (r *fakeRadio) Connect(ssid, password string) bool {
	if !r.connectOK {
		return false
	}
	r.connects = append(r.connects, ssid)
	return true
}

func (r *fakeRadio) Disconnect() { r.disconnects++ }

func (r *fakeRadio) Status() ConnectionStatus {
	if r.ap == nil {
		return StatusDisconnected
	}
	return r.ap.Status
}

// emit delivers ev to every registered listener.
func (r *fakeRadio) emit(ev EventType) {
	for _, l := range append([]EventListener(nil), r.listeners...) {
		l.OnEvent(ev)
	}
}

// completeScan installs results and reports scan completion.
func (r *fakeRadio) completeScan(results ...RawNetwork) {
	r.results = results
	r.scanCompleted = true
	r.emit(EventScanCompleted)
}

var errBroken = errors.New("store broken")

type fakeStore struct {
	enabled   bool
	ssid      string
	passwords map[string]string
	broken    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{passwords: map[string]string{}}
}

func (s *fakeStore) Enabled() (bool, error) {
	if s.broken {
		return false, errBroken
	}
	return s.enabled, nil
}

func (s *fakeStore) SetEnabled(enabled bool) error {
	if s.broken {
		return errBroken
	}
	s.enabled = enabled
	return nil
}

func (s *fakeStore) DefaultSSID() (string, error) {
	if s.broken {
		return "", errBroken
	}
	return s.ssid, nil
}

func (s *fakeStore) SetDefaultSSID(ssid string) error {
	if s.broken {
		return errBroken
	}
	s.ssid = ssid
	return nil
}

func (s *fakeStore) ClearDefaultSSID() error {
	if s.broken {
		return errBroken
	}
	s.ssid = ""
	return nil
}

func (s *fakeStore) Password(ssid string) (string, bool, error) {
	if s.broken {
		return "", false, errBroken
	}
	pw, ok := s.passwords[ssid]
	return pw, ok, nil
}

func (s *fakeStore) SetPassword(ssid, password string) error {
	if s.broken {
		return errBroken
	}
	s.passwords[ssid] = password
	return nil
}

func (s *fakeStore) ClearPassword(ssid string) error {
	if s.broken {
		return errBroken
	}
	delete(s.passwords, ssid)
	return nil
}

// manualScheduler runs tasks only when the test advances its clock.
type manualScheduler struct {
	now     time.Duration
	next    TaskHandle
	pending map[TaskHandle]pendingTask
}

type pendingTask struct {
	at   time.Duration
	task Task
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: map[TaskHandle]pendingTask{}}
}

func (s *manualScheduler) ScheduleAfter(d time.Duration, task Task) TaskHandle {
	s.next++
	s.pending[s.next] = pendingTask{at: s.now + d, task: task}
	return s.next
}

func (s *manualScheduler) Cancel(h TaskHandle) { delete(s.pending, h) }

func (s *manualScheduler) IsScheduled(h TaskHandle) bool {
	_, ok := s.pending[h]
	return ok
}

// advance moves the clock forward by d, running due tasks in deadline order.
func (s *manualScheduler) advance(d time.Duration) {
	end := s.now + d
	for {
		var due []TaskHandle
		for h, p := range s.pending {
			if p.at <= end {
				due = append(due, h)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			a, b := s.pending[due[i]], s.pending[due[j]]
			if a.at != b.at {
				return a.at < b.at
			}
			return due[i] < due[j]
		})
		h := due[0]
		p := s.pending[h]
		delete(s.pending, h)
		s.now = p.at
		p.task.Run()
	}
	s.now = end
}

// deadlineOf returns when task is due, if it is pending.
func (s *manualScheduler) deadlineOf(task Task) (time.Duration, bool) {
	for _, p := range s.pending {
		if p.task == task {
			return p.at, true
		}
	}
	return 0, false
}

// recorder collects notifications.
type recorder struct {
	got []Notification
}

func (r *recorder) Notify(n Notification) { r.got = append(r.got, n) }

func (r *recorder) count(match func(Notification) bool) int {
	n := 0
	for _, x := range r.got {
		if match(x) {
			n++
		}
	}
	return n
}

func (r *recorder) reset() { r.got = nil }

func isCurrentChanged(n Notification) bool {
	_, ok := n.(CurrentNetworkChanged)
	return ok
}

func isScanCompleted(n Notification) bool {
	_, ok := n.(ScanCompleted)
	return ok
}

func isScanStarted(n Notification) bool {
	_, ok := n.(ScanStarted)
	return ok
}
