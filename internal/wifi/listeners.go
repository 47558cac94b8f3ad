package wifi

// Notification is one of the closed set of events fanned out to listeners:
// EnableChanged, ScanStarted, ScanCompleted, CurrentNetworkChanged,
// ConnectionStateChanged and StoreFailed.
type Notification interface {
	notification()
}

type EnableChanged struct {
	Enabled bool
}

type ScanStarted struct{}

type ScanCompleted struct{}

type CurrentNetworkChanged struct{}

type ConnectionStateChanged struct {
	Event EventType
}

// StoreFailed reports a persistence error. Op names the store operation.
type StoreFailed struct {
	Op  string
	Err error
}

func (EnableChanged) notification()          {}
func (ScanStarted) notification()            {}
func (ScanCompleted) notification()          {}
func (CurrentNetworkChanged) notification()  {}
func (ConnectionStateChanged) notification() {}
func (StoreFailed) notification()            {}

// Listener observes the Controller.
type Listener interface {
	Notify(Notification)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(Notification)

func (f ListenerFunc) Notify(n Notification) { f(n) }

// Handlers is a Listener with one optional callback per notification kind.
type Handlers struct {
	OnEnableChanged          func(enabled bool)
	OnScanStarted            func()
	OnScanCompleted          func()
	OnCurrentNetworkChanged  func()
	OnConnectionStateChanged func(EventType)
	OnStoreFailed            func(op string, err error)
}

func (h *Handlers) Notify(n Notification) {
	switch n := n.(type) {
	case EnableChanged:
		if h.OnEnableChanged != nil {
			h.OnEnableChanged(n.Enabled)
		}
	case ScanStarted:
		if h.OnScanStarted != nil {
			h.OnScanStarted()
		}
	case ScanCompleted:
		if h.OnScanCompleted != nil {
			h.OnScanCompleted()
		}
	case CurrentNetworkChanged:
		if h.OnCurrentNetworkChanged != nil {
			h.OnCurrentNetworkChanged()
		}
	case ConnectionStateChanged:
		if h.OnConnectionStateChanged != nil {
			h.OnConnectionStateChanged(n.Event)
		}
	case StoreFailed:
		if h.OnStoreFailed != nil {
			h.OnStoreFailed(n.Op, n.Err)
		}
	}
}

// ListenerID is returned by AddListener. It stays valid until passed to
// RemoveListener; a stale ID never matches a newer registration.
type ListenerID struct {
	index uint32
	gen   uint32
}

type listenerSlot struct {
	gen      uint32
	listener Listener
}

// listenerSet is an arena of listener slots. Freed slots are reused with a
// bumped generation.
type listenerSet struct {
	slots []listenerSlot
	free  []uint32
	count int
}

func (s *listenerSet) add(l Listener) ListenerID {
	var i uint32
	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, listenerSlot{})
		i = uint32(len(s.slots) - 1)
	}
	s.slots[i].gen++
	s.slots[i].listener = l
	s.count++
	return ListenerID{index: i, gen: s.slots[i].gen}
}

func (s *listenerSet) remove(id ListenerID) bool {
	if !s.live(id) {
		return false
	}
	s.slots[id.index].listener = nil
	s.free = append(s.free, id.index)
	s.count--
	return true
}

func (s *listenerSet) live(id ListenerID) bool {
	if int(id.index) >= len(s.slots) {
		return false
	}
	slot := s.slots[id.index]
	return slot.gen == id.gen && slot.listener != nil
}

// dispatch delivers n to every listener registered when dispatch starts.
// A listener removed by an earlier callback is skipped; listeners added during
// dispatch first hear the next notification.
func (s *listenerSet) dispatch(n Notification) {
	if s.count == 0 {
		return
	}
	ids := make([]ListenerID, 0, s.count)
	for i, slot := range s.slots {
		if slot.listener != nil {
			ids = append(ids, ListenerID{index: uint32(i), gen: slot.gen})
		}
	}
	for _, id := range ids {
		if s.live(id) {
			s.slots[id.index].listener.Notify(n)
		}
	}
}
