package netlink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/jsimonetti/rtnetlink"
	"github.com/mdlayher/netlink"

	"stationd/internal/state"
)

// Netlink message types (from syscall)
const (
	RTM_NEWLINK = syscall.RTM_NEWLINK // 16
	RTM_DELLINK = syscall.RTM_DELLINK // 17
	RTM_NEWADDR = syscall.RTM_NEWADDR // 20
	RTM_DELADDR = syscall.RTM_DELADDR // 21
)

// AddressListener is told when an interface gains its first IPv4 address or
// loses its last one. Calls are made on the goroutine behind post.
type AddressListener interface {
	AddressAcquired(ifname string)
	AddressLost(ifname string)
}

// linkTable answers the lookups the watcher needs after an event
type linkTable interface {
	linkName(index uint32) (string, error)
	ipv4Addrs(index uint32) ([]net.IP, error)
	gateway(index uint32) (net.IP, error)
}

// Watcher watches netlink events
type Watcher struct {
	conn     *netlink.Conn   // Raw netlink connection for message type access (events)
	rtConn   *rtnetlink.Conn // rtnetlink connection for List operations (fetching)
	table    linkTable
	log      logr.Logger
	stateMgr *state.Manager
	listener AddressListener
	post     func(func())

	closeOnce     sync.Once
	stopCh        chan struct{}
	lastLinkState map[uint32]string // Track last state per interface to avoid log spam
	hasIPv4       map[string]bool
}

// NewWatcher creates a new netlink watcher. Address changes are delivered to
// listener through post.
func NewWatcher(log logr.Logger, stateMgr *state.Manager, listener AddressListener, post func(func())) (*Watcher, error) {
	// Raw netlink.Conn for event watching (to access Header.Type for RTM_DELLINK)
	conn, err := netlink.Dial(syscall.NETLINK_ROUTE, &netlink.Config{
		Groups: 0x1 | 0x10, // RTMGRP_LINK | RTMGRP_IPV4_IFADDR
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial netlink: %w", err)
	}

	rtConn, err := rtnetlink.Dial(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to dial rtnetlink: %w", err)
	}

	w := newWatcher(log, stateMgr, listener, post, rtTable{rtConn})
	w.conn = conn
	w.rtConn = rtConn
	return w, nil
}

func newWatcher(log logr.Logger, stateMgr *state.Manager, listener AddressListener, post func(func()), table linkTable) *Watcher {
	return &Watcher{
		table:         table,
		log:           log.WithName("netlink"),
		stateMgr:      stateMgr,
		listener:      listener,
		post:          post,
		stopCh:        make(chan struct{}),
		lastLinkState: make(map[uint32]string),
		hasIPv4:       make(map[string]bool),
	}
}

// Close closes the netlink connections
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.stopCh)
		w.conn.Close()
		w.rtConn.Close()
	})
}

// Run reports the addresses present at startup and then watches netlink
// events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.fetchAddresses()

	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.stopCh:
		}
	}()

	for {
		msgs, err := w.conn.Receive()
		if err != nil {
			select {
			case <-w.stopCh:
				return nil
			default:
			}
			w.log.Error(err, "Netlink receive error")
			continue
		}
		for _, msg := range msgs {
			w.handleRawMessage(msg)
		}
	}
}

// handleRawMessage handles a raw netlink message with type detection
func (w *Watcher) handleRawMessage(msg netlink.Message) {
	switch msg.Header.Type {
	case RTM_NEWLINK, RTM_DELLINK:
		var lm rtnetlink.LinkMessage
		if err := lm.UnmarshalBinary(msg.Data); err != nil {
			w.log.Error(err, "Failed to parse link message")
			return
		}
		w.handleLink(lm, msg.Header.Type == RTM_DELLINK)
	case RTM_NEWADDR, RTM_DELADDR:
		var am rtnetlink.AddressMessage
		if err := am.UnmarshalBinary(msg.Data); err != nil {
			w.log.Error(err, "Failed to parse address message")
			return
		}
		w.handleAddress(am, msg.Header.Type == RTM_DELADDR)
	}
}

// handleLink logs station link changes and drops addressing facts for a
// removed interface
func (w *Watcher) handleLink(msg rtnetlink.LinkMessage, removed bool) {
	if msg.Attributes == nil {
		return
	}
	name := msg.Attributes.Name
	if name == "" || name == "lo" {
		return
	}

	if removed {
		w.log.Info("Interface removed", "interface", name, "index", msg.Index)
		delete(w.lastLinkState, msg.Index)
		w.addressGone(name)
		return
	}

	isUp := msg.Attributes.OperationalState == rtnetlink.OperStateUp
	hasCarrier := msg.Attributes.Carrier != nil && *msg.Attributes.Carrier == 1

	// Log deduplication: only log when state actually changes
	stateKey := fmt.Sprintf("%v:%v", isUp, hasCarrier)
	if w.lastLinkState[msg.Index] != stateKey {
		w.log.V(1).Info("Link state", "interface", name, "index", msg.Index, "up", isUp, "carrier", hasCarrier)
		w.lastLinkState[msg.Index] = stateKey
	}

	if w.isStation(name) && len(msg.Attributes.Address) > 0 {
		mac := net.HardwareAddr(msg.Attributes.Address).String()
		w.stateMgr.Update(func(st *state.State) {
			st.MacAddress = mac
		})
	}
}

// handleAddress tracks IPv4 addresses per interface
func (w *Watcher) handleAddress(msg rtnetlink.AddressMessage, removed bool) {
	if msg.Family != syscall.AF_INET {
		return
	}
	name, err := w.table.linkName(msg.Index)
	if err != nil {
		w.log.V(1).Info("Unknown link for address", "index", msg.Index, "error", err.Error())
		return
	}
	if name == "" || name == "lo" {
		return
	}

	if !removed {
		var ip net.IP
		if msg.Attributes != nil {
			ip = msg.Attributes.Address
		}
		w.log.Info("Address added", "interface", name, "address", ip.String())
		w.addressUp(name, msg.Index, ip)
		return
	}

	// Another address may remain on the link
	addrs, err := w.table.ipv4Addrs(msg.Index)
	if err == nil && len(addrs) > 0 {
		w.addressUp(name, msg.Index, addrs[0])
		return
	}
	w.log.Info("Address removed", "interface", name)
	w.addressGone(name)
}

func (w *Watcher) addressUp(name string, index uint32, ip net.IP) {
	if w.isStation(name) {
		gw, _ := w.table.gateway(index)
		w.stateMgr.Update(func(st *state.State) {
			if ip != nil {
				st.IpAddress = ip.String()
			}
			if gw != nil {
				st.Gateway = gw.String()
			}
		})
	}
	if w.hasIPv4[name] {
		return
	}
	w.hasIPv4[name] = true
	w.post(func() { w.listener.AddressAcquired(name) })
}

func (w *Watcher) addressGone(name string) {
	if w.isStation(name) {
		w.stateMgr.Update(func(st *state.State) {
			st.IpAddress = ""
			st.Gateway = ""
		})
	}
	if !w.hasIPv4[name] {
		return
	}
	delete(w.hasIPv4, name)
	w.post(func() { w.listener.AddressLost(name) })
}

func (w *Watcher) isStation(name string) bool {
	return name != "" && w.stateMgr.Get().InterfaceName == name
}

// fetchAddresses reports the IPv4 addresses present at startup
func (w *Watcher) fetchAddresses() {
	addrs, err := w.rtConn.Address.List()
	if err != nil {
		w.log.Error(err, "Failed to list addresses")
		return
	}
	for _, addr := range addrs {
		if addr.Family != syscall.AF_INET {
			continue
		}
		w.handleAddress(addr, false)
	}
}

// rtTable is the rtnetlink backed linkTable
type rtTable struct {
	conn *rtnetlink.Conn
}

func (t rtTable) linkName(index uint32) (string, error) {
	link, err := t.conn.Link.Get(index)
	if err != nil {
		return "", err
	}
	if link.Attributes == nil {
		return "", nil
	}
	return link.Attributes.Name, nil
}

func (t rtTable) ipv4Addrs(index uint32) ([]net.IP, error) {
	addrs, err := t.conn.Address.List()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, addr := range addrs {
		if addr.Index != index || addr.Family != syscall.AF_INET || addr.Attributes == nil {
			continue
		}
		ips = append(ips, addr.Attributes.Address)
	}
	return ips, nil
}

// gateway returns the default route gateway through index, if any
func (t rtTable) gateway(index uint32) (net.IP, error) {
	routes, err := t.conn.Route.List()
	if err != nil {
		return nil, err
	}
	for _, route := range routes {
		// Default route (0.0.0.0/0)
		if route.Attributes.Dst == nil && route.Attributes.Gateway != nil && route.Attributes.OutIface == index {
			return route.Attributes.Gateway, nil
		}
	}
	return nil, nil
}
