package iwd

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"
)

const (
	AgentPath     = "/org/stationd/agent"
	AgentIface    = "net.connman.iwd.Agent"
	AgentMgrIface = "net.connman.iwd.AgentManager"

	DefaultCredentialTTL = 30 * time.Second
)

// PendingCredential holds a passphrase waiting for an iwd callback
type PendingCredential struct {
	Password string
	Created  time.Time
}

// Agent implements the net.connman.iwd.Agent D-Bus interface.
// iwd calls RequestPassphrase when it needs a password for PSK/SAE networks.
// Passphrases are keyed by SSID because a hidden network has no object path
// until iwd creates one during the connect.
type Agent struct {
	conn *dbus.Conn
	log  logr.Logger
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	pending map[string]PendingCredential
}

// NewAgent creates an agent. Credentials older than ttl are refused.
func NewAgent(log logr.Logger, conn *dbus.Conn, ttl time.Duration) *Agent {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &Agent{
		conn:    conn,
		log:     log.WithName("agent"),
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]PendingCredential),
	}
}

// SetPending stores a passphrase for ssid until iwd asks for it
func (a *Agent) SetPending(ssid, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.V(1).Info("Setting pending credential", "ssid", ssid, "length", len(password))
	a.pending[ssid] = PendingCredential{Password: password, Created: a.now()}
}

// ClearPending removes a pending credential
func (a *Agent) ClearPending(ssid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, ssid)
}

// take returns and removes the credential for ssid if it has not expired
func (a *Agent) take(ssid string) (string, *dbus.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred, ok := a.pending[ssid]
	if !ok {
		a.log.Info("No pending credential", "ssid", ssid)
		return "", canceled("No credential available")
	}
	delete(a.pending, ssid)
	if age := a.now().Sub(cred.Created); age > a.ttl {
		a.log.Info("Credential expired", "ssid", ssid, "age", age)
		return "", canceled("Credential expired")
	}
	return cred.Password, nil
}

// RequestPassphrase is called by iwd when it needs a password
func (a *Agent) RequestPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	name, err := a.conn.Object(IWDService, network).GetProperty(NetworkIface + ".Name")
	if err != nil {
		a.log.Error(err, "Failed to resolve network name", "path", network)
		return "", canceled("Unknown network")
	}
	ssid, _ := name.Value().(string)
	a.log.V(1).Info("RequestPassphrase", "path", network, "ssid", ssid)
	return a.take(ssid)
}

// RequestPrivateKeyPassphrase is called for 802.1x networks. Not supported.
func (a *Agent) RequestPrivateKeyPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	a.log.Info("RequestPrivateKeyPassphrase not supported", "path", network)
	return "", canceled("Private key passphrase not supported")
}

// RequestUserNameAndPassword is called for 802.1x EAP networks. Not supported.
func (a *Agent) RequestUserNameAndPassword(network dbus.ObjectPath) (string, string, *dbus.Error) {
	a.log.Info("RequestUserNameAndPassword not supported", "path", network)
	return "", "", canceled("User/password authentication not supported")
}

// RequestUserPassword is called for some EAP networks. Not supported.
func (a *Agent) RequestUserPassword(network dbus.ObjectPath, user string) (string, *dbus.Error) {
	a.log.Info("RequestUserPassword not supported", "path", network)
	return "", canceled("User password authentication not supported")
}

// Cancel is called by iwd when a request is cancelled
// Reasons: "out-of-range", "user-canceled", "timed-out", "shutdown"
func (a *Agent) Cancel(reason string) *dbus.Error {
	a.log.Info("Request cancelled", "reason", reason)
	a.clear()
	return nil
}

// Release is called by iwd when the agent is unregistered
func (a *Agent) Release() *dbus.Error {
	a.log.Info("Released by iwd")
	a.clear()
	return nil
}

func (a *Agent) clear() {
	a.mu.Lock()
	a.pending = make(map[string]PendingCredential)
	a.mu.Unlock()
}

// RegisterWithIWD exports the agent and registers it with the AgentManager
func (a *Agent) RegisterWithIWD() error {
	if err := a.conn.Export(a, dbus.ObjectPath(AgentPath), AgentIface); err != nil {
		return err
	}
	obj := a.conn.Object(IWDService, "/net/connman/iwd")
	if err := obj.Call(AgentMgrIface+".RegisterAgent", 0, dbus.ObjectPath(AgentPath)).Err; err != nil {
		return err
	}
	a.log.Info("Registered with iwd AgentManager", "path", AgentPath)
	return nil
}

// UnregisterFromIWD unregisters the agent from iwd
func (a *Agent) UnregisterFromIWD() error {
	obj := a.conn.Object(IWDService, "/net/connman/iwd")
	return obj.Call(AgentMgrIface+".UnregisterAgent", 0, dbus.ObjectPath(AgentPath)).Err
}

func canceled(msg string) *dbus.Error {
	return dbus.NewError(AgentIface+".Error.Canceled", []interface{}{msg})
}
