package ipfs

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// HTTPDoer describes the HTTP client used by Client and Gateway.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoints tracks the loopback API and gateway ports currently assigned to
// the daemon. It is safe for concurrent use.
type Endpoints struct {
	host    string
	api     atomic.Uint32
	gateway atomic.Uint32
}

// NewEndpoints returns endpoints on host (127.0.0.1 when empty).
func NewEndpoints(host string, apiPort, gatewayPort uint16) *Endpoints {
	if host == "" {
		host = "127.0.0.1"
	}
	e := &Endpoints{host: host}
	e.Set(apiPort, gatewayPort)
	return e
}

// Set replaces both ports.
func (e *Endpoints) Set(apiPort, gatewayPort uint16) {
	e.api.Store(uint32(apiPort))
	e.gateway.Store(uint32(gatewayPort))
}

// APIPort returns the control API port.
func (e *Endpoints) APIPort() uint16 { return uint16(e.api.Load()) }

// GatewayPort returns the HTTP gateway port.
func (e *Endpoints) GatewayPort() uint16 { return uint16(e.gateway.Load()) }

// Host returns the loopback host.
func (e *Endpoints) Host() string { return e.host }

// APIURL returns the base URL of the control API.
func (e *Endpoints) APIURL() string {
	return fmt.Sprintf("http://%s:%d", e.host, e.APIPort())
}

// GatewayURL returns the base URL of the HTTP gateway.
func (e *Endpoints) GatewayURL() string {
	return fmt.Sprintf("http://%s:%d", e.host, e.GatewayPort())
}
