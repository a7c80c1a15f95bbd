package testsupport

import (
	"net/url"
	"strconv"
	"testing"

	"planet/internal/ipfs"
)

// PortOf returns the TCP port of an httptest server URL.
func PortOf(t testing.TB, rawURL string) uint16 {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url %q: %v", rawURL, err)
	}
	port, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		t.Fatalf("parse port of %q: %v", rawURL, err)
	}
	return uint16(port)
}

// EndpointsFor points an Endpoints tracker at test servers. An empty URL
// leaves that port at zero.
func EndpointsFor(t testing.TB, apiURL, gatewayURL string) *ipfs.Endpoints {
	t.Helper()
	var apiPort, gatewayPort uint16
	if apiURL != "" {
		apiPort = PortOf(t, apiURL)
	}
	if gatewayURL != "" {
		gatewayPort = PortOf(t, gatewayURL)
	}
	return ipfs.NewEndpoints("127.0.0.1", apiPort, gatewayPort)
}
