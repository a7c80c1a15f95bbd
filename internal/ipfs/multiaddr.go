package ipfs

import (
	"fmt"
	"strconv"
	"strings"
)

// LoopbackMultiaddr formats the TCP multiaddr the daemon binds its API or
// gateway listener to.
func LoopbackMultiaddr(port uint16) string {
	return fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", port)
}

// SwarmMultiaddrs returns the IPv4 and IPv6 swarm listen addresses for port.
func SwarmMultiaddrs(port uint16) []string {
	return []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
		fmt.Sprintf("/ip6/::/tcp/%d", port),
		fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", port),
	}
}

// PortFromMultiaddr extracts the port from the last path element of a TCP
// multiaddr such as /ip4/127.0.0.1/tcp/5981.
func PortFromMultiaddr(addr string) (uint16, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(addr), "/")
	if trimmed == "" {
		return 0, fmt.Errorf("empty multiaddr")
	}
	idx := strings.LastIndex(trimmed, "/")
	last := trimmed[idx+1:]
	port, err := strconv.ParseUint(last, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("multiaddr %q has no port component", addr)
	}
	return uint16(port), nil
}
