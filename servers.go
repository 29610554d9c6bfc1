package asyncmc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used for server addresses given without a port.
const DefaultPort = 11211

// ParseAddress normalizes a server address to host:port.
//
// Accepted forms: "host", "host:port", "1.2.3.4", "[::1]:11211", "::1".
func ParseAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("asyncmc: empty server address")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// No port, or a bare IPv6 literal
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		port = strconv.Itoa(DefaultPort)
	}

	if host == "" {
		return "", fmt.Errorf("asyncmc: missing host in server address %q", addr)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return "", fmt.Errorf("asyncmc: invalid port in server address %q", addr)
	}

	return net.JoinHostPort(host, port), nil
}

func parseServers(servers []string) ([]string, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	addrs := make([]string, len(servers))
	for i, s := range servers {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}
