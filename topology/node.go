package topology

import "strconv"

// AlternateAddress is an alternate network identity for a node, reached
// under a named network (e.g. "external") (spec.md §3 "NodeInfo").
type AlternateAddress struct {
	Hostname string
	Ports    map[ServiceType]uint16
	TLSPorts map[ServiceType]uint16
}

// NodeInfo is one cluster member's address book (spec.md §3 "NodeInfo").
type NodeInfo struct {
	Hostname           string
	PlainPorts         map[ServiceType]uint16
	TLSPorts           map[ServiceType]uint16
	AlternateAddresses map[string]AlternateAddress
}

// ServiceEnabled reports whether this node exposes the given service on
// the plain or TLS port set.
func (n NodeInfo) ServiceEnabled(s ServiceType) bool {
	_, plainOK := n.PlainPorts[s]
	_, tlsOK := n.TLSPorts[s]
	return plainOK || tlsOK
}

// Address returns the host:port to dial for a service, preferring TLS
// when useTLS is set.
func (n NodeInfo) Address(s ServiceType, useTLS bool) (hostport string, ok bool) {
	ports := n.PlainPorts
	if useTLS {
		ports = n.TLSPorts
	}
	port, ok := ports[s]
	if !ok {
		return "", false
	}
	return n.Hostname + ":" + strconv.FormatUint(uint64(port), 10), true
}
