package topology

import (
	"encoding/json"
	"fmt"
)

// wireConfig mirrors the server's streamed config JSON document (spec.md
// §4.3). Extended node info ("nodesExt") carries the authoritative
// hostname and per-service ports; legacy "nodes" entries are positional
// fallbacks kept for backward compatibility with older server builds.
type wireConfig struct {
	UUID                string              `json:"uuid"`
	Name                string              `json:"name"`
	NodeLocator         string              `json:"nodeLocator"`
	URI                 string              `json:"uri"`
	StreamingURI        string              `json:"streamingUri"`
	BucketCapabilities  []string            `json:"bucketCapabilities"`
	Rev                 int64               `json:"rev"`
	RevEpoch            int64               `json:"revEpoch"`
	NodesExt            []wireNodeExt       `json:"nodesExt"`
	Nodes               []wireNodeLegacy    `json:"nodes"`
	VBucketServerMap    *wireVbucketMap     `json:"vBucketServerMap"`
}

type wireNodeExt struct {
	Hostname *string           `json:"hostname"`
	Services map[string]int    `json:"services"`
	AltAddr  map[string]wireAlt `json:"alternateAddresses"`
}

type wireAlt struct {
	Hostname string         `json:"hostname"`
	Ports    map[string]int `json:"ports"`
}

type wireNodeLegacy struct {
	Hostname string `json:"hostname"`
}

type wireVbucketMap struct {
	NumReplicas int     `json:"numReplicas"`
	VBucketMap  [][]int `json:"vBucketMap"`
}

// service key names as they appear in the server's "services" map, both
// plain and TLS variants.
var serviceKeys = map[string]ServiceType{
	"kv":        ServiceKV,
	"n1ql":      ServiceQuery,
	"capi":      ServiceViews,
	"fts":       ServiceSearch,
	"cbas":      ServiceAnalytics,
	"mgmt":      ServiceManager,
	"kvSSL":     ServiceKV,
	"n1qlSSL":   ServiceQuery,
	"capiSSL":   ServiceViews,
	"ftsSSL":    ServiceSearch,
	"cbasSSL":   ServiceAnalytics,
	"mgmtSSL":   ServiceManager,
}

func isTLSKey(key string) bool {
	n := len(key)
	return n > 3 && key[n-3:] == "SSL"
}

// Parse normalizes a raw config JSON document (from GET_CONFIG or the HTTP
// streaming endpoint) into a BucketConfig, applying the node-derivation
// and service-enablement policies of spec.md §4.3.
func Parse(body []byte, originHost string) (*BucketConfig, error) {
	var w wireConfig
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("topology: decode config: %w", err)
	}

	caps := make(map[Capability]struct{}, len(w.BucketCapabilities))
	for _, c := range w.BucketCapabilities {
		caps[Capability(c)] = struct{}{}
	}

	nodes, enabled := deriveNodes(w, originHost, caps)

	bc := &BucketConfig{
		UUID:            w.UUID,
		Name:            w.Name,
		NodeLocator:     parseLocator(w.NodeLocator),
		RestURI:         w.URI,
		StreamingURI:    w.StreamingURI,
		Nodes:           nodes,
		Capabilities:    caps,
		EnabledServices: enabled,
		OriginHost:      originHost,
		Rev:             Revision{Epoch: w.RevEpoch, ID: w.Rev},
	}
	if w.VBucketServerMap != nil {
		bc.VbucketMap = w.VBucketServerMap.VBucketMap
		bc.NumReplicas = w.VBucketServerMap.NumReplicas
	}
	return bc, nil
}

func parseLocator(s string) Locator {
	switch s {
	case "vbucket":
		return LocatorVbucket
	case "ketama":
		return LocatorKetama
	default:
		return LocatorNone
	}
}

// deriveNodes implements spec.md §4.3 "Node derivation": prefer extended
// node info; fall back to the legacy node at the same index; fall back to
// originHost. It then applies the ephemeral-bucket VIEWS drop and the
// missing-legacy-node KV/VIEWS drop.
func deriveNodes(w wireConfig, originHost string, caps map[Capability]struct{}) ([]NodeInfo, []map[ServiceType]struct{}) {
	n := len(w.NodesExt)
	if n == 0 {
		n = len(w.Nodes)
	}
	nodes := make([]NodeInfo, n)
	enabled := make([]map[ServiceType]struct{}, n)

	hasCouchapi := false
	for c := range caps {
		if c == CapCouchapi {
			hasCouchapi = true
		}
	}

	for i := 0; i < n; i++ {
		var ext *wireNodeExt
		if i < len(w.NodesExt) {
			ext = &w.NodesExt[i]
		}
		hasLegacy := i < len(w.Nodes)

		hostname := resolveHostname(ext, w, i, originHost)

		node := NodeInfo{
			Hostname:           hostname,
			PlainPorts:         map[ServiceType]uint16{},
			TLSPorts:           map[ServiceType]uint16{},
			AlternateAddresses: map[string]AlternateAddress{},
		}
		svc := map[ServiceType]struct{}{}

		if ext != nil {
			for key, port := range ext.Services {
				st, ok := serviceKeys[key]
				if !ok {
					continue
				}
				if isTLSKey(key) {
					node.TLSPorts[st] = uint16(port)
				} else {
					node.PlainPorts[st] = uint16(port)
				}
				svc[st] = struct{}{}
			}
			for name, alt := range ext.AltAddr {
				aa := AlternateAddress{Hostname: alt.Hostname, Ports: map[ServiceType]uint16{}, TLSPorts: map[ServiceType]uint16{}}
				for key, port := range alt.Ports {
					st, ok := serviceKeys[key]
					if !ok {
						continue
					}
					if isTLSKey(key) {
						aa.TLSPorts[st] = uint16(port)
					} else {
						aa.Ports[st] = uint16(port)
					}
				}
				node.AlternateAddresses[name] = aa
			}
		}

		// Ephemeral buckets (no COUCHAPI capability) never expose VIEWS.
		if !hasCouchapi {
			delete(node.PlainPorts, ServiceViews)
			delete(node.TLSPorts, ServiceViews)
			delete(svc, ServiceViews)
		}

		// A service present cluster-wide but absent for this bucket: when
		// there's no corresponding legacy node at this index, the bucket
		// doesn't serve KV/VIEWS here even if nodesExt advertised them.
		if !hasLegacy {
			delete(node.PlainPorts, ServiceKV)
			delete(node.TLSPorts, ServiceKV)
			delete(svc, ServiceKV)
			delete(node.PlainPorts, ServiceViews)
			delete(node.TLSPorts, ServiceViews)
			delete(svc, ServiceViews)
		}

		nodes[i] = node
		enabled[i] = svc
	}
	return nodes, enabled
}

func resolveHostname(ext *wireNodeExt, w wireConfig, i int, originHost string) string {
	if ext != nil && ext.Hostname != nil && *ext.Hostname != "" {
		return *ext.Hostname
	}
	if i < len(w.Nodes) && w.Nodes[i].Hostname != "" {
		return w.Nodes[i].Hostname
	}
	return originHost
}
