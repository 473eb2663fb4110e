// Package connstr parses the core's connection string form (spec.md §6):
//
//	[scheme://]host[,host]*[:port][/bucket][?opt=val&...]
package connstr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Host is one seed address from the connection string's host list.
type Host struct {
	Name string
	Port uint16 // 0 if unspecified; caller applies the scheme's default.
}

// ConnSpec is the parsed form of a connection string.
type ConnSpec struct {
	TLS     bool
	Hosts   []Host
	Bucket  string
	Options map[string][]string
}

// Parse parses a connection string of the form
// "[couchbase(s)://]host[:port][,host[:port]]*[/bucket][?opt=val&...]".
func Parse(s string) (*ConnSpec, error) {
	scheme, rest, hasScheme := strings.Cut(s, "://")
	if !hasScheme {
		rest = s
		scheme = "couchbase"
	}

	tls, err := resolveScheme(scheme)
	if err != nil {
		return nil, err
	}

	hostPart := rest
	var bucket string
	var rawQuery string

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		hostPart = rest[:i]
		rawQuery = rest[i+1:]
	}
	if i := strings.IndexByte(hostPart, '/'); i >= 0 {
		bucket = hostPart[i+1:]
		hostPart = hostPart[:i]
	}
	if hostPart == "" {
		return nil, fmt.Errorf("connstr: no host specified")
	}

	hosts, err := parseHosts(hostPart)
	if err != nil {
		return nil, err
	}

	options := map[string][]string{}
	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("connstr: parse options: %w", err)
		}
		options = values
	}

	return &ConnSpec{TLS: tls, Hosts: hosts, Bucket: bucket, Options: options}, nil
}

func resolveScheme(scheme string) (tls bool, err error) {
	switch scheme {
	case "couchbase":
		return false, nil
	case "couchbases":
		return true, nil
	default:
		return false, fmt.Errorf("connstr: unsupported scheme %q", scheme)
	}
}

func parseHosts(hostPart string) ([]Host, error) {
	parts := strings.Split(hostPart, ",")
	hosts := make([]Host, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, portStr, hasPort := strings.Cut(p, ":")
		h := Host{Name: name}
		if hasPort {
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("connstr: invalid port in %q: %w", p, err)
			}
			h.Port = uint16(port)
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("connstr: no host specified")
	}
	return hosts, nil
}

// Option returns the first value of a query option, if present.
func (c *ConnSpec) Option(name string) (string, bool) {
	v, ok := c.Options[name]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}
