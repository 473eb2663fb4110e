package topology

// ServiceType enumerates the server service types a node may expose
// (spec.md §6 "Ports").
type ServiceType int

const (
	ServiceKV ServiceType = iota
	ServiceQuery
	ServiceViews
	ServiceSearch
	ServiceAnalytics
	ServiceManager
	ServiceObserve // routed like KV (vbucket-hashed), not a distinct wire service
)

func (s ServiceType) String() string {
	switch s {
	case ServiceKV:
		return "kv"
	case ServiceQuery:
		return "query"
	case ServiceViews:
		return "views"
	case ServiceSearch:
		return "search"
	case ServiceAnalytics:
		return "analytics"
	case ServiceManager:
		return "manager"
	case ServiceObserve:
		return "observe"
	default:
		return "unknown"
	}
}

// DefaultPort returns the well-known plain and TLS ports for a service
// type (spec.md §6 "Ports").
func DefaultPort(s ServiceType) (plain, tls uint16) {
	switch s {
	case ServiceKV, ServiceObserve:
		return 11210, 11207
	case ServiceQuery:
		return 8093, 18093
	case ServiceViews:
		return 8092, 18092
	case ServiceSearch:
		return 8094, 18094
	case ServiceAnalytics:
		return 8095, 18095
	case ServiceManager:
		return 8091, 18091
	default:
		return 0, 0
	}
}
