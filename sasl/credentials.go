package sasl

import "context"

// Credentials is the (user, password) pair a SASL mechanism authenticates
// with for one service.
type Credentials struct {
	Username string
	Password string
}

// CredentialsProvider resolves the Credentials bootstrap should
// authenticate with for a given service type (e.g. "kv", "query"),
// letting auth material be computed per-service at bootstrap time instead
// of being config-loaded once and reused verbatim everywhere (spec.md §6
// "pluggable credentials provider").
type CredentialsProvider interface {
	Credentials(ctx context.Context, service string) (Credentials, error)
}

// StaticCredentials is the common case: one username/password pair reused
// for every service, matching config.ConnectionConfig's plain fields.
type StaticCredentials struct {
	Username string
	Password string
}

func (s StaticCredentials) Credentials(context.Context, string) (Credentials, error) {
	return Credentials{Username: s.Username, Password: s.Password}, nil
}
