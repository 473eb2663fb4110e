package sasl

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTCredentialsProvider exchanges a bearer JWT for a per-service
// Credentials pair drawn from its claims, instead of a single
// config-supplied static password (spec.md §6 "pluggable credentials
// provider").
//
// The JWT's "sub" claim supplies the username; a "svc_pw" claim maps
// service name ("kv", "query", "search", …) to the password that service
// expects, one per service class the token authorizes, falling back to a
// shared "pw" claim when a service has no specific entry. The token is
// parsed unverified: the core trusts the channel the JWT arrived over (an
// identity provider outside this module's scope), and it's the server's
// own SASL exchange that proves possession of the resulting password, not
// this client.
type JWTCredentialsProvider struct {
	Token  string
	parser *jwt.Parser
}

// NewJWTCredentialsProvider wraps token, ready for use as a
// channel.BootstrapConfig.CredentialsProvider.
func NewJWTCredentialsProvider(token string) *JWTCredentialsProvider {
	return &JWTCredentialsProvider{Token: token, parser: jwt.NewParser()}
}

type jwtCredentialClaims struct {
	jwt.RegisteredClaims
	ServicePasswords map[string]string `json:"svc_pw"`
	Password         string            `json:"pw"`
}

// Credentials implements CredentialsProvider.
func (p *JWTCredentialsProvider) Credentials(_ context.Context, service string) (Credentials, error) {
	var claims jwtCredentialClaims
	if _, _, err := p.parser.ParseUnverified(p.Token, &claims); err != nil {
		return Credentials{}, fmt.Errorf("sasl: invalid JWT: %w", err)
	}

	password := claims.ServicePasswords[service]
	if password == "" {
		password = claims.Password
	}
	if password == "" {
		return Credentials{}, fmt.Errorf("sasl: JWT carries no password for service %q", service)
	}
	return Credentials{Username: claims.Subject, Password: password}, nil
}
