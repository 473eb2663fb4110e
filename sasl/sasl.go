// Package sasl negotiates and drives the SASL authentication round trips
// used during channel bootstrap (spec.md §4.2 "SASL authentication").
package sasl

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/xdg-go/scram"
)

// Mechanism is a SASL mechanism name as advertised by SASL_LIST_MECHS.
type Mechanism string

const (
	MechanismScramSha512 Mechanism = "SCRAM-SHA512"
	MechanismScramSha256 Mechanism = "SCRAM-SHA256"
	MechanismScramSha1   Mechanism = "SCRAM-SHA1"
	MechanismPlain       Mechanism = "PLAIN"
	MechanismGSSAPI      Mechanism = "GSSAPI"
)

// priority orders mechanisms from strongest to weakest; PLAIN is only
// selected when the channel is already TLS-protected.
var priority = []Mechanism{MechanismScramSha512, MechanismScramSha256, MechanismScramSha1, MechanismPlain}

// Exchanger performs the wire-level half of a SASL exchange: it is
// implemented by the channel's bootstrap stage, which knows how to frame
// SASL_AUTH/SASL_STEP requests and read back the status/payload.
type Exchanger interface {
	Auth(ctx context.Context, mechanism string, payload []byte) (resp []byte, needsMore bool, err error)
	Step(ctx context.Context, mechanism string, payload []byte) (resp []byte, needsMore bool, err error)
}

// Negotiate picks the strongest mechanism both sides support. tlsEnabled
// gates PLAIN, which otherwise exposes credentials on the wire in the clear.
func Negotiate(serverMechs []string, tlsEnabled bool) (Mechanism, bool) {
	offered := make(map[Mechanism]struct{}, len(serverMechs))
	for _, m := range serverMechs {
		offered[Mechanism(m)] = struct{}{}
	}
	for _, m := range priority {
		if m == MechanismPlain && !tlsEnabled {
			continue
		}
		if _, ok := offered[m]; ok {
			return m, true
		}
	}
	return "", false
}

// Plain performs PLAIN SASL authentication: a single AUTH round with an
// authzid-less "\0user\0pass" payload.
func Plain(ctx context.Context, username, password string, ex Exchanger) error {
	buf := make([]byte, 0, 2+len(username)+len(password))
	buf = append(buf, 0)
	buf = append(buf, username...)
	buf = append(buf, 0)
	buf = append(buf, password...)
	_, needsMore, err := ex.Auth(ctx, string(MechanismPlain), buf)
	if err != nil {
		return err
	}
	if needsMore {
		return errUnexpectedContinuation
	}
	return nil
}

// Scram performs SCRAM-SHA1/256/512 authentication, driving the
// client-first/server-first/client-final/server-final round trip to
// completion (spec.md §4.2 "SASL authentication").
func Scram(ctx context.Context, mechanism Mechanism, username, password string, ex Exchanger) error {
	hashFn, ok := scramHash(mechanism)
	if !ok {
		return errUnsupportedMechanism
	}
	client, err := hashFn.NewClient(username, password, "")
	if err != nil {
		return err
	}
	conv := client.NewConversation()

	first, err := conv.Step("")
	if err != nil {
		return err
	}
	resp, needsMore, err := ex.Auth(ctx, string(mechanism), []byte(first))
	if err != nil {
		return err
	}
	for needsMore {
		next, stepErr := conv.Step(string(resp))
		if stepErr != nil {
			return stepErr
		}
		resp, needsMore, err = ex.Step(ctx, string(mechanism), []byte(next))
		if err != nil {
			return err
		}
	}
	if !conv.Done() {
		if _, err := conv.Step(string(resp)); err != nil {
			return err
		}
	}
	return nil
}

func scramHash(mechanism Mechanism) (scram.HashGeneratorFcn, bool) {
	switch mechanism {
	case MechanismScramSha512:
		return scram.HashGeneratorFcn(sha512.New), true
	case MechanismScramSha256:
		return scram.HashGeneratorFcn(sha256.New), true
	case MechanismScramSha1:
		return scram.HashGeneratorFcn(sha1.New), true
	default:
		return nil, false
	}
}
