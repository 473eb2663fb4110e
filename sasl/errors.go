package sasl

import "errors"

var (
	errUnexpectedContinuation = errors.New("sasl: server requested continuation for a single-step mechanism")
	errUnsupportedMechanism   = errors.New("sasl: unsupported mechanism")
)
