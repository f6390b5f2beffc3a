package api

import "errors"

var (
	// ErrNotSealable is returned when sealing a node whose logic does not
	// implement Sealable.
	ErrNotSealable = errors.New("node logic is not sealable")

	// ErrInvalidSignature is returned for malformed shorthand signatures.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCompletionFailed wraps provider errors surfaced by a Completer.
	ErrCompletionFailed = errors.New("completion failed")
)
