package contract

import (
	"errors"
)

var (
	// ErrCallIndexOutOfRange means the host pointed past the end of the call
	// batch.
	ErrCallIndexOutOfRange = errors.New("contract: call index out of range")
	// ErrDecode means payload or stored bytes did not parse.
	ErrDecode = errors.New("contract: decode failure")
	// ErrUnsupportedFunction means the opcode byte is not known to the
	// contract.
	ErrUnsupportedFunction = errors.New("contract: unsupported function")
	// ErrRejected is the parent of every business rule rejection. Errors
	// wrapping it are policy outcomes, not malformed input.
	ErrRejected = errors.New("contract: rejected")
	// ErrStorage wraps lookup and write failures against the host store.
	ErrStorage = errors.New("contract: storage failure")
	// ErrPhase means an entrypoint asked the host for an operation its
	// current phase does not allow.
	ErrPhase = errors.New("contract: operation not permitted in phase")
)

// Kind is the coarse classification hosts report to submitters.
type Kind string

const (
	KindNone                Kind = ""
	KindRange               Kind = "range"
	KindDecode              Kind = "decode"
	KindUnsupportedFunction Kind = "unsupported_function"
	KindRejected            Kind = "rejected"
	KindInternal            Kind = "internal"
)

// Classify maps an error returned by an entrypoint onto its Kind. Anything
// not recognised is internal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrCallIndexOutOfRange):
		return KindRange
	case errors.Is(err, ErrUnsupportedFunction):
		return KindUnsupportedFunction
	case errors.Is(err, ErrDecode):
		return KindDecode
	default:
		return KindInternal
	}
}
