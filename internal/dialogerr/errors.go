// Package dialogerr defines the error-kind taxonomy shared across the
// dialog pipeline so components can dispatch on cause rather than string
// matching.
package dialogerr

import "fmt"

// Kind classifies an error by how the pipeline should react to it.
type Kind int

const (
	// Unknown is the zero value; treated as a non-fatal, logged error.
	Unknown Kind = iota
	// FrameMalformed marks an inbound media envelope that failed to parse.
	FrameMalformed
	// CodecError marks a decompand/resample failure on an otherwise
	// well-formed frame.
	CodecError
	// STTTransient marks a recoverable STT failure (timeout, 5xx).
	STTTransient
	// STTPermanent marks an unrecoverable STT failure (auth, 4xx).
	STTPermanent
	// TTSFailure marks a synthesis failure after exhausting fallbacks.
	TTSFailure
	// NLUFailure marks an intent-extraction failure.
	NLUFailure
	// OperatorTimeout marks an AwaitingOperator verdict that never arrived.
	OperatorTimeout
	// WebSocketDropped marks an unexpected media or operator socket close.
	WebSocketDropped
	// ConfigMissing marks a startup configuration error.
	ConfigMissing
)

func (k Kind) String() string {
	switch k {
	case FrameMalformed:
		return "FrameMalformed"
	case CodecError:
		return "CodecError"
	case STTTransient:
		return "STTTransient"
	case STTPermanent:
		return "STTPermanent"
	case TTSFailure:
		return "TTSFailure"
	case NLUFailure:
		return "NLUFailure"
	case OperatorTimeout:
		return "OperatorTimeout"
	case WebSocketDropped:
		return "WebSocketDropped"
	case ConfigMissing:
		return "ConfigMissing"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a dispatchable Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and the operation name that observed it. If err
// is nil, New returns nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return de != nil && de.Kind == kind
}
