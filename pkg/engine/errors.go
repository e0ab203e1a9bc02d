package engine

import "github.com/pkg/errors"

// Kind categorizes an engine error per the error-kind substring convention
// carried from the wire-level ABI: every Error() string carries one of
// these sentinel kinds as a substring, so a client matching against the
// string (e.g. over the remote transport) still classifies failures
// correctly without decoding a structured type.
type Kind string

const (
	KindArgumentWrong     Kind = "argument-wrong"
	KindOutOfMemory       Kind = "out-of-memory"
	KindOutOfRange        Kind = "out-of-range"
	KindArgsCombo         Kind = "args-combo"
	KindMissingFeature    Kind = "missing-feature"
	KindUninitialized     Kind = "uninitialized-state"
	KindNetwork           Kind = "network"
	KindTransactionConflict Kind = "transaction-conflict"
	KindUnknown           Kind = "unknown"
)

// KindError is a sentinel error carrying a Kind, matched with errors.Is
// against the package-level sentinels below and wrapped with
// github.com/pkg/errors for stack-trace-preserving propagation across
// pkg/engine's call boundaries.
type KindError struct {
	Kind Kind
	Msg  string
}

func (e *KindError) Error() string {
	return "ukv: " + string(e.Kind) + ": " + e.Msg
}

func (e *KindError) Is(target error) bool {
	other, ok := target.(*KindError)
	return ok && other.Kind == e.Kind
}

var (
	ErrArgumentWrong      = &KindError{Kind: KindArgumentWrong, Msg: "invalid argument"}
	ErrOutOfMemory        = &KindError{Kind: KindOutOfMemory, Msg: "allocation failed"}
	ErrOutOfRange         = &KindError{Kind: KindOutOfRange, Msg: "value out of range"}
	ErrArgsCombo          = &KindError{Kind: KindArgsCombo, Msg: "incompatible argument combination"}
	ErrMissingFeature     = &KindError{Kind: KindMissingFeature, Msg: "operation unsupported by this backend"}
	ErrUninitializedState = &KindError{Kind: KindUninitialized, Msg: "handle not initialized"}
	ErrNetwork            = &KindError{Kind: KindNetwork, Msg: "remote transport failed"}
	ErrTransactionConflict = &KindError{Kind: KindTransactionConflict, Msg: "watched entry changed since begin"}
	ErrUnknown            = &KindError{Kind: KindUnknown, Msg: "internal invariant violated"}
)

// Wrap attaches msg as context to err, preserving a stack trace via
// github.com/pkg/errors, without discarding err's Kind for errors.Is/As
// matching against the sentinels above.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
