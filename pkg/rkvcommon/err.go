package rkvcommon

import "fmt"

//go:generate msgp

// Err is the command-layer error taxonomy. It is a kind, not a Go error
// object, so it can cross the wire and be compared cheaply in hot paths.
type Err string

const (
	OK           Err = "OK"
	NotFound     Err = "NOTFOUND"
	Expired      Err = "EXPIRED"
	ParsePkt     Err = "PARSEPKT"
	ParseOpt     Err = "PARSEOPT"
	Decode       Err = "DECODE"
	Overflow     Err = "OVERFLOW"
	CasMismatch  Err = "CAS"
	CommitRetry  Err = "COMMIT_RETRY"
	Network      Err = "NETWORK"
	Internal     Err = "INTERNAL"
)

// KindErr wraps an Err kind as a Go error so it can flow through normal
// error-returning signatures; its kind is read back with KindOf and
// IsRetryable.
type KindErr struct {
	Kind Err
	Msg  string
}

func (e *KindErr) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func NewErr(kind Err, format string, args ...interface{}) *KindErr {
	return &KindErr{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ErrCommitRetry is the single sentinel every optimistic-retry loop in this
// repository tests for. Every other error kind is terminal for the current
// attempt.
var ErrCommitRetry = &KindErr{Kind: CommitRetry, Msg: "write-write conflict, retry the transaction"}

// IsRetryable reports whether err is the one recoverable post-write error
// class. Non-retryable errors must short-circuit without re-opening a
// transaction.
func IsRetryable(err error) bool {
	ke, ok := err.(*KindErr)
	return ok && ke.Kind == CommitRetry
}

func KindOf(err error) Err {
	if err == nil {
		return OK
	}
	if ke, ok := err.(*KindErr); ok {
		return ke.Kind
	}
	return Internal
}
