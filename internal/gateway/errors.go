package gateway

import "fmt"

// The sync engine degrades rather than fails: every outbound error maps to
// one of four categories that the controller knows how to absorb.

// FetchError means a pagination or search call failed. State is unchanged
// and the caller decides whether to retry.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError means an outbound message create failed. The optimistic entry is
// discarded and the caller is notified.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReactionError means an outbound reaction toggle failed. The local toggle
// is reverted; reconciliation will also catch any divergence.
type ReactionError struct {
	Err error
}

func (e *ReactionError) Error() string {
	return fmt.Sprintf("toggle reaction: %v", e.Err)
}

func (e *ReactionError) Unwrap() error { return e.Err }

// AckError means a delivered/read acknowledgment failed. Acknowledgments are
// best-effort and retried naturally on the next qualifying event, so these
// are logged and dropped.
type AckError struct {
	Op  string
	Err error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("acknowledge %s: %v", e.Op, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }
