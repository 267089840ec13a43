package command

import (
	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// Transform computes the new value from the old one (nil if absent). It
// returns a domain error (e.g. rkvcommon.Overflow, rkvcommon.CasMismatch)
// to abort the whole RMW, never rkvcommon.ErrCommitRetry — that belongs to
// the engine's own retry loop, not to per-command logic.
type Transform func(old *record.Value) (record.Value, error)

// RMW is the generic "load, transform, store with retry" loop used by
// APPEND, SETRANGE, SETBIT, GETSET, CAS, INCR*, DECR*, and INCRBYFLOAT
// (BITOP writes its target through retrySetGeneric). formatReply renders the wire reply from the new
// and (if any) old value — per-command policy on which one the client
// actually sees (e.g. APPEND replies with the new length, GETSET with the
// old value) lives entirely in that closure.
func RMW(name string, st store.Store, key record.Key, transform Transform, formatReply func(newVal, oldVal *record.Value) []byte) ([]byte, error) {
	if _, err := expireKeyIfNeeded(st, key); err != nil && !isAbsent(err) {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < RetryCount; attempt++ {
		reply, done, err := rmwAttempt(st, key, transform, formatReply)
		if done {
			return reply, err
		}
		metrics.CommitRetriesTotal.WithLabelValues(name).Inc()
		lastErr = err
	}
	return nil, lastErr
}

func rmwAttempt(st store.Store, key record.Key, transform Transform, formatReply func(newVal, oldVal *record.Value) []byte) (reply []byte, done bool, err error) {
	txn, err := st.CreateTransaction()
	if err != nil {
		return nil, true, err
	}
	defer txn.Rollback()

	old, getErr := txn.GetKV(key)
	var oldPtr *record.Value
	switch {
	case getErr == nil && old.HasExpired(nowMs()):
		oldPtr = nil
	case getErr == nil:
		oldPtr = &old
	case rkvcommon.KindOf(getErr) != rkvcommon.NotFound:
		return nil, true, getErr
	}

	newVal, err := transform(oldPtr)
	if err != nil {
		return nil, true, err
	}

	if err := txn.SetKV(key, newVal, true); err != nil {
		return nil, true, err
	}
	if err := txn.Commit(); err != nil {
		if rkvcommon.IsRetryable(err) {
			return nil, false, err
		}
		return nil, true, err
	}

	return formatReply(&newVal, oldPtr), true, nil
}
