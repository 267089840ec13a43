package command

import (
	"time"

	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// resolve hashes userKey to its owning store/chunk via the session's
// segment manager and builds the full record.Key for it.
func resolve(s session.Session, userKey []byte) (store.Store, record.Key, error) {
	st, chunkId, ok := s.Segment().Resolve(userKey)
	if !ok {
		return nil, record.Key{}, rkvcommon.NewErr(rkvcommon.Internal, "no store assigned for key")
	}
	return st, record.NewKVKey(chunkId, s.DbId(), userKey), nil
}

// lockKey acquires the exclusive lock for userKey and returns store,
// record key, and the unlock function. Callers must defer unlock() on
// every exit path.
func lockKey(s session.Session, userKey []byte) (store.Store, record.Key, func(), error) {
	st, chunkId, ok := s.Segment().Resolve(userKey)
	if !ok {
		return nil, record.Key{}, func() {}, rkvcommon.NewErr(rkvcommon.Internal, "no store assigned for key")
	}
	unlock := s.Segment().Lock(chunkId, userKey)
	return st, record.NewKVKey(chunkId, s.DbId(), userKey), unlock, nil
}

// expireKeyIfNeeded is the shared read prelude: if the key has expired it
// is deleted and EXPIRED is returned; if never present, NOTFOUND; else the
// value. Both EXPIRED and NOTFOUND are mapped identically by read
// commands (empty/0/-1/nil as appropriate), but callers that need to tell
// "never existed" apart from "just expired" can still inspect the kind.
func expireKeyIfNeeded(st store.Store, key record.Key) (record.Value, error) {
	txn, err := st.CreateTransaction()
	if err != nil {
		return record.Value{}, err
	}
	defer txn.Rollback()

	val, err := txn.GetKV(key)
	if err != nil {
		if rkvcommon.KindOf(err) == rkvcommon.NotFound {
			return record.Value{}, rkvcommon.NewErr(rkvcommon.NotFound, "")
		}
		return record.Value{}, err
	}
	if !val.HasExpired(nowMs()) {
		return val, nil
	}

	if err := txn.DelKV(key, true); err != nil {
		return record.Value{}, err
	}
	if err := txn.Commit(); err != nil && !rkvcommon.IsRetryable(err) {
		return record.Value{}, err
	}
	return record.Value{}, rkvcommon.NewErr(rkvcommon.Expired, "")
}

// isAbsent reports whether err is the NOTFOUND/EXPIRED "no value" pair read
// commands treat identically.
func isAbsent(err error) bool {
	kind := rkvcommon.KindOf(err)
	return kind == rkvcommon.NotFound || kind == rkvcommon.Expired
}

// retryDeleteGeneric unconditionally deletes userKey under the standard
// bounded optimistic retry loop, idempotent whether or not the key was
// present. Used by commands whose absent-result case is "delete the
// destination" rather than "write an empty value" (e.g. BITOP with every
// source absent).
func retryDeleteGeneric(s session.Session, name string, userKey []byte) ([]byte, error) {
	st, key, unlock, err := lockKey(s, userKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < RetryCount; attempt++ {
		txn, err := st.CreateTransaction()
		if err != nil {
			return nil, err
		}
		err = txn.DelKV(key, true)
		if err == nil {
			err = txn.Commit()
		}
		txn.Rollback()
		if err == nil {
			return FmtZero(), nil
		}
		if !rkvcommon.IsRetryable(err) {
			return nil, err
		}
		metrics.CommitRetriesTotal.WithLabelValues(name).Inc()
		lastErr = err
	}
	return nil, lastErr
}
