// Package replica implements the replica-side half of primary-replica
// replication: the per-store CONNECT/TRANSFER/CONNECTED scheduler, the
// file-level full-sync transfer, incremental-sync session re-binding, and
// transactional binlog apply. It is grounded on the teacher's
// internal/node daemon/heartbeat scheduling shape and its KilledC
// shutdown handshake, carrying an entirely different (binlog, not Raft)
// payload.
package replica

import (
	"sync"
	"time"

	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// State is the replica state machine's three live states plus the zero
// value meaning "never configured to replicate".
type State int

const (
	StateNone State = iota
	StateConnect
	StateTransfer
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateConnect:
		return "CONNECT"
	case StateTransfer:
		return "TRANSFER"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// SessionIdNone is the sentinel "no active incremental-sync session"
// value, the max uint64 per the design's "u64 max = none" convention.
const SessionIdNone = ^uint64(0)

// StoreMeta is the copy-on-write replication identity of one replicated
// store. Every state transition produces a new *StoreMeta; the live
// pointer is swapped under storeRuntime.mu rather than mutated in place, so a
// reader that captured a pointer never observes a torn update.
type StoreMeta struct {
	StoreId      int
	SyncFromHost string
	SyncFromPort int
	SyncFromId   int
	BinlogId     int64
	ReplState    State
}

func (m StoreMeta) hasPrimary() bool { return m.SyncFromHost != "" }

// SyncStatus is the mutable runtime state of one replicated store's sync
// routine, guarded by storeRuntime.mu and serialized against binlog apply
// via storeRuntime.cond.
type SyncStatus struct {
	SessionId     uint64
	LastSyncTime  time.Time
	IsRunning     bool
	NextSchedTime time.Time
}

// resumeMetaOnFailure is the rollback value full-sync resets meta to on
// any early exit: back to CONNECT, with the binlog resume point marked
// unknown (MaxValidTxnId+1) until the next full-sync completes.
func resumeMetaOnFailure(prev StoreMeta) StoreMeta {
	next := prev
	next.ReplState = StateConnect
	next.BinlogId = rkvcommon.MaxValidTxnId + 1
	return next
}

type storeRuntime struct {
	mu     sync.Mutex
	cond   *sync.Cond
	meta   *StoreMeta
	status *SyncStatus
}

func newStoreRuntime(meta StoreMeta) *storeRuntime {
	r := &storeRuntime{
		meta:   &meta,
		status: &SyncStatus{SessionId: SessionIdNone},
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *storeRuntime) snapshotMeta() StoreMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.meta
}

func (r *storeRuntime) setMeta(m StoreMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = &m
}

func (r *storeRuntime) snapshotStatus() SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.status
}
