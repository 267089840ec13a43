// Package store is the transactional KV contract every command in
// internal/command runs against, plus the one concrete implementation
// (LevelStore, backed by goleveldb) this repository ships so the system
// runs standalone. A Store is sharded by the caller: each Store instance
// owns one on-disk directory and is addressed by the segment manager
// (internal/segment) via a store id.
package store

import (
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// Op is the logical operation a committed write represents, used to feed
// the replication binlog sink.
type Op uint8

const (
	OpSet Op = iota
	OpDel
)

// BinlogSink receives one call per logical mutation committed with
// withLog=true, in commit order within a single transaction. It is wired
// by internal/replprimary to build binlog batches; a Store with no sink
// attached simply drops the notification.
type BinlogSink interface {
	OnMutation(txnId int64, op Op, key record.Key, val *record.Value)

	// OnTxnEnd is called once, still under the store's commit lock, after
	// every OnMutation call for txnId has been delivered — the signal a
	// sink needs to know a transaction's mutation batch is complete
	// rather than merely "no more calls yet".
	OnTxnEnd(txnId int64)
}

// Store is the opaque transactional collaborator named by the design: it
// exposes transaction creation plus the handful of whole-store lifecycle
// operations the replica state machine drives directly (stop/clear/restart).
type Store interface {
	Id() int

	CreateTransaction() (Transaction, error)

	// Stop halts background activity so Clear/Restart are safe to run. A
	// failed Stop aborts the caller without rollback: uncanceled
	// transactions may remain.
	Stop() error

	// Clear removes all persisted data. A failed Clear is fatal to the
	// caller.
	Clear() error

	// Restart reopens the store. If loadFromBackup is true, the data
	// directory is first replaced by BackupDir's staged contents, and the
	// binlog id recorded in the backup's manifest is returned as the
	// resumption point.
	Restart(loadFromBackup bool) (resumeBinlogId int64, err error)

	// BackupDir is the staging directory a full-sync file transfer writes
	// into before Restart(true) promotes it.
	BackupDir() string

	// BackupFiles lists every file a full-sync snapshot must ship, as
	// paths relative to Root, with their byte length.
	BackupFiles() (map[string]int64, error)

	// Root returns the live data directory a primary-side full-sync
	// server resolves BackupFiles' relative paths against when reading
	// file content to stream; it is a distinct directory from BackupDir,
	// which is where a replica stages an incoming transfer.
	Root() string

	// ManifestBinlogId returns the resumption binlog id bytes BackupFiles
	// promises for its pseudo-file entry; a primary-side full-sync server
	// serves this pseudo-file's content from these bytes instead of disk.
	ManifestBinlogId() []byte

	SetBinlogSink(sink BinlogSink)

	Close()
}

// Transaction is tied to one goroutine. Commit returns rkvcommon.ErrCommitRetry
// under write-write conflict; the caller owns the retry loop because the
// caller owns transaction construction.
type Transaction interface {
	// GetKV returns rkvcommon.NotFound (wrapped as *rkvcommon.KindErr) when
	// absent. Any other error is a read failure.
	GetKV(key record.Key) (record.Value, error)

	SetKV(key record.Key, val record.Value, withLog bool) error

	DelKV(key record.Key, withLog bool) error

	// Commit finalizes the transaction. If any mutation in the transaction
	// was made with withLog=true, the store assigns the transaction a
	// fresh, strictly increasing txn id and reports every logged mutation
	// to its BinlogSink (if any) under that id before returning.
	Commit() error

	Rollback()
}

func ErrNotFound() error {
	return rkvcommon.NewErr(rkvcommon.NotFound, "key not found")
}
