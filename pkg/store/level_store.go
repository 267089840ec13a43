package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
)

// dataSubdir/metaSubdir split a LevelStore's root directory the same way a
// full-sync manifest must: the goleveldb files live under dataSubdir, and
// the plain-text replication bookkeeping (the resumption binlog id) lives
// alongside them under metaSubdir so it travels in the same file-level
// snapshot without being mistaken for an SST file by goleveldb itself.
const (
	dataSubdir = "data"
	metaSubdir = "_meta"

	// BinlogIdFileName is the manifest entry a primary-side full-sync
	// server serves from Store.ManifestBinlogId() instead of reading off
	// disk: it is captured at manifest-build time, not whatever the live
	// value happens to be when the bytes are actually streamed.
	BinlogIdFileName = "_meta/binlogid"
)

const binlogIdFileName = BinlogIdFileName

// LevelStore is the one concrete Store this repository ships, grounded on
// the teacher's LevelStore wrapper around goleveldb. Unlike the teacher's
// logical Snapshot()/SnapshotShard() dump, BackupFiles here walks the
// on-disk SST/MANIFEST files directly: the design calls for a *file-level*
// full-sync transfer, so the backup surface has to be actual files.
type LevelStore struct {
	id int

	mu   sync.RWMutex
	db   *leveldb.DB
	root string // contains "data/" (the leveldb dir) and "_meta/"

	backupDir string

	nextTxnId int64
	sink      BinlogSink
}

func OpenLevelStore(id int, root, backupDir string) (*LevelStore, error) {
	ls := &LevelStore{id: id, root: root, backupDir: backupDir}
	if err := ls.open(); err != nil {
		return nil, err
	}
	return ls, nil
}

func (ls *LevelStore) dataDir() string { return filepath.Join(ls.root, dataSubdir) }
func (ls *LevelStore) metaDir() string { return filepath.Join(ls.root, metaSubdir) }

func (ls *LevelStore) open() error {
	if err := utils.CheckAndMkdir(ls.dataDir()); err != nil {
		return err
	}
	if err := utils.CheckAndMkdir(ls.metaDir()); err != nil {
		return err
	}
	db, err := leveldb.OpenFile(ls.dataDir(), nil)
	if err != nil {
		return err
	}
	ls.db = db

	binlogPath := filepath.Join(ls.root, binlogIdFileName)
	if utils.Exists(binlogPath) {
		if n, err := strconv.ParseInt(string(utils.ReadFile(binlogPath)), 10, 64); err == nil {
			ls.nextTxnId = n + 1
		}
	} else {
		// Every fresh store writes a dummy startup binlog id so a replica
		// that later full-syncs from it can assert binlogId != TxnIdUninited.
		utils.WriteFile(binlogPath, []byte(strconv.FormatInt(0, 10)))
		ls.nextTxnId = 1
	}
	return nil
}

func (ls *LevelStore) Id() int { return ls.id }

func (ls *LevelStore) SetBinlogSink(sink BinlogSink) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.sink = sink
}

func (ls *LevelStore) CreateTransaction() (Transaction, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	snap, err := ls.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelTxn{
		store:    ls,
		snap:     snap,
		reads:    make(map[string][]byte),
		readAbs:  make(map[string]bool),
		writes:   make(map[string][]byte),
		dels:     make(map[string]bool),
		logged:   make([]loggedOp, 0, 4),
	}, nil
}

func (ls *LevelStore) Stop() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.db == nil {
		return nil
	}
	err := ls.db.Close()
	ls.db = nil
	return err
}

func (ls *LevelStore) Clear() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	utils.DeleteDir(ls.dataDir())
	utils.DeleteDir(ls.metaDir())
	return nil
}

func (ls *LevelStore) Restart(loadFromBackup bool) (int64, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	resumeBinlogId := rkvcommon.TxnIdUninited

	if loadFromBackup {
		binlogPath := filepath.Join(ls.backupDir, binlogIdFileName)
		raw, err := os.ReadFile(binlogPath)
		if err != nil {
			return 0, fmt.Errorf("restart: missing resumption binlog id in backup: %w", err)
		}
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("restart: malformed resumption binlog id: %w", err)
		}
		resumeBinlogId = n

		utils.DeleteDir(ls.dataDir())
		utils.DeleteDir(ls.metaDir())
		if err := os.Rename(filepath.Join(ls.backupDir, dataSubdir), ls.dataDir()); err != nil {
			return 0, fmt.Errorf("restart: promote data dir: %w", err)
		}
		if err := os.Rename(filepath.Join(ls.backupDir, metaSubdir), ls.metaDir()); err != nil {
			return 0, fmt.Errorf("restart: promote meta dir: %w", err)
		}
		utils.DeleteDir(ls.backupDir)
	}

	if err := ls.open(); err != nil {
		return 0, err
	}
	if loadFromBackup {
		return resumeBinlogId, nil
	}
	return ls.nextTxnId - 1, nil
}

func (ls *LevelStore) BackupDir() string { return ls.backupDir }

func (ls *LevelStore) Root() string { return ls.root }

func (ls *LevelStore) BackupFiles() (map[string]int64, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	out := make(map[string]int64)
	files, err := utils.ListFiles(ls.dataDir())
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rel := filepath.ToSlash(filepath.Join(dataSubdir, f))
		out[rel] = utils.SizeOfFile(filepath.Join(ls.dataDir(), f))
	}
	// The binlog id is snapshotted at manifest-build time: it must reflect
	// the last committed txn as of "now", not whatever it is when the
	// replica eventually restarts with it.
	out[binlogIdFileName] = int64(len(strconv.FormatInt(ls.nextTxnId-1, 10)))
	return out, nil
}

// ManifestBinlogId returns the bytes BackupFiles() promised for the
// binlogIdFileName entry; the primary-side transfer writes these bytes as
// that file's content.
func (ls *LevelStore) ManifestBinlogId() []byte {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return []byte(strconv.FormatInt(ls.nextTxnId-1, 10))
}

func (ls *LevelStore) Close() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.db != nil {
		_ = ls.db.Close()
		ls.db = nil
	}
}

func (ls *LevelStore) allocTxnId() int64 {
	return atomic.AddInt64(&ls.nextTxnId, 1) - 1
}

type loggedOp struct {
	op  Op
	key record.Key
	val *record.Value
}

type levelTxn struct {
	store *LevelStore
	snap  *leveldb.Snapshot

	reads   map[string][]byte // key -> value observed at txn start (read set)
	readAbs map[string]bool   // key -> true if the read observed "absent"
	writes  map[string][]byte
	dels    map[string]bool

	logged []loggedOp
	done   bool
}

func (t *levelTxn) GetKV(key record.Key) (record.Value, error) {
	k := string(key.Encode())
	if v, ok := t.writes[k]; ok {
		return decodeValue(v)
	}
	if t.dels[k] {
		return record.Value{}, ErrNotFound()
	}

	raw, err := t.snap.Get(key.Encode(), nil)
	if err == leveldb.ErrNotFound {
		t.reads[k] = nil
		t.readAbs[k] = true
		return record.Value{}, ErrNotFound()
	} else if err != nil {
		return record.Value{}, err
	}
	t.reads[k] = raw
	t.readAbs[k] = false
	return decodeValue(raw)
}

func (t *levelTxn) SetKV(key record.Key, val record.Value, withLog bool) error {
	k := string(key.Encode())
	raw, err := encodeValue(val)
	if err != nil {
		return err
	}
	t.writes[k] = raw
	delete(t.dels, k)
	if withLog {
		v := val
		t.logged = append(t.logged, loggedOp{op: OpSet, key: key, val: &v})
	}
	return nil
}

func (t *levelTxn) DelKV(key record.Key, withLog bool) error {
	k := string(key.Encode())
	t.dels[k] = true
	delete(t.writes, k)
	if withLog {
		t.logged = append(t.logged, loggedOp{op: OpDel, key: key})
	}
	return nil
}

// Commit detects write-write conflicts by re-reading every key this
// transaction observed (via Get) against the live DB and comparing bytes;
// any mismatch means a concurrent transaction committed since our snapshot
// was taken, and we surface rkvcommon.ErrCommitRetry unchanged.
func (t *levelTxn) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	defer t.snap.Release()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k, wasAbsent := range t.readAbs {
		cur, err := t.store.db.Get([]byte(k), nil)
		if err == leveldb.ErrNotFound {
			if !wasAbsent {
				return rkvcommon.ErrCommitRetry
			}
			continue
		} else if err != nil {
			return err
		}
		if wasAbsent {
			return rkvcommon.ErrCommitRetry
		}
		if string(cur) != string(t.reads[k]) {
			return rkvcommon.ErrCommitRetry
		}
	}

	batch := new(leveldb.Batch)
	for k, v := range t.writes {
		batch.Put([]byte(k), v)
	}
	for k := range t.dels {
		batch.Delete([]byte(k))
	}
	if err := t.store.db.Write(batch, nil); err != nil {
		return err
	}

	if len(t.logged) > 0 && t.store.sink != nil {
		txnId := t.store.allocTxnId()
		binlogPath := filepath.Join(t.store.root, binlogIdFileName)
		utils.WriteFile(binlogPath, []byte(strconv.FormatInt(txnId, 10)))
		for _, lo := range t.logged {
			t.store.sink.OnMutation(txnId, lo.op, lo.key, lo.val)
		}
		t.store.sink.OnTxnEnd(txnId)
	}
	return nil
}

func (t *levelTxn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.snap.Release()
}

func encodeValue(v record.Value) ([]byte, error) {
	return utils.MsgpEncode(&v), nil
}

func decodeValue(raw []byte) (record.Value, error) {
	var v record.Value
	if err := utils.MsgpDecode(raw, &v); err != nil {
		return record.Value{}, rkvcommon.NewErr(rkvcommon.Decode, "%v", err)
	}
	return v, nil
}
