package command

import (
	"sync"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// fakeStore is an in-memory store.Store used by this package's tests: it
// implements the same optimistic commit-conflict check as LevelStore
// (levelTxn.Commit in pkg/store/level_store.go) without touching a real
// goleveldb directory, since these tests only care about the command
// layer's use of the Store/Transaction contract.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Id() int                         { return 0 }
func (f *fakeStore) Stop() error                     { return nil }
func (f *fakeStore) Clear() error                    { f.data = make(map[string][]byte); return nil }
func (f *fakeStore) Restart(bool) (int64, error)      { return rkvcommon.TxnIdUninited, nil }
func (f *fakeStore) BackupDir() string                { return "" }
func (f *fakeStore) BackupFiles() (map[string]int64, error) { return nil, nil }
func (f *fakeStore) Root() string                     { return "" }
func (f *fakeStore) ManifestBinlogId() []byte         { return nil }
func (f *fakeStore) SetBinlogSink(store.BinlogSink)   {}
func (f *fakeStore) Close()                           {}

func (f *fakeStore) CreateTransaction() (store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		snapshot[k] = v
	}
	return &fakeTxn{
		store:   f,
		snap:    snapshot,
		reads:   make(map[string][]byte),
		readAbs: make(map[string]bool),
		writes:  make(map[string][]byte),
		dels:    make(map[string]bool),
	}, nil
}

type fakeTxn struct {
	store   *fakeStore
	snap    map[string][]byte
	reads   map[string][]byte
	readAbs map[string]bool
	writes  map[string][]byte
	dels    map[string]bool
	done    bool
}

func (t *fakeTxn) GetKV(key record.Key) (record.Value, error) {
	k := string(key.Encode())
	if v, ok := t.writes[k]; ok {
		return decodeFakeValue(v)
	}
	if t.dels[k] {
		return record.Value{}, store.ErrNotFound()
	}
	raw, ok := t.snap[k]
	if !ok {
		t.reads[k] = nil
		t.readAbs[k] = true
		return record.Value{}, store.ErrNotFound()
	}
	t.reads[k] = raw
	t.readAbs[k] = false
	return decodeFakeValue(raw)
}

func (t *fakeTxn) SetKV(key record.Key, val record.Value, withLog bool) error {
	k := string(key.Encode())
	t.writes[k] = encodeFakeValue(val)
	delete(t.dels, k)
	return nil
}

func (t *fakeTxn) DelKV(key record.Key, withLog bool) error {
	k := string(key.Encode())
	t.dels[k] = true
	delete(t.writes, k)
	return nil
}

func (t *fakeTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k, wasAbsent := range t.readAbs {
		cur, ok := t.store.data[k]
		if wasAbsent && ok {
			return rkvcommon.ErrCommitRetry
		}
		if !wasAbsent && (!ok || string(cur) != string(t.reads[k])) {
			return rkvcommon.ErrCommitRetry
		}
	}

	for k, v := range t.writes {
		t.store.data[k] = v
	}
	for k := range t.dels {
		delete(t.store.data, k)
	}
	return nil
}

func (t *fakeTxn) Rollback() { t.done = true }

// encodeFakeValue/decodeFakeValue round-trip a record.Value without going
// through msgp: the fake store's map already lives entirely in memory, so
// the wire encoding under test is record.Key.Encode/DecodeKey (exercised
// by every GetKV/SetKV call through the real record.Key type), not
// record.Value's msgp methods (covered directly in pkg/record).
func encodeFakeValue(v record.Value) []byte {
	buf := make([]byte, 0, len(v.Bytes)+16)
	buf = append(buf, byte(v.TTLMs>>56), byte(v.TTLMs>>48), byte(v.TTLMs>>40), byte(v.TTLMs>>32),
		byte(v.TTLMs>>24), byte(v.TTLMs>>16), byte(v.TTLMs>>8), byte(v.TTLMs))
	buf = append(buf, byte(v.Cas>>56), byte(v.Cas>>48), byte(v.Cas>>40), byte(v.Cas>>32),
		byte(v.Cas>>24), byte(v.Cas>>16), byte(v.Cas>>8), byte(v.Cas))
	buf = append(buf, v.Bytes...)
	return buf
}

func decodeFakeValue(b []byte) (record.Value, error) {
	if len(b) < 16 {
		return record.Value{}, rkvcommon.NewErr(rkvcommon.Decode, "truncated fake value")
	}
	ttl := int64(b[0])<<56 | int64(b[1])<<48 | int64(b[2])<<40 | int64(b[3])<<32 |
		int64(b[4])<<24 | int64(b[5])<<16 | int64(b[6])<<8 | int64(b[7])
	cas := uint64(b[8])<<56 | uint64(b[9])<<48 | uint64(b[10])<<40 | uint64(b[11])<<32 |
		uint64(b[12])<<24 | uint64(b[13])<<16 | uint64(b[14])<<8 | uint64(b[15])
	return record.Value{Bytes: append([]byte{}, b[16:]...), TTLMs: ttl, Cas: cas}, nil
}
