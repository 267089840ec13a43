package replica

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/replrecord"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// fakeStore is a minimal in-memory store.Store/store.Transaction pair used
// only by this package's tests. Its Commit applies writes without the
// optimistic commit-conflict check pkg/store/level_store.go performs.
type fakeStore struct {
	mu   sync.Mutex
	id   int
	data map[string][]byte
}

func newFakeStore(id int) *fakeStore {
	return &fakeStore{id: id, data: make(map[string][]byte)}
}

func (f *fakeStore) Id() int                                       { return f.id }
func (f *fakeStore) Stop() error                                    { return nil }
func (f *fakeStore) Clear() error                                   { f.data = make(map[string][]byte); return nil }
func (f *fakeStore) Restart(bool) (int64, error)                    { return rkvcommon.TxnIdUninited, nil }
func (f *fakeStore) BackupDir() string                              { return "" }
func (f *fakeStore) BackupFiles() (map[string]int64, error)         { return nil, nil }
func (f *fakeStore) Root() string                                   { return "" }
func (f *fakeStore) ManifestBinlogId() []byte                       { return nil }
func (f *fakeStore) SetBinlogSink(store.BinlogSink)                 {}
func (f *fakeStore) Close()                                         {}

func (f *fakeStore) CreateTransaction() (store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		snap[k] = v
	}
	return &fakeTxn{store: f, snap: snap, writes: map[string][]byte{}, dels: map[string]bool{}}, nil
}

type fakeTxn struct {
	store  *fakeStore
	snap   map[string][]byte
	writes map[string][]byte
	dels   map[string]bool
	done   bool
}

func (t *fakeTxn) GetKV(key record.Key) (record.Value, error) {
	k := string(key.Encode())
	if v, ok := t.writes[k]; ok {
		return decodeFakeValue(v), nil
	}
	if t.dels[k] {
		return record.Value{}, store.ErrNotFound()
	}
	raw, ok := t.snap[k]
	if !ok {
		return record.Value{}, store.ErrNotFound()
	}
	return decodeFakeValue(raw), nil
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
	for k, v := range t.writes {
		t.store.data[k] = v
	}
	for k := range t.dels {
		delete(t.store.data, k)
	}
	return nil
}

func (t *fakeTxn) Rollback() { t.done = true }

func encodeFakeValue(v record.Value) []byte {
	buf := make([]byte, 0, len(v.Bytes)+16)
	buf = append(buf, byte(v.TTLMs>>56), byte(v.TTLMs>>48), byte(v.TTLMs>>40), byte(v.TTLMs>>32),
		byte(v.TTLMs>>24), byte(v.TTLMs>>16), byte(v.TTLMs>>8), byte(v.TTLMs))
	buf = append(buf, byte(v.Cas>>56), byte(v.Cas>>48), byte(v.Cas>>40), byte(v.Cas>>32),
		byte(v.Cas>>24), byte(v.Cas>>16), byte(v.Cas>>8), byte(v.Cas))
	buf = append(buf, v.Bytes...)
	return buf
}

func decodeFakeValue(b []byte) record.Value {
	if len(b) < 16 {
		return record.Value{}
	}
	ttl := int64(b[0])<<56 | int64(b[1])<<48 | int64(b[2])<<40 | int64(b[3])<<32 |
		int64(b[4])<<24 | int64(b[5])<<16 | int64(b[6])<<8 | int64(b[7])
	cas := uint64(b[8])<<56 | uint64(b[9])<<48 | uint64(b[10])<<40 | uint64(b[11])<<32 |
		uint64(b[12])<<24 | uint64(b[13])<<16 | uint64(b[14])<<8 | uint64(b[15])
	return record.Value{Bytes: append([]byte{}, b[16:]...), TTLMs: ttl, Cas: cas}
}

func newTestManager(s store.Store) *Manager {
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return &Manager{
		logger:  logger,
		stores:  map[int]store.Store{s.Id(): s},
		runtime: map[int]*storeRuntime{},
		killedC: make(chan int, 8),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPersistAndLoadMetaRoundtrip(t *testing.T) {
	s := newFakeStore(1)
	meta := StoreMeta{StoreId: 1, SyncFromHost: "10.0.0.1", SyncFromPort: 6400, SyncFromId: 2, BinlogId: 42, ReplState: StateConnected}

	if err := persistMeta(s, meta); err != nil {
		t.Fatalf("persistMeta: %v", err)
	}

	got, ok, err := loadPersistedMeta(s, 1)
	if err != nil {
		t.Fatalf("loadPersistedMeta: %v", err)
	}
	if !ok {
		t.Fatalf("loadPersistedMeta: not found after persistMeta")
	}
	if got != meta {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, meta)
	}
}

func TestLoadPersistedMetaMissingIsNotFound(t *testing.T) {
	s := newFakeStore(1)
	_, ok, err := loadPersistedMeta(s, 7)
	if err != nil {
		t.Fatalf("loadPersistedMeta: %v", err)
	}
	if ok {
		t.Fatalf("loadPersistedMeta on an empty store: want !ok")
	}
}

func TestApplyBinlogsSetAndDelete(t *testing.T) {
	s := newFakeStore(1)
	m := newTestManager(s)
	rt := newStoreRuntime(StoreMeta{StoreId: 1, ReplState: StateConnected})
	rt.status.SessionId = 5
	m.runtime[1] = rt

	setKey := record.NewKVKey(0, 0, []byte("k1"))
	delKey := record.NewKVKey(0, 0, []byte("k2"))

	setTxn, err := s.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := setTxn.SetKV(delKey, record.Value{Bytes: []byte("to-be-deleted")}, false); err != nil {
		t.Fatalf("seed SetKV: %v", err)
	}
	if err := setTxn.Commit(); err != nil {
		t.Fatalf("seed Commit: %v", err)
	}

	binlogs := map[int64][]replrecord.ReplLog{
		10: {replrecord.NewSetLog(setKey, record.Value{Bytes: []byte("v1"), Cas: 1})},
		11: {replrecord.NewDelLog(delKey)},
	}

	if err := m.applyBinlogs(1, 5, binlogs); err != nil {
		t.Fatalf("applyBinlogs: %v", err)
	}

	readTxn, _ := s.CreateTransaction()
	defer readTxn.Rollback()

	got, err := readTxn.GetKV(setKey)
	if err != nil {
		t.Fatalf("GetKV(k1): %v", err)
	}
	if string(got.Bytes) != "v1" {
		t.Fatalf("k1 = %q, want v1", got.Bytes)
	}

	if _, err := readTxn.GetKV(delKey); rkvcommon.KindOf(err) != rkvcommon.NotFound {
		t.Fatalf("k2: want NotFound after delete, got %v", err)
	}

	meta := rt.snapshotMeta()
	if meta.BinlogId != 11 {
		t.Fatalf("BinlogId = %d, want 11 (last applied)", meta.BinlogId)
	}
}

func TestApplyBinlogsRejectsStaleSession(t *testing.T) {
	s := newFakeStore(1)
	m := newTestManager(s)
	rt := newStoreRuntime(StoreMeta{StoreId: 1, ReplState: StateConnected})
	rt.status.SessionId = 5
	m.runtime[1] = rt

	err := m.applyBinlogs(1, 999, map[int64][]replrecord.ReplLog{
		1: {replrecord.NewSetLog(record.NewKVKey(0, 0, []byte("k")), record.Value{})},
	})
	if err == nil {
		t.Fatalf("applyBinlogs with mismatched sessionId: want error, got nil")
	}

	meta := rt.snapshotMeta()
	if meta.BinlogId != 0 {
		t.Fatalf("BinlogId changed despite rejected session: %d", meta.BinlogId)
	}
}
