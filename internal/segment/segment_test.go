package segment

import (
	"sync"
	"testing"
	"time"

	"github.com/kvreplica/rkv/pkg/store"
)

type stubStore struct{ id int }

func (s *stubStore) Id() int                                 { return s.id }
func (s *stubStore) Stop() error                              { return nil }
func (s *stubStore) Clear() error                             { return nil }
func (s *stubStore) Restart(bool) (int64, error)              { return 0, nil }
func (s *stubStore) BackupDir() string                        { return "" }
func (s *stubStore) BackupFiles() (map[string]int64, error)   { return nil, nil }
func (s *stubStore) Root() string                             { return "" }
func (s *stubStore) ManifestBinlogId() []byte                 { return nil }
func (s *stubStore) SetBinlogSink(store.BinlogSink)           {}
func (s *stubStore) Close()                                   {}
func (s *stubStore) CreateTransaction() (store.Transaction, error) {
	return nil, nil
}

func TestResolveIsDeterministic(t *testing.T) {
	s := &stubStore{id: 1}
	m := NewSingleStoreManager(64, s)

	got, chunkId, ok := m.Resolve([]byte("some-key"))
	if !ok {
		t.Fatalf("Resolve returned !ok")
	}
	for i := 0; i < 10; i++ {
		got2, chunkId2, ok2 := m.Resolve([]byte("some-key"))
		if !ok2 || got2 != got || chunkId2 != chunkId {
			t.Fatalf("Resolve not deterministic across calls")
		}
	}
}

func TestResolveSpansAllChunks(t *testing.T) {
	s := &stubStore{id: 1}
	m := NewSingleStoreManager(8, s)

	seen := make(map[uint32]bool)
	for i := 0; i < 500; i++ {
		_, chunkId, ok := m.Resolve([]byte{byte(i), byte(i >> 8)})
		if !ok {
			t.Fatalf("Resolve !ok")
		}
		seen[chunkId] = true
	}
	if len(seen) < 2 {
		t.Fatalf("hashing failed to spread keys across chunks, saw %d distinct chunks", len(seen))
	}
}

func TestResolveUnknownStoreIsNotOk(t *testing.T) {
	m := NewManager(4, map[int]store.Store{}, func(uint32) int { return 99 })
	if _, _, ok := m.Resolve([]byte("k")); ok {
		t.Fatalf("Resolve with no registered store: want !ok")
	}
}

func TestLockIsExclusivePerKey(t *testing.T) {
	s := &stubStore{id: 1}
	m := NewSingleStoreManager(16, s)

	_, chunkId, _ := m.Resolve([]byte("k"))

	unlock := m.Lock(chunkId, []byte("k"))

	var held bool
	done := make(chan struct{})
	go func() {
		unlock2 := m.Lock(chunkId, []byte("k"))
		held = true
		unlock2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second Lock on the same key succeeded while the first was still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-done
	if !held {
		t.Fatalf("second Lock never acquired after release")
	}
}

func TestLockDoesNotSerializeDistinctKeys(t *testing.T) {
	s := &stubStore{id: 1}
	m := NewSingleStoreManager(16, s)

	_, chunkIdA, _ := m.Resolve([]byte("a"))
	_, chunkIdB, _ := m.Resolve([]byte("b"))

	unlockA := m.Lock(chunkIdA, []byte("a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock(chunkIdB, []byte("b"))
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Lock on a distinct key blocked behind an unrelated key's lock")
	}
}

func TestLockConcurrentSameKeyStaysSerialized(t *testing.T) {
	s := &stubStore{id: 1}
	m := NewSingleStoreManager(16, s)
	_, chunkId, _ := m.Resolve([]byte("counter"))

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(chunkId, []byte("counter"))
			defer unlock()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}
