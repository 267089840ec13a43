package replica

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// Manager drives the scheduler goroutine for every replicated store.
// One Manager instance per process.
type Manager struct {
	logger  *logrus.Logger
	stores  map[int]store.Store
	runtime map[int]*storeRuntime

	killedC chan int
	dead    int32
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		logger:  logger,
		stores:  map[int]store.Store{},
		runtime: map[int]*storeRuntime{},
		killedC: make(chan int, 8),
	}
}

// AddStore registers storeId as replicated from (host, port, remoteStoreId)
// and starts its scheduler goroutine. An empty host registers the store
// in StateNone, and its scheduler goroutine idles.
func (m *Manager) AddStore(s store.Store, host string, port, remoteStoreId int) {
	meta := StoreMeta{
		StoreId:      s.Id(),
		SyncFromHost: host,
		SyncFromPort: port,
		SyncFromId:   remoteStoreId,
		BinlogId:     rkvcommon.TxnIdUninited,
		ReplState:    StateConnect,
	}
	if host == "" {
		meta.ReplState = StateNone
	}
	m.stores[s.Id()] = s
	m.runtime[s.Id()] = newStoreRuntime(meta)

	go m.schedulerLoop(s.Id())
}

// ListStores returns the ids of every store this manager tracks, in no
// particular order.
func (m *Manager) ListStores() []int {
	ids := make([]int, 0, len(m.runtime))
	for id := range m.runtime {
		ids = append(ids, id)
	}
	return ids
}

// ReplStatus returns the current meta and sync status for storeId, or
// false if unknown.
func (m *Manager) ReplStatus(storeId int) (StoreMeta, SyncStatus, bool) {
	rt, ok := m.runtime[storeId]
	if !ok {
		return StoreMeta{}, SyncStatus{}, false
	}
	return rt.snapshotMeta(), rt.snapshotStatus(), true
}

func (m *Manager) Stop() {
	atomic.StoreInt32(&m.dead, 1)
	for range m.runtime {
		m.killedC <- 1
	}
}

func (m *Manager) killed() bool {
	return atomic.LoadInt32(&m.dead) == 1
}

// schedulerLoop is the per-store scheduler: wait until no binlog apply is
// running and claim IsRunning, load the meta snapshot, branch on
// replState, run the matching phase, release IsRunning, reschedule. Grounded on the
// teacher's node.daemon ticker-driven goroutine shape.
func (m *Manager) schedulerLoop(storeId int) {
	rt := m.runtime[storeId]
	for {
		select {
		case <-m.killedC:
			return
		default:
		}

		rt.mu.Lock()
		for rt.status.IsRunning {
			rt.cond.Wait()
		}
		rt.status.IsRunning = true
		rt.mu.Unlock()

		meta := rt.snapshotMeta()
		var nextDelay time.Duration

		switch {
		case !meta.hasPrimary():
			nextDelay = time.Second
		case meta.ReplState == StateConnect:
			if err := m.fullSync(storeId); err != nil {
				m.logger.WithFields(logrus.Fields{"store": storeId, "phase": "fullsync"}).Errorf("full-sync failed: %v", err)
			}
			nextDelay = 3 * time.Second
		case meta.ReplState == StateConnected:
			if err := m.incrementalCheck(storeId); err != nil {
				m.logger.WithFields(logrus.Fields{"store": storeId, "phase": "incrsync"}).Errorf("incremental sync failed: %v", err)
			}
			nextDelay = 10 * time.Second
		default:
			m.logger.Fatalf("store %d in impossible replication state %v", storeId, meta.ReplState)
		}

		rt.mu.Lock()
		rt.status.IsRunning = false
		rt.cond.Signal()
		rt.mu.Unlock()

		select {
		case <-m.killedC:
			return
		case <-time.After(nextDelay):
		}
	}
}

func (m *Manager) addr(storeId int) string {
	meta := m.runtime[storeId].snapshotMeta()
	return fmt.Sprintf("%s:%d", meta.SyncFromHost, meta.SyncFromPort)
}
