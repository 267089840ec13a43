package replprimary

import (
	"fmt"
	"sync"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/replrecord"
	"github.com/kvreplica/rkv/pkg/store"
)

// ringSink implements store.BinlogSink, collecting every committed
// transaction's logged mutations into a fixed-capacity ring buffer and
// fanning each finished batch out to every subscribed incremental-sync
// session. Grounded on the teacher's in-memory replicated-log buffering
// (internal/raft's log compaction window), sized instead to binlog
// batches rather than raft entries.
type ringSink struct {
	mu   sync.Mutex
	cap  int
	buf  []replrecord.ReplLogBatch
	subs map[uint64]chan replrecord.ReplLogBatch

	pending    []replrecord.ReplLog
	pendingTxn int64
}

func newRingSink(capacity int) *ringSink {
	return &ringSink{cap: capacity, subs: map[uint64]chan replrecord.ReplLogBatch{}}
}

// OnMutation is called once per logged mutation within a single commit,
// in commit order, while the store still holds its commit lock.
func (s *ringSink) OnMutation(txnId int64, op store.Op, key record.Key, val *record.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingTxn = txnId
	var log replrecord.ReplLog
	if op == store.OpSet {
		log = replrecord.NewSetLog(key, *val)
	} else {
		log = replrecord.NewDelLog(key)
	}
	s.pending = append(s.pending, log)
}

// OnTxnEnd closes out txnId's batch and fans it out to every subscribed
// incremental-sync session.
func (s *ringSink) OnTxnEnd(txnId int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return
	}

	batch := replrecord.ReplLogBatch{TxnId: txnId, Logs: s.pending}
	s.buf = append(s.buf, batch)
	if len(s.buf) > s.cap {
		s.buf = s.buf[len(s.buf)-s.cap:]
	}
	for id, ch := range s.subs {
		select {
		case ch <- batch:
		default:
			// A subscriber whose channel is full is unsubscribed and its
			// channel closed, ending that session's stream, so it never
			// skips a batch silently.
			delete(s.subs, id)
			close(ch)
		}
	}
	s.pending = nil
	s.pendingTxn = 0
}

// oldestRetained reports the txn id of the oldest batch still in the ring,
// or ok=false if nothing has been retained yet.
func (s *ringSink) oldestRetained() (txnId int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return 0, false
	}
	return s.buf[0].TxnId, true
}

// subscribeFrom subscribes sessionId and seeds the returned channel with
// every retained batch newer than fromBinlogId, atomically under the ring's
// mutex so no transaction committed between the backlog read and the
// subscription taking effect is skipped. It rejects a fromBinlogId that
// precedes the retained window: the caller has a gap this ring can no
// longer fill and must fall back to a full sync.
func (s *ringSink) subscribeFrom(sessionId uint64, fromBinlogId int64) (chan replrecord.ReplLogBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) > 0 && fromBinlogId < s.buf[0].TxnId-1 {
		return nil, fmt.Errorf("requested binlog id %d precedes retained window (oldest %d)", fromBinlogId, s.buf[0].TxnId)
	}

	ch := make(chan replrecord.ReplLogBatch, len(s.buf)+256)
	for _, batch := range s.buf {
		if batch.TxnId > fromBinlogId {
			ch <- batch
		}
	}
	s.subs[sessionId] = ch
	return ch, nil
}

func (s *ringSink) unsubscribe(sessionId uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sessionId)
}
