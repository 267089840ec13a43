package replica

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/netw"
	"github.com/kvreplica/rkv/pkg/replrecord"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
)

const incrSyncIdleWindow = 10 * time.Second

// incrementalCheck reconnects the incremental-sync session when it has
// never been established or has gone stale, per the design's "sessionId
// none OR lastSyncTime+10s <= now" reconnect rule. A healthy, recently
// active session is left alone: binlog batches keep arriving on the
// session reader goroutine spawned by the previous reconnect.
func (m *Manager) incrementalCheck(storeId int) error {
	rt := m.runtime[storeId]

	rt.mu.Lock()
	stale := rt.status.SessionId == SessionIdNone || !rt.status.LastSyncTime.Add(incrSyncIdleWindow).After(time.Now())
	rt.mu.Unlock()
	if !stale {
		return nil
	}

	meta := rt.snapshotMeta()
	conn, err := netw.DialTCP(m.addr(storeId), initialReadTimeout)
	if err != nil {
		return fmt.Errorf("dial primary: %w", err)
	}

	req := fmt.Sprintf("INCRSYNC %d %d %d", meta.SyncFromId, meta.StoreId, meta.BinlogId)
	if err := conn.WriteLine(req, lineWriteTimeout); err != nil {
		conn.Close()
		return err
	}
	line, err := conn.ReadLine(initialReadTimeout)
	if err != nil {
		conn.Close()
		return err
	}
	if len(line) == 0 || line[0] != '+' {
		conn.Close()
		return fmt.Errorf("primary rejected incr-sync: %q", line)
	}
	if err := conn.WriteLine("+PONG", lineWriteTimeout); err != nil {
		conn.Close()
		return err
	}

	sessionId := newSessionId()
	rt.mu.Lock()
	rt.status.SessionId = sessionId
	rt.status.LastSyncTime = time.Now()
	rt.mu.Unlock()

	go m.sessionReadLoop(storeId, sessionId, conn)
	return nil
}

var sessionIdCounter uint64

// newSessionId is called from incrementalCheck, which runs on one scheduler
// goroutine per replicated store, so the counter needs an atomic bump rather
// than a plain increment.
func newSessionId() uint64 {
	return atomic.AddUint64(&sessionIdCounter, 1)
}

// sessionReadLoop owns the handed-off connection for the lifetime of one
// incremental-sync session: it reads length-prefixed ReplLogBatch frames
// and hands each to applyBinlogs, grounded on the teacher's one-reader-
// goroutine-per-connection style (internal/node.Node.conns).
func (m *Manager) sessionReadLoop(storeId int, sessionId uint64, conn netw.NetConn) {
	defer conn.Close()

	for {
		lenBuf := make([]byte, 4)
		if err := conn.ReadFull(lenBuf, 0); err != nil {
			m.logger.Debugf("store %d: incr-sync session %d read ended: %v", storeId, sessionId, err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, n)
		if err := conn.ReadFull(body, 0); err != nil {
			m.logger.Warnf("store %d: incr-sync session %d truncated frame: %v", storeId, sessionId, err)
			return
		}

		received := time.Now()
		var batch replrecord.ReplLogBatch
		if err := utils.MsgpDecode(body, &batch); err != nil {
			m.logger.Warnf("store %d: incr-sync session %d bad batch: %v", storeId, sessionId, err)
			return
		}

		if err := m.applyBinlogs(storeId, sessionId, map[int64][]replrecord.ReplLog{batch.TxnId: batch.Logs}); err != nil {
			m.logger.Warnf("store %d: apply failed: %v", storeId, err)
			return
		}
		metrics.SetApplyLagMs(time.Since(received).Milliseconds())

		rt := m.runtime[storeId]
		rt.mu.Lock()
		rt.status.LastSyncTime = time.Now()
		rt.mu.Unlock()
	}
}
