package replica

import (
	"fmt"
	"sort"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/replrecord"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
	"github.com/kvreplica/rkv/pkg/store"
)

// applyBinlogs applies every (txnId, ops) group in binlogs, in ascending
// txn id order, atomically per group. It serializes against the sync
// routine via the runtime's condition variable: only one of {scheduler
// phase, apply} runs at a time per store.
func (m *Manager) applyBinlogs(storeId int, sessionId uint64, binlogs map[int64][]replrecord.ReplLog) error {
	rt := m.runtime[storeId]

	rt.mu.Lock()
	for rt.status.IsRunning {
		rt.cond.Wait()
	}
	rt.status.IsRunning = true
	sameSession := rt.status.SessionId == sessionId
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.status.IsRunning = false
		rt.cond.Signal()
		rt.mu.Unlock()
	}()

	if !sameSession {
		return rkvcommon.NewErr(rkvcommon.NotFound, "sessionId not match")
	}

	txnIds := make([]int64, 0, len(binlogs))
	for id := range binlogs {
		txnIds = append(txnIds, id)
	}
	sort.Slice(txnIds, func(i, j int) bool { return txnIds[i] < txnIds[j] })

	s := m.stores[storeId]
	var lastApplied int64 = -1
	for _, txnId := range txnIds {
		if err := applySingleTxn(s, txnId, binlogs[txnId]); err != nil {
			return err
		}
		lastApplied = txnId
	}

	if lastApplied >= 0 {
		meta := rt.snapshotMeta()
		if meta.ReplState != StateConnected {
			m.logger.Fatalf("store %d: binlog apply completed outside CONNECTED state (%v)", storeId, meta.ReplState)
		}
		meta.BinlogId = lastApplied
		rt.setMeta(meta)
		_ = persistMeta(s, meta)
	}
	return nil
}

// applySingleTxn applies one transaction group's ordered log entries
// atomically: the binlog pair itself is written with withLog=false so
// applying a replicated mutation never re-spawns a binlog entry, then the
// underlying key is set or deleted per the entry's op.
func applySingleTxn(s store.Store, txnId int64, logs []replrecord.ReplLog) error {
	txn, err := s.CreateTransaction()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	for i, l := range logs {
		logKey := record.Key{Type: record.RTMeta, PrimaryKey: []byte(fmt.Sprintf("Binlog:%d:%d", txnId, i))}
		if err := txn.SetKV(logKey, record.Value{Bytes: utils.MsgpEncode(&l.Value)}, false); err != nil {
			return err
		}

		key, ok := record.DecodeKey(l.Value.OpKey)
		if !ok {
			return rkvcommon.NewErr(rkvcommon.Decode, "malformed binlog record key")
		}

		switch l.Value.Op {
		case store.OpSet:
			val, err := replrecord.DecodeValue(l.Value.OpValue)
			if err != nil {
				return err
			}
			if err := txn.SetKV(key, val, false); err != nil {
				return err
			}
		case store.OpDel:
			if err := txn.DelKV(key, false); err != nil {
				return err
			}
		}
	}

	return txn.Commit()
}
