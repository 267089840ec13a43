package replica

import (
	"encoding/json"
	"fmt"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// metaKey builds the reserved record key replication meta for storeId is
// durably recorded under, mirroring the teacher's KeyCurrConfig/
// KeyPrevConfig convention of keeping control metadata in the same
// key-value namespace as data.
func metaKey(storeId int) record.Key {
	return record.Key{Type: record.RTMeta, PrimaryKey: []byte(fmt.Sprintf("Repl:%d:Meta", storeId))}
}

// persistMeta durably records meta in s's own namespace, retrying on a
// commit conflict up to three times. Callers update the in-memory runtime
// state with setMeta first and then call this.
func persistMeta(s store.Store, meta StoreMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < 3; attempt++ {
		txn, err := s.CreateTransaction()
		if err != nil {
			return err
		}
		if err := txn.SetKV(metaKey(meta.StoreId), record.Value{Bytes: raw}, false); err != nil {
			txn.Rollback()
			return err
		}
		err = txn.Commit()
		txn.Rollback()
		if err == nil {
			return nil
		}
		if !rkvcommon.IsRetryable(err) {
			return err
		}
	}
	return rkvcommon.ErrCommitRetry
}

// loadPersistedMeta reads back the last durably recorded meta for
// storeId; found is false when none was recorded. The Manager does not
// call it: AddStore starts every store from a fresh meta.
func loadPersistedMeta(s store.Store, storeId int) (StoreMeta, bool, error) {
	txn, err := s.CreateTransaction()
	if err != nil {
		return StoreMeta{}, false, err
	}
	defer txn.Rollback()

	val, err := txn.GetKV(metaKey(storeId))
	if err != nil {
		if rkvcommon.KindOf(err) == rkvcommon.NotFound {
			return StoreMeta{}, false, nil
		}
		return StoreMeta{}, false, err
	}
	var meta StoreMeta
	if err := json.Unmarshal(val.Bytes, &meta); err != nil {
		return StoreMeta{}, false, err
	}
	return meta, true, nil
}
