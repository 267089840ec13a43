package replrecord

import (
	"bytes"
	"testing"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
	"github.com/kvreplica/rkv/pkg/store"
)

func TestNewSetLogEncodesKeyAndValue(t *testing.T) {
	key := record.NewKVKey(1, 0, []byte("k"))
	val := record.Value{Bytes: []byte("v"), TTLMs: 0, Cas: 1}

	log := NewSetLog(key, val)
	if log.Value.Op != store.OpSet {
		t.Fatalf("Op = %v, want OpSet", log.Value.Op)
	}
	if !bytes.Equal(log.Key, key.Encode()) {
		t.Fatalf("Key mismatch")
	}

	got, err := DecodeValue(log.Value.OpValue)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if !bytes.Equal(got.Bytes, val.Bytes) || got.Cas != val.Cas {
		t.Fatalf("decoded value mismatch: got %+v, want %+v", got, val)
	}
}

func TestNewDelLogHasNoValueBytes(t *testing.T) {
	key := record.NewKVKey(1, 0, []byte("k"))
	log := NewDelLog(key)
	if log.Value.Op != store.OpDel {
		t.Fatalf("Op = %v, want OpDel", log.Value.Op)
	}
	if log.Value.OpValue != nil {
		t.Fatalf("OpValue = %v, want nil for a delete log", log.Value.OpValue)
	}
}

func TestReplLogBatchMsgpRoundtrip(t *testing.T) {
	k1 := record.NewKVKey(0, 0, []byte("a"))
	k2 := record.NewKVKey(0, 0, []byte("b"))

	batch := &ReplLogBatch{
		TxnId: 7,
		Logs: []ReplLog{
			NewSetLog(k1, record.Value{Bytes: []byte("1"), Cas: 1}),
			NewDelLog(k2),
		},
	}

	raw := utils.MsgpEncode(batch)

	var got ReplLogBatch
	if err := utils.MsgpDecode(raw, &got); err != nil {
		t.Fatalf("MsgpDecode: %v", err)
	}

	if got.TxnId != batch.TxnId {
		t.Fatalf("TxnId = %d, want %d", got.TxnId, batch.TxnId)
	}
	if len(got.Logs) != 2 {
		t.Fatalf("Logs length = %d, want 2", len(got.Logs))
	}
	if got.Logs[0].Value.Op != store.OpSet || !bytes.Equal(got.Logs[0].Key, k1.Encode()) {
		t.Fatalf("Logs[0] mismatch: %+v", got.Logs[0])
	}
	if got.Logs[1].Value.Op != store.OpDel || !bytes.Equal(got.Logs[1].Key, k2.Encode()) {
		t.Fatalf("Logs[1] mismatch: %+v", got.Logs[1])
	}
}

func TestReplLogBatchEmptyLogsRoundtrip(t *testing.T) {
	batch := &ReplLogBatch{TxnId: 0, Logs: nil}
	raw := utils.MsgpEncode(batch)

	var got ReplLogBatch
	if err := utils.MsgpDecode(raw, &got); err != nil {
		t.Fatalf("MsgpDecode: %v", err)
	}
	if len(got.Logs) != 0 {
		t.Fatalf("Logs = %v, want empty", got.Logs)
	}
}
