// Package replrecord defines the binlog wire/disk record shipped from a
// primary store to its replicas: one ReplLog per logical mutation,
// grouped into a ReplLogBatch per committed transaction.
package replrecord

import (
	"github.com/Allen1211/msgp/msgp"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
	"github.com/kvreplica/rkv/pkg/store"
)

//go:generate msgp

// ReplLogValue carries the operation plus its encoded key (and, for SET,
// encoded value) bytes — already-encoded so apply never needs to
// re-derive a record.Key/record.Value from anything but these bytes.
type ReplLogValue struct {
	Op      store.Op
	OpKey   []byte
	OpValue []byte
}

// ReplLog pairs an already-encoded record key (for logging/lookup) with
// the operation it records.
type ReplLog struct {
	Key   []byte
	Value ReplLogValue
}

// ReplLogBatch is a transaction group: every ReplLog sharing one txn id,
// applied atomically by the replica's apply path.
type ReplLogBatch struct {
	TxnId int64
	Logs  []ReplLog
}

// NewSetLog builds the ReplLog recording "key was set to val".
func NewSetLog(key record.Key, val record.Value) ReplLog {
	return ReplLog{
		Key: key.Encode(),
		Value: ReplLogValue{
			Op:      store.OpSet,
			OpKey:   key.Encode(),
			OpValue: encodeValue(val),
		},
	}
}

// NewDelLog builds the ReplLog recording "key was deleted".
func NewDelLog(key record.Key) ReplLog {
	return ReplLog{
		Key: key.Encode(),
		Value: ReplLogValue{
			Op:    store.OpDel,
			OpKey: key.Encode(),
		},
	}
}

func encodeValue(v record.Value) []byte {
	return utils.MsgpEncode(&v)
}

// DecodeValue restores a record.Value from the bytes NewSetLog encoded.
func DecodeValue(b []byte) (record.Value, error) {
	var v record.Value
	err := utils.MsgpDecode(b, &v)
	return v, err
}

func (b *ReplLogValue) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteUint8(uint8(b.Op)); err != nil {
		return err
	}
	if err := w.WriteBytes(b.OpKey); err != nil {
		return err
	}
	return w.WriteBytes(b.OpValue)
}

func (b *ReplLogValue) DecodeMsg(r *msgp.Reader) error {
	op, err := r.ReadUint8()
	if err != nil {
		return err
	}
	b.Op = store.Op(op)
	if b.OpKey, err = r.ReadBytes(nil); err != nil {
		return err
	}
	b.OpValue, err = r.ReadBytes(nil)
	return err
}

func (l *ReplLog) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteBytes(l.Key); err != nil {
		return err
	}
	return l.Value.EncodeMsg(w)
}

func (l *ReplLog) DecodeMsg(r *msgp.Reader) error {
	var err error
	if l.Key, err = r.ReadBytes(nil); err != nil {
		return err
	}
	return l.Value.DecodeMsg(r)
}

func (b *ReplLogBatch) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteInt64(b.TxnId); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(len(b.Logs))); err != nil {
		return err
	}
	for i := range b.Logs {
		if err := b.Logs[i].EncodeMsg(w); err != nil {
			return err
		}
	}
	return nil
}

func (b *ReplLogBatch) DecodeMsg(r *msgp.Reader) error {
	var err error
	if b.TxnId, err = r.ReadInt64(); err != nil {
		return err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	b.Logs = make([]ReplLog, n)
	for i := range b.Logs {
		if err := b.Logs[i].DecodeMsg(r); err != nil {
			return err
		}
	}
	return nil
}
