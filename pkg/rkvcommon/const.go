package rkvcommon

// TxnIdUninited marks "store never initialized" — invalid as a resume
// point. MaxValidTxnId+1 marks "binlog resume position unknown" and is
// used as the replState=CONNECT sentinel while a store is between a
// rollback and its next full-sync attempt.
const (
	TxnIdUninited int64 = -1
	MaxValidTxnId int64 = 1<<63 - 2
)

// MaxStringSize is the ceiling SETRANGE/SETBIT enforce on the resulting
// value length.
const MaxStringSize = 512 * 1024 * 1024
