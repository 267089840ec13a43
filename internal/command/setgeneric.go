package command

import (
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// Flag selects the conditional-existence behavior setGeneric applies
// before writing. At most one is conceptually meaningful per call.
type Flag uint8

const (
	FlagNone Flag = iota
	FlagNX
	FlagXX
	FlagNXEX // NX semantics plus "a TTL is present" contract enforced by the caller
)

// setGeneric is the conditional write every mutating command funnels
// through. txn is already open; the caller owns opening/committing/
// retrying it. okReply/abortReply default to OK/nil when nil.
func setGeneric(txn store.Transaction, flag Flag, key record.Key, val record.Value, okReply, abortReply []byte) ([]byte, error) {
	if okReply == nil {
		okReply = FmtOK()
	}
	if abortReply == nil {
		abortReply = FmtNull()
	}

	if flag != FlagNone {
		old, err := txn.GetKV(key)
		var exists, needExpire bool
		switch {
		case err == nil:
			exists = old.TTLMs == 0 || nowMs() < old.TTLMs
			needExpire = !exists
		case rkvcommon.KindOf(err) == rkvcommon.NotFound:
			exists = false
		default:
			return nil, err
		}

		abort := (flag == FlagNX && exists) ||
			(flag == FlagXX && !exists) ||
			(flag == FlagNXEX && exists)

		if abort {
			if needExpire {
				if err := txn.DelKV(key, true); err != nil {
					return nil, err
				}
				if err := txn.Commit(); err != nil {
					return nil, err
				}
			}
			return abortReply, nil
		}
	}

	if err := txn.SetKV(key, val, true); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return okReply, nil
}
