package command

import (
	"strconv"
	"strings"

	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// parseSetOpts parses the trailing [NX|XX] [EX seconds|PX ms] options SET
// accepts, case-insensitively. It returns the setGeneric flag to apply and
// the relative expiry in ms (0 = no expiry); the caller converts it to an
// absolute TTL.
func parseSetOpts(argv [][]byte) (Flag, int64, error) {
	flag := FlagNone
	hasEx, hasPx := false, false
	expireMs := int64(0)

	i := 3
	for i < len(argv) {
		opt := strings.ToUpper(string(argv[i]))
		switch opt {
		case "NX":
			flag = FlagNX
			i++
		case "XX":
			flag = FlagXX
			i++
		case "EX", "PX":
			if i+1 >= len(argv) {
				return 0, 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "syntax error")
			}
			n, err := strconv.ParseInt(string(argv[i+1]), 10, 64)
			if err != nil {
				return 0, 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
			}
			if hasEx || hasPx {
				return 0, 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "syntax error")
			}
			if opt == "EX" {
				hasEx = true
				expireMs = n * 1000
			} else {
				hasPx = true
				expireMs = n
			}
			i += 2
		default:
			return 0, 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "syntax error")
		}
	}

	if flag == FlagNX && (hasEx || hasPx) {
		flag = FlagNXEX
	}
	return flag, expireMs, nil
}

func absoluteTTL(expireMs int64) int64 {
	if expireMs == 0 {
		return 0
	}
	return nowMs() + expireMs
}

// retrySetGeneric runs setGeneric under the standard bounded optimistic
// retry loop: every attempt, including the last, reopens the transaction
// after a retryable commit failure (the corrected pattern per the design's
// resolved open question).
func retrySetGeneric(s session.Session, name string, userKey []byte, flag Flag, val record.Value, okReply, abortReply []byte) ([]byte, error) {
	st, key, unlock, err := lockKey(s, userKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < RetryCount; attempt++ {
		txn, err := st.CreateTransaction()
		if err != nil {
			return nil, err
		}
		reply, err := setGeneric(txn, flag, key, val, okReply, abortReply)
		txn.Rollback()
		if err == nil {
			return reply, nil
		}
		if !rkvcommon.IsRetryable(err) {
			return nil, err
		}
		metrics.CommitRetriesTotal.WithLabelValues(name).Inc()
		lastErr = err
	}
	return nil, lastErr
}

func cmdSet(s session.Session) ([]byte, error) {
	argv := s.Argv()
	if len(argv) < 3 {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "wrong number of arguments for 'set' command")
	}
	flag, expireMs, err := parseSetOpts(argv)
	if err != nil {
		return nil, err
	}
	val := record.Value{Bytes: append([]byte{}, argv[2]...), TTLMs: absoluteTTL(expireMs)}
	return retrySetGeneric(s, "SET", argv[1], flag, val, nil, nil)
}

func cmdSetex(s session.Session) ([]byte, error) {
	argv := s.Argv()
	secs, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
	}
	val := record.Value{Bytes: append([]byte{}, argv[3]...), TTLMs: absoluteTTL(secs * 1000)}
	return retrySetGeneric(s, "SETEX", argv[1], FlagNone, val, nil, nil)
}

func cmdPsetex(s session.Session) ([]byte, error) {
	argv := s.Argv()
	ms, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
	}
	val := record.Value{Bytes: append([]byte{}, argv[3]...), TTLMs: absoluteTTL(ms)}
	return retrySetGeneric(s, "PSETEX", argv[1], FlagNone, val, nil, nil)
}

func cmdSetnx(s session.Session) ([]byte, error) {
	argv := s.Argv()
	val := record.Value{Bytes: append([]byte{}, argv[2]...)}
	return retrySetGeneric(s, "SETNX", argv[1], FlagNX, val, FmtOne(), FmtZero())
}
