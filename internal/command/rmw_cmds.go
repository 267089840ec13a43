package command

import (
	"strconv"

	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

func cmdAppend(s session.Session) ([]byte, error) {
	argv := s.Argv()
	suffix := argv[2]

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		var data []byte
		ttl := int64(0)
		if old != nil {
			data = old.Bytes
			ttl = old.TTLMs
		}
		if int64(len(data)+len(suffix)) > rkvcommon.MaxStringSize {
			return record.Value{}, rkvcommon.NewErr(rkvcommon.Overflow, "string exceeds maximum allowed size")
		}
		out := make([]byte, 0, len(data)+len(suffix))
		out = append(out, data...)
		out = append(out, suffix...)
		return record.Value{Bytes: out, TTLMs: ttl}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		return FmtLongLong(int64(len(newVal.Bytes)))
	}

	return RMW("APPEND", st, key, transform, formatReply)
}

func cmdSetrange(s session.Session) ([]byte, error) {
	argv := s.Argv()
	offset, err := parseI64(argv[2])
	if err != nil || offset < 0 {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "offset is out of range")
	}
	patch := argv[3]

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		var data []byte
		ttl := int64(0)
		if old != nil {
			data = append([]byte{}, old.Bytes...)
			ttl = old.TTLMs
		}
		if len(patch) == 0 {
			if data == nil {
				data = []byte{}
			}
			return record.Value{Bytes: data, TTLMs: ttl}, nil
		}
		end := offset + int64(len(patch))
		if end > rkvcommon.MaxStringSize {
			return record.Value{}, rkvcommon.NewErr(rkvcommon.Overflow, "string exceeds maximum allowed size")
		}
		if int64(len(data)) < end {
			grown := make([]byte, end)
			copy(grown, data)
			data = grown
		}
		copy(data[offset:end], patch)
		return record.Value{Bytes: data, TTLMs: ttl}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		return FmtLongLong(int64(len(newVal.Bytes)))
	}

	return RMW("SETRANGE", st, key, transform, formatReply)
}

func cmdGetset(s session.Session) ([]byte, error) {
	argv := s.Argv()
	newBytes := append([]byte{}, argv[2]...)

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		return record.Value{Bytes: newBytes}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		if oldVal == nil {
			return FmtNull()
		}
		return FmtBulk(oldVal.Bytes)
	}

	return RMW("GETSET", st, key, transform, formatReply)
}

// cmdCas implements compare-and-swap: on a missing key, the write
// unconditionally succeeds and adopts the caller's expected version as the
// new cas; otherwise the write only applies if the stored CAS counter
// matches the caller-supplied expected version, aborting with CAS_MISMATCH
// rather than retrying — this is a domain rejection, not a write-write
// conflict.
func cmdCas(s session.Session) ([]byte, error) {
	argv := s.Argv()
	expectCas, err := strconv.ParseUint(string(argv[2]), 10, 64)
	if err != nil {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
	}
	newBytes := append([]byte{}, argv[3]...)

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		if old == nil {
			return record.Value{Bytes: newBytes, Cas: expectCas}, nil
		}
		if old.Cas != expectCas {
			return record.Value{}, rkvcommon.NewErr(rkvcommon.CasMismatch, "cas unmatch")
		}
		return record.Value{Bytes: newBytes, TTLMs: old.TTLMs, Cas: old.Cas + 1}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		return FmtOK()
	}

	return RMW("CAS", st, key, transform, formatReply)
}

func parseIntValue(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
	}
	return n, nil
}

// incrByGeneric implements the shared INCR/DECR/INCRBY/DECRBY transform: a
// missing key starts from 0, a non-integer stored value is a decode error,
// and the add overflowing int64 is OVERFLOW rather than silent wraparound.
func incrByGeneric(s session.Session, name string, userKey []byte, delta int64) ([]byte, error) {
	st, key, unlock, err := lockKey(s, userKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		var cur int64
		ttl := int64(0)
		if old != nil {
			ttl = old.TTLMs
			cur, err = parseIntValue(old.Bytes)
			if err != nil {
				return record.Value{}, rkvcommon.NewErr(rkvcommon.Decode, "value is not an integer or out of range")
			}
		}
		sum := cur + delta
		if (delta > 0 && sum < cur) || (delta < 0 && sum > cur) {
			return record.Value{}, rkvcommon.NewErr(rkvcommon.Overflow, "increment or decrement would overflow")
		}
		return record.Value{Bytes: []byte(strconv.FormatInt(sum, 10)), TTLMs: ttl}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		n, _ := parseIntValue(newVal.Bytes)
		return FmtLongLong(n)
	}

	return RMW(name, st, key, transform, formatReply)
}

func cmdIncr(s session.Session) ([]byte, error) {
	argv := s.Argv()
	return incrByGeneric(s, "INCR", argv[1], 1)
}

func cmdDecr(s session.Session) ([]byte, error) {
	argv := s.Argv()
	return incrByGeneric(s, "DECR", argv[1], -1)
}

func cmdIncrby(s session.Session) ([]byte, error) {
	argv := s.Argv()
	delta, err := parseIntValue(argv[2])
	if err != nil {
		return nil, err
	}
	return incrByGeneric(s, "INCRBY", argv[1], delta)
}

func cmdDecrby(s session.Session) ([]byte, error) {
	argv := s.Argv()
	delta, err := parseIntValue(argv[2])
	if err != nil {
		return nil, err
	}
	return incrByGeneric(s, "DECRBY", argv[1], -delta)
}

func cmdIncrbyfloat(s session.Session) ([]byte, error) {
	argv := s.Argv()
	delta, err := strconv.ParseFloat(string(argv[2]), 64)
	if err != nil {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not a valid float")
	}

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	transform := func(old *record.Value) (record.Value, error) {
		var cur float64
		ttl := int64(0)
		if old != nil {
			ttl = old.TTLMs
			cur, err = strconv.ParseFloat(string(old.Bytes), 64)
			if err != nil {
				return record.Value{}, rkvcommon.NewErr(rkvcommon.Decode, "value is not a valid float")
			}
		}
		sum := cur + delta
		out := strconv.FormatFloat(sum, 'f', -1, 64)
		return record.Value{Bytes: []byte(out), TTLMs: ttl}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		return FmtBulk(newVal.Bytes)
	}

	return RMW("INCRBYFLOAT", st, key, transform, formatReply)
}
