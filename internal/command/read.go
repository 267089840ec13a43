package command

import (
	"strconv"

	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

func cmdGet(s session.Session) ([]byte, error) {
	argv := s.Argv()
	st, key, err := resolve(s, argv[1])
	if err != nil {
		return nil, err
	}
	val, err := expireKeyIfNeeded(st, key)
	if err != nil {
		if isAbsent(err) {
			return FmtNull(), nil
		}
		return nil, err
	}
	return FmtBulk(val.Bytes), nil
}

func cmdGetvsn(s session.Session) ([]byte, error) {
	argv := s.Argv()
	st, key, err := resolve(s, argv[1])
	if err != nil {
		return nil, err
	}
	val, err := expireKeyIfNeeded(st, key)
	if err != nil {
		if isAbsent(err) {
			out := FmtMultiBulkLen(2)
			out = append(out, FmtLongLong(-1)...)
			out = append(out, FmtNull()...)
			return out, nil
		}
		return nil, err
	}
	out := FmtMultiBulkLen(2)
	out = append(out, FmtLongLong(int64(val.Cas))...)
	out = append(out, FmtBulk(val.Bytes)...)
	return out, nil
}

func cmdStrlen(s session.Session) ([]byte, error) {
	argv := s.Argv()
	st, key, err := resolve(s, argv[1])
	if err != nil {
		return nil, err
	}
	val, err := expireKeyIfNeeded(st, key)
	if err != nil {
		if isAbsent(err) {
			return FmtZero(), nil
		}
		return nil, err
	}
	return FmtLongLong(int64(len(val.Bytes))), nil
}

func cmdMget(s session.Session) ([]byte, error) {
	argv := s.Argv()
	keys := argv[1:]
	out := FmtMultiBulkLen(len(keys))
	for _, k := range keys {
		st, key, err := resolve(s, k)
		if err != nil {
			return nil, err
		}
		val, err := expireKeyIfNeeded(st, key)
		if err != nil {
			if isAbsent(err) {
				out = append(out, FmtNull()...)
				continue
			}
			return nil, err
		}
		out = append(out, FmtBulk(val.Bytes)...)
	}
	return out, nil
}

// clampRange applies the shared GETRANGE/BITCOUNT/BITPOS offset
// arithmetic: negative offsets wrap from the end, both are clamped into
// [0, len-1], and start>end or an empty string yields the empty range.
func clampRange(start, end, length int64) (s, e int64, empty bool) {
	if length == 0 {
		return 0, 0, true
	}
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if start < 0 {
		start = 0
	}
	if end >= length {
		end = length - 1
	}
	if start > end || start >= length {
		return 0, 0, true
	}
	return start, end, false
}

func cmdGetrange(s session.Session) ([]byte, error) {
	argv := s.Argv()
	st, key, err := resolve(s, argv[1])
	if err != nil {
		return nil, err
	}
	start, err := parseI64(argv[2])
	if err != nil {
		return nil, err
	}
	end, err := parseI64(argv[3])
	if err != nil {
		return nil, err
	}

	val, err := expireKeyIfNeeded(st, key)
	if err != nil {
		if isAbsent(err) {
			return FmtBulk(nil), nil
		}
		return nil, err
	}

	from, to, empty := clampRange(start, end, int64(len(val.Bytes)))
	if empty {
		return FmtBulk(nil), nil
	}
	return FmtBulk(val.Bytes[from : to+1]), nil
}

func parseI64(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, rkvcommon.NewErr(rkvcommon.ParsePkt, "value is not an integer or out of range")
	}
	return n, nil
}
