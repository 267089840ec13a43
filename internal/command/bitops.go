package command

import (
	"math/bits"
	"strings"

	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

func popcount(b []byte) int64 {
	var n int64
	for _, c := range b {
		n += int64(bits.OnesCount8(c))
	}
	return n
}

func cmdBitcount(s session.Session) ([]byte, error) {
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

	data := val.Bytes
	if len(argv) >= 4 {
		start, err := parseI64(argv[2])
		if err != nil {
			return nil, err
		}
		end, err := parseI64(argv[3])
		if err != nil {
			return nil, err
		}
		from, to, empty := clampRange(start, end, int64(len(data)))
		if empty {
			return FmtZero(), nil
		}
		data = data[from : to+1]
	}
	return FmtLongLong(popcount(data)), nil
}

// cmdBitpos scans data for the first bit equal to want within an optional
// byte range. The 0xFF-range special case: when searching for a 0 bit and
// no end was given, a string made entirely of 0xFF bytes (so no 0 bit
// exists in the searched range) returns the bit position one past the last
// searched byte rather than -1, matching the convention that an implicit
// trailing zero bit follows any finite string.
func cmdBitpos(s session.Session) ([]byte, error) {
	argv := s.Argv()
	want, err := parseI64(argv[2])
	if err != nil {
		return nil, err
	}
	if want != 0 && want != 1 {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "the bit argument must be 1 or 0")
	}

	st, key, err := resolve(s, argv[1])
	if err != nil {
		return nil, err
	}
	val, err := expireKeyIfNeeded(st, key)
	if err != nil {
		if isAbsent(err) {
			if want == 0 {
				return FmtLongLong(0), nil
			}
			return FmtLongLong(-1), nil
		}
		return nil, err
	}

	data := val.Bytes
	endGiven := false
	from, to := int64(0), int64(len(data)-1)
	if len(argv) >= 4 {
		start, err := parseI64(argv[3])
		if err != nil {
			return nil, err
		}
		end := int64(len(data) - 1)
		if len(argv) >= 5 {
			endGiven = true
			end, err = parseI64(argv[4])
			if err != nil {
				return nil, err
			}
		}
		var empty bool
		from, to, empty = clampRange(start, end, int64(len(data)))
		if empty {
			return FmtLongLong(-1), nil
		}
	}

	for byteIdx := from; byteIdx <= to; byteIdx++ {
		b := data[byteIdx]
		for bit := 0; bit < 8; bit++ {
			v := (b >> (7 - uint(bit))) & 1
			if int64(v) == want {
				return FmtLongLong(byteIdx*8 + int64(bit)), nil
			}
		}
	}

	if want == 0 && !endGiven {
		return FmtLongLong((to + 1) * 8), nil
	}
	return FmtLongLong(-1), nil
}

func cmdSetbit(s session.Session) ([]byte, error) {
	argv := s.Argv()
	offset, err := parseI64(argv[2])
	if err != nil || offset < 0 {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "bit offset is not an integer or out of range")
	}
	bitVal, err := parseI64(argv[3])
	if err != nil || (bitVal != 0 && bitVal != 1) {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "bit is not an integer or out of range")
	}

	st, key, unlock, err := lockKey(s, argv[1])
	if err != nil {
		return nil, err
	}
	defer unlock()

	byteIdx := offset / 8
	bitIdx := uint(7 - offset%8)

	transform := func(old *record.Value) (record.Value, error) {
		var data []byte
		if old != nil {
			data = append([]byte{}, old.Bytes...)
		}
		if int64(len(data)) <= byteIdx {
			if byteIdx+1 > rkvcommon.MaxStringSize {
				return record.Value{}, rkvcommon.NewErr(rkvcommon.Overflow, "string exceeds maximum allowed size")
			}
			grown := make([]byte, byteIdx+1)
			copy(grown, data)
			data = grown
		}
		if bitVal == 1 {
			data[byteIdx] |= 1 << bitIdx
		} else {
			data[byteIdx] &^= 1 << bitIdx
		}
		ttl := int64(0)
		if old != nil {
			ttl = old.TTLMs
		}
		return record.Value{Bytes: data, TTLMs: ttl}, nil
	}

	formatReply := func(newVal, oldVal *record.Value) []byte {
		if oldVal == nil {
			return FmtZero()
		}
		old := oldVal.Bytes
		if int64(len(old)) <= byteIdx {
			return FmtZero()
		}
		if (old[byteIdx]>>bitIdx)&1 == 1 {
			return FmtOne()
		}
		return FmtZero()
	}

	return RMW("SETBIT", st, key, transform, formatReply)
}

type bitopKind int

const (
	bitopAnd bitopKind = iota
	bitopOr
	bitopXor
	bitopNot
)

// cmdBitop folds srcKeys into destKey with the chosen boolean operator.
// Sources that are absent or expired contribute an all-zero byte string of
// length 0 (i.e. they simply don't extend the result), per the design's
// resolved open question; the result is padded to the longest source.
func cmdBitop(s session.Session) ([]byte, error) {
	argv := s.Argv()
	opName := strings.ToUpper(string(argv[1]))
	destKey := argv[2]
	srcKeys := argv[3:]

	var kind bitopKind
	switch opName {
	case "AND":
		kind = bitopAnd
	case "OR":
		kind = bitopOr
	case "XOR":
		kind = bitopXor
	case "NOT":
		kind = bitopNot
		if len(srcKeys) != 1 {
			return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "BITOP NOT must be called with a single source key")
		}
	default:
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "syntax error")
	}

	srcs := make([][]byte, len(srcKeys))
	maxLen := 0
	for i, k := range srcKeys {
		st, key, err := resolve(s, k)
		if err != nil {
			return nil, err
		}
		val, err := expireKeyIfNeeded(st, key)
		if err != nil {
			if isAbsent(err) {
				srcs[i] = nil
				continue
			}
			return nil, err
		}
		srcs[i] = val.Bytes
		if len(val.Bytes) > maxLen {
			maxLen = len(val.Bytes)
		}
	}

	if maxLen == 0 {
		return retryDeleteGeneric(s, "BITOP", destKey)
	}

	result := make([]byte, maxLen)
	switch kind {
	case bitopNot:
		for i := 0; i < maxLen; i++ {
			var b byte
			if i < len(srcs[0]) {
				b = srcs[0][i]
			}
			result[i] = ^b
		}
	case bitopAnd:
		for i := range result {
			result[i] = 0xFF
		}
		for _, src := range srcs {
			for i := 0; i < maxLen; i++ {
				var b byte
				if i < len(src) {
					b = src[i]
				}
				result[i] &= b
			}
		}
	case bitopOr:
		for _, src := range srcs {
			for i := 0; i < len(src); i++ {
				result[i] |= src[i]
			}
		}
	case bitopXor:
		for _, src := range srcs {
			for i := 0; i < len(src); i++ {
				result[i] ^= src[i]
			}
		}
	}

	val := record.Value{Bytes: result}
	return retrySetGeneric(s, "BITOP", destKey, FlagNone, val, FmtLongLong(int64(len(result))), nil)
}
