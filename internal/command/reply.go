package command

import (
	"strconv"

	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// Reply helpers render RESP byte strings. Every command handler returns
// one of these rather than building wire bytes inline.

func FmtOK() []byte { return []byte("+OK\r\n") }

func FmtNull() []byte { return []byte("$-1\r\n") }

func FmtNullArray() []byte { return []byte("*-1\r\n") }

func FmtOne() []byte { return []byte(":1\r\n") }

func FmtZero() []byte { return []byte(":0\r\n") }

func FmtLongLong(n int64) []byte {
	return []byte(":" + strconv.FormatInt(n, 10) + "\r\n")
}

func FmtBulk(s []byte) []byte {
	out := make([]byte, 0, len(s)+16)
	out = append(out, '$')
	out = append(out, []byte(strconv.Itoa(len(s)))...)
	out = append(out, '\r', '\n')
	out = append(out, s...)
	out = append(out, '\r', '\n')
	return out
}

func FmtMultiBulkLen(n int) []byte {
	return []byte("*" + strconv.Itoa(n) + "\r\n")
}

func FmtSimple(s string) []byte {
	return []byte("+" + s + "\r\n")
}

// FmtError renders the client-visible "-ERR ..." reply for the error
// kinds the design says cross the wire: DECODE, OVERFLOW, CAS, PARSE*.
// NOTFOUND/EXPIRED never reach here — commands map those to their
// domain-specific empty reply before returning.
func FmtError(kind rkvcommon.Err, msg string) []byte {
	prefix := "ERR"
	switch kind {
	case rkvcommon.CasMismatch:
		prefix = "ERR"
	case rkvcommon.Overflow:
		prefix = "ERR"
	case rkvcommon.Internal:
		prefix = "ERR"
	}
	return []byte("-" + prefix + " " + msg + "\r\n")
}

func FmtErrFromErr(err error) []byte {
	ke, ok := err.(*rkvcommon.KindErr)
	if !ok {
		return FmtError(rkvcommon.Internal, err.Error())
	}
	return FmtError(ke.Kind, ke.Msg)
}
