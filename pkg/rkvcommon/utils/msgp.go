package utils

import (
	"bytes"

	"github.com/Allen1211/msgp/msgp"
)

// MsgpEncode encodes e and panics on failure: every Encodable this
// repository defines is a plain struct of bytes/ints, so an encode error
// here means a programming bug, not bad input.
func MsgpEncode(e msgp.Encodable) []byte {
	buf := new(bytes.Buffer)
	if err := msgp.Encode(buf, e); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MsgpDecode decodes raw into d and returns an error instead of panicking:
// unlike internal Raft state, stored record bytes can be corrupted by
// something outside this process's control, and callers map that to the
// Decode error kind rather than crashing the server.
func MsgpDecode(raw []byte, d msgp.Decodable) error {
	return msgp.Decode(bytes.NewReader(raw), d)
}
