// Package record defines the wire/disk representation of a stored entry:
// the (chunkId, dbId, type, primaryKey, secondaryKey) key tuple and the
// (bytes, ttlMs, cas) value triple every command in internal/command
// mutates.
package record

import (
	"github.com/Allen1211/msgp/msgp"
)

//go:generate msgp

// Type enumerates the record kinds a chunk can hold. Only RTKV is used by
// the command surface implemented here; the others are reserved the way
// the teacher reserves shard-internal metadata prefixes.
type Type uint8

const (
	RTKV Type = iota
	RTMeta
)

// Key is the semantic 5-tuple identifying a stored entry. Two keys compare
// equal iff all five fields match.
type Key struct {
	ChunkId      uint32
	DbId         uint32
	Type         Type
	PrimaryKey   []byte
	SecondaryKey []byte
}

func NewKVKey(chunkId, dbId uint32, primaryKey []byte) Key {
	return Key{ChunkId: chunkId, DbId: dbId, Type: RTKV, PrimaryKey: primaryKey}
}

// Encode produces the flat byte string used as the LevelStore key: two
// encodings are equal iff their (chunkId, dbId, type, pk, sk) tuples are,
// because every field is fixed-width or length-prefixed. Byte order sorts
// by chunkId, dbId and type, then by pk length before pk bytes.
func (k Key) Encode() []byte {
	buf := make([]byte, 0, 4+4+1+2+len(k.PrimaryKey)+2+len(k.SecondaryKey))
	buf = appendUint32(buf, k.ChunkId)
	buf = appendUint32(buf, k.DbId)
	buf = append(buf, byte(k.Type))
	buf = appendUint16(buf, uint16(len(k.PrimaryKey)))
	buf = append(buf, k.PrimaryKey...)
	buf = appendUint16(buf, uint16(len(k.SecondaryKey)))
	buf = append(buf, k.SecondaryKey...)
	return buf
}

func DecodeKey(b []byte) (Key, bool) {
	if len(b) < 4+4+1+2 {
		return Key{}, false
	}
	var k Key
	k.ChunkId, b = readUint32(b)
	k.DbId, b = readUint32(b)
	k.Type = Type(b[0])
	b = b[1:]
	var pkLen uint16
	pkLen, b = readUint16(b)
	if len(b) < int(pkLen)+2 {
		return Key{}, false
	}
	k.PrimaryKey = append([]byte{}, b[:pkLen]...)
	b = b[pkLen:]
	var skLen uint16
	skLen, b = readUint16(b)
	if len(b) < int(skLen) {
		return Key{}, false
	}
	k.SecondaryKey = append([]byte{}, b[:skLen]...)
	return k, true
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func readUint32(b []byte) (uint32, []byte) {
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return v, b[4:]
}

func readUint16(b []byte) (uint16, []byte) {
	v := uint16(b[0])<<8 | uint16(b[1])
	return v, b[2:]
}

// Value is the triple stored for every key: payload bytes, an absolute TTL
// in Unix milliseconds (0 = no expiry), and a monotonic CAS counter.
type Value struct {
	Bytes []byte
	TTLMs int64
	Cas   uint64
}

func (v Value) HasExpired(nowMs int64) bool {
	return v.TTLMs != 0 && nowMs >= v.TTLMs
}

// EncodeMsg implements msgp.Encodable by hand, in the shape the teacher's
// `go:generate msgp` output takes: one field per wire element, written in
// declaration order.
func (v *Value) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteBytes(v.Bytes); err != nil {
		return err
	}
	if err := w.WriteInt64(v.TTLMs); err != nil {
		return err
	}
	return w.WriteUint64(v.Cas)
}

func (v *Value) DecodeMsg(r *msgp.Reader) error {
	b, err := r.ReadBytes(nil)
	if err != nil {
		return err
	}
	v.Bytes = b
	if v.TTLMs, err = r.ReadInt64(); err != nil {
		return err
	}
	v.Cas, err = r.ReadUint64()
	return err
}

func (k *Key) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteUint32(k.ChunkId); err != nil {
		return err
	}
	if err := w.WriteUint32(k.DbId); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(k.Type)); err != nil {
		return err
	}
	if err := w.WriteBytes(k.PrimaryKey); err != nil {
		return err
	}
	return w.WriteBytes(k.SecondaryKey)
}

func (k *Key) DecodeMsg(r *msgp.Reader) error {
	var err error
	if k.ChunkId, err = r.ReadUint32(); err != nil {
		return err
	}
	if k.DbId, err = r.ReadUint32(); err != nil {
		return err
	}
	tp, err := r.ReadUint8()
	if err != nil {
		return err
	}
	k.Type = Type(tp)
	if k.PrimaryKey, err = r.ReadBytes(nil); err != nil {
		return err
	}
	k.SecondaryKey, err = r.ReadBytes(nil)
	return err
}
