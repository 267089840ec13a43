// Package session models the per-connection handle the command layer
// reads arguments from. The wire-protocol parser and connection plumbing
// are named as external collaborators by the design; this package is the
// minimal seam the command layer needs from them. The RESP reader/writer
// that drives it lives in internal/netw.
package session

import (
	"github.com/kvreplica/rkv/internal/segment"
)

// Ctx carries per-connection identity: peer address and a monotonic
// connection id, used only for logging/diagnostics.
type Ctx struct {
	ConnId int64
	Peer   string
}

// Session is the per-connection handle the command layer reads arguments
// from. The core reads arguments by index; it never re-parses the wire
// protocol itself.
type Session interface {
	// Argv returns the parsed argument vector for the command currently
	// being executed; Argv()[0] is the command name.
	Argv() [][]byte

	DbId() uint32

	Segment() *segment.Manager

	Ctx() *Ctx

	// SetArgv/SetDbId are called once per command by the connection's read
	// loop before dispatch. They are part of the interface (rather than a
	// concrete-type-only detail) because this package's implementation,
	// driven by internal/netw's RESP loop, is the only Session this repository has — a real
	// deployment would keep the command-facing surface above (Argv/DbId/
	// Segment/Ctx) and let the wire layer own mutation through its own
	// concrete type instead.
	SetArgv(argv [][]byte)
	SetDbId(dbId uint32)
}

type session struct {
	argv    [][]byte
	dbId    uint32
	segment *segment.Manager
	ctx     *Ctx
}

func New(segMgr *segment.Manager, ctx *Ctx) Session {
	return &session{segment: segMgr, ctx: ctx}
}

func (s *session) Argv() [][]byte            { return s.argv }
func (s *session) DbId() uint32              { return s.dbId }
func (s *session) Segment() *segment.Manager { return s.segment }
func (s *session) Ctx() *Ctx                  { return s.ctx }

func (s *session) SetArgv(argv [][]byte) { s.argv = argv }
func (s *session) SetDbId(dbId uint32)   { s.dbId = dbId }
