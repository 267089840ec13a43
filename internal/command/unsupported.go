package command

import (
	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// cmdUnsupported answers MOVE/RENAME/RENAMENX, which the segment-routed
// key space cannot support: a key's owning store is a pure hash of its
// name, so there is no slot to move a key into or out of, and renaming
// would require an atomic cross-store transaction the store layer does
// not provide.
func cmdUnsupported(s session.Session) ([]byte, error) {
	return nil, rkvcommon.NewErr(rkvcommon.Internal, "not support")
}
