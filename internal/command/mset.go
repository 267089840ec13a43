package command

import (
	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// cmdMset sets every key/value pair in argv, one lock-retry-commit cycle
// per pair in left-to-right order. It is deliberately not atomic across
// pairs: a failure partway through (a non-retryable error on pair N)
// leaves pairs before N written and pairs from N on untouched, matching
// the design's resolved open question that MSET atomicity stays deferred.
func cmdMset(s session.Session) ([]byte, error) {
	argv := s.Argv()
	pairs := argv[1:]
	if len(pairs)%2 != 0 {
		return nil, rkvcommon.NewErr(rkvcommon.ParsePkt, "wrong number of arguments for 'mset' command")
	}

	for i := 0; i+1 < len(pairs); i += 2 {
		userKey := pairs[i]
		val := record.Value{Bytes: append([]byte{}, pairs[i+1]...)}
		if _, err := retrySetGeneric(s, "MSET", userKey, FlagNone, val, nil, nil); err != nil {
			return nil, err
		}
	}
	return FmtOK(), nil
}
