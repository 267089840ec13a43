package command

import (
	"testing"

	"github.com/kvreplica/rkv/internal/segment"
	"github.com/kvreplica/rkv/internal/session"
)

func newTestSession() session.Session {
	st := newFakeStore()
	seg := segment.NewSingleStoreManager(16, st)
	return session.New(seg, &session.Ctx{ConnId: 1, Peer: "test"})
}

func run(t *testing.T, s session.Session, argv ...string) []byte {
	t.Helper()
	Init()
	name := argv[0]
	cmd := Lookup(name)
	if cmd == nil {
		t.Fatalf("no command registered for %q", name)
	}
	bargv := make([][]byte, len(argv))
	for i, a := range argv {
		bargv[i] = []byte(a)
	}
	s.SetArgv(bargv)
	reply, err := cmd.Run(s)
	if err != nil {
		t.Fatalf("%v: %v", argv, err)
	}
	return reply
}

func runErr(t *testing.T, s session.Session, argv ...string) error {
	t.Helper()
	Init()
	cmd := Lookup(argv[0])
	if cmd == nil {
		t.Fatalf("no command registered for %q", argv[0])
	}
	bargv := make([][]byte, len(argv))
	for i, a := range argv {
		bargv[i] = []byte(a)
	}
	s.SetArgv(bargv)
	_, err := cmd.Run(s)
	return err
}

func TestSetGetRoundtrip(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "SET", "foo", "bar"); string(reply) != "+OK\r\n" {
		t.Fatalf("SET reply = %q", reply)
	}
	if reply := run(t, s, "GET", "foo"); string(reply) != "$3\r\nbar\r\n" {
		t.Fatalf("GET reply = %q", reply)
	}
}

func TestSetNXRespectsExisting(t *testing.T) {
	s := newTestSession()

	run(t, s, "SET", "k", "v1")
	if reply := run(t, s, "SETNX", "k", "v2"); string(reply) != ":0\r\n" {
		t.Fatalf("SETNX on existing key = %q, want :0", reply)
	}
	if reply := run(t, s, "GET", "k"); string(reply) != "$2\r\nv1\r\n" {
		t.Fatalf("value clobbered by SETNX: %q", reply)
	}

	if reply := run(t, s, "SETNX", "k2", "v3"); string(reply) != ":1\r\n" {
		t.Fatalf("SETNX on absent key = %q, want :1", reply)
	}
}

func TestSetXXRequiresExisting(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "SET", "k", "v", "XX"); string(reply) != "$-1\r\n" {
		t.Fatalf("SET XX on absent key = %q, want nil", reply)
	}
	run(t, s, "SET", "k", "v1")
	if reply := run(t, s, "SET", "k", "v2", "XX"); string(reply) != "+OK\r\n" {
		t.Fatalf("SET XX on existing key = %q, want OK", reply)
	}
}

func TestGetOnMissingKey(t *testing.T) {
	s := newTestSession()
	if reply := run(t, s, "GET", "nope"); string(reply) != "$-1\r\n" {
		t.Fatalf("GET on missing key = %q, want nil", reply)
	}
}

func TestAppendGrowsString(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "APPEND", "k", "hello"); string(reply) != ":5\r\n" {
		t.Fatalf("first APPEND reply = %q", reply)
	}
	if reply := run(t, s, "APPEND", "k", " world"); string(reply) != ":11\r\n" {
		t.Fatalf("second APPEND reply = %q", reply)
	}
	if reply := run(t, s, "GET", "k"); string(reply) != "$11\r\nhello world\r\n" {
		t.Fatalf("GET after APPEND = %q", reply)
	}
}

func TestIncrDecr(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "INCR", "n"); string(reply) != ":1\r\n" {
		t.Fatalf("INCR on absent key = %q, want 1", reply)
	}
	if reply := run(t, s, "INCRBY", "n", "9"); string(reply) != ":10\r\n" {
		t.Fatalf("INCRBY = %q, want 10", reply)
	}
	if reply := run(t, s, "DECR", "n"); string(reply) != ":9\r\n" {
		t.Fatalf("DECR = %q, want 9", reply)
	}
	if reply := run(t, s, "DECRBY", "n", "4"); string(reply) != ":5\r\n" {
		t.Fatalf("DECRBY = %q, want 5", reply)
	}
}

func TestIncrOnNonIntegerIsDecodeError(t *testing.T) {
	s := newTestSession()
	run(t, s, "SET", "n", "not-a-number")
	if err := runErr(t, s, "INCR", "n"); err == nil {
		t.Fatalf("INCR on non-integer value: want error, got nil")
	}
}

func TestCasMismatchAborts(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "CAS", "k", "5", "v1"); string(reply) != "+OK\r\n" {
		t.Fatalf("first CAS on missing key (expect 5) = %q, want +OK", reply)
	}
	if reply := run(t, s, "GETVSN", "k"); string(reply) != "*2\r\n:5\r\n$2\r\nv1\r\n" {
		t.Fatalf("GETVSN after first CAS = %q, want cas 5", reply)
	}
	if err := runErr(t, s, "CAS", "k", "0", "v2"); err == nil {
		t.Fatalf("CAS with stale expected version: want CAS_MISMATCH error, got nil")
	}
	if reply := run(t, s, "CAS", "k", "5", "v2"); string(reply) != "+OK\r\n" {
		t.Fatalf("CAS with correct expected version = %q, want +OK", reply)
	}
	if reply := run(t, s, "GETVSN", "k"); string(reply) != "*2\r\n:6\r\n$2\r\nv2\r\n" {
		t.Fatalf("GETVSN after second CAS = %q, want cas 6", reply)
	}
}

func TestCasOnMissingKeyIgnoresExpected(t *testing.T) {
	s := newTestSession()

	if reply := run(t, s, "CAS", "other", "0", "v"); string(reply) != "+OK\r\n" {
		t.Fatalf("CAS on missing key with expect 0 = %q, want +OK", reply)
	}
	if reply := run(t, s, "GETVSN", "other"); string(reply) != "*2\r\n:0\r\n$1\r\nv\r\n" {
		t.Fatalf("GETVSN after CAS with expect 0 = %q, want cas 0", reply)
	}
	if reply := run(t, s, "CAS", "another", "7", "v"); string(reply) != "+OK\r\n" {
		t.Fatalf("CAS on missing key with expect 7 = %q, want +OK", reply)
	}
	if reply := run(t, s, "GETVSN", "another"); string(reply) != "*2\r\n:7\r\n$1\r\nv\r\n" {
		t.Fatalf("GETVSN after CAS with expect 7 = %q, want cas 7", reply)
	}
}

func TestSetbitAndBitcount(t *testing.T) {
	s := newTestSession()

	run(t, s, "SETBIT", "k", "7", "1")
	if reply := run(t, s, "GET", "k"); string(reply) != "$1\r\n\x01\r\n" {
		t.Fatalf("SETBIT result = %q", reply)
	}
	if reply := run(t, s, "BITCOUNT", "k"); string(reply) != ":1\r\n" {
		t.Fatalf("BITCOUNT = %q, want 1", reply)
	}
}

func TestBitopAnd(t *testing.T) {
	s := newTestSession()

	run(t, s, "SET", "a", "\xff\x00")
	run(t, s, "SET", "b", "\x0f\x0f")
	if reply := run(t, s, "BITOP", "AND", "dest", "a", "b"); string(reply) != ":2\r\n" {
		t.Fatalf("BITOP AND reply = %q, want length 2", reply)
	}
	if reply := run(t, s, "GET", "dest"); string(reply) != "$2\r\n\x0f\x00\r\n" {
		t.Fatalf("BITOP AND result = %q", reply)
	}
}

func TestBitopTreatsAbsentSourceAsEmpty(t *testing.T) {
	s := newTestSession()

	run(t, s, "SET", "a", "\xff\xff")
	if reply := run(t, s, "BITOP", "OR", "dest", "a", "missing"); string(reply) != ":2\r\n" {
		t.Fatalf("BITOP OR with one absent source = %q, want length 2", reply)
	}
	if reply := run(t, s, "GET", "dest"); string(reply) != "$2\r\n\xff\xff\r\n" {
		t.Fatalf("BITOP OR result = %q", reply)
	}
}

func TestBitopWithAllSourcesAbsentDeletesDest(t *testing.T) {
	s := newTestSession()

	run(t, s, "SET", "dest", "stale")
	if reply := run(t, s, "BITOP", "OR", "dest", "missing1", "missing2"); string(reply) != ":0\r\n" {
		t.Fatalf("BITOP OR with every source absent = %q, want 0", reply)
	}
	if reply := run(t, s, "GET", "dest"); string(reply) != "$-1\r\n" {
		t.Fatalf("dest after all-sources-absent BITOP = %q, want deleted", reply)
	}
}

func TestGetrangeNegativeOffsets(t *testing.T) {
	s := newTestSession()
	run(t, s, "SET", "k", "This is a string")
	if reply := run(t, s, "GETRANGE", "k", "-3", "-1"); string(reply) != "$3\r\ning\r\n" {
		t.Fatalf("GETRANGE -3 -1 = %q, want ing", reply)
	}
}

func TestMsetSetsEveryPair(t *testing.T) {
	s := newTestSession()
	run(t, s, "MSET", "k1", "v1", "k2", "v2")
	if reply := run(t, s, "GET", "k1"); string(reply) != "$2\r\nv1\r\n" {
		t.Fatalf("k1 = %q", reply)
	}
	if reply := run(t, s, "GET", "k2"); string(reply) != "$2\r\nv2\r\n" {
		t.Fatalf("k2 = %q", reply)
	}
}

func TestUnsupportedCommands(t *testing.T) {
	s := newTestSession()
	run(t, s, "SET", "k", "v")
	for _, argv := range [][]string{
		{"MOVE", "k", "1"},
		{"RENAME", "k", "k2"},
		{"RENAMENX", "k", "k2"},
	} {
		if err := runErr(t, s, argv...); err == nil {
			t.Fatalf("%v: want error, got nil", argv)
		}
	}
}
