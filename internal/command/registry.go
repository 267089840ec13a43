// Package command implements the Redis string-command surface over the
// transactional, sharded, key-locked store: the setGeneric conditional
// write, the generic read-modify-write engine, and every individual
// command's pure transform.
package command

import (
	"github.com/kvreplica/rkv/internal/session"
)

// Meta declares the four integer metadata values Redis-style clients use
// to plan key extraction without running the command: arity (negative
// means "at least |arity|"), firstKey, lastKey (negative counts from argv
// end), and keyStep (stride between key positions).
type Meta struct {
	Name     string
	Arity    int
	FirstKey int
	LastKey  int
	KeyStep  int
}

// Handler runs one command against a session and returns the RESP reply
// bytes.
type Handler func(s session.Session) ([]byte, error)

// Command pairs a command's metadata with its handler, matching the
// interface shape recommended in place of the source's single-inheritance
// command hierarchy: Command{ Metadata(); Run(session) }.
type Command struct {
	Meta Meta
	Run  Handler
}

// RetryCount bounds every optimistic-retry loop in this package: the
// SET/MSET retry loop and the RMW engine's commit-retry loop both read
// this value rather than hardcoding a build-time constant.
var RetryCount = 3

var registry = map[string]*Command{}

// register adds cmd to the process-wide table. Called only from Init, at
// process startup — commands never self-register via package-level
// init(), so the table's contents are fully determined by one call site.
func register(cmd *Command) {
	registry[cmd.Meta.Name] = cmd
}

// Lookup returns the command registered under name (case as given; callers
// uppercase first), or nil if unknown.
func Lookup(name string) *Command {
	return registry[name]
}

// Init populates the registry. Safe to call more than once; idempotent.
func Init() {
	register(&Command{Meta: Meta{"SET", -3, 1, 1, 1}, Run: cmdSet})
	register(&Command{Meta: Meta{"SETEX", 4, 1, 1, 1}, Run: cmdSetex})
	register(&Command{Meta: Meta{"PSETEX", 4, 1, 1, 1}, Run: cmdPsetex})
	register(&Command{Meta: Meta{"SETNX", 3, 1, 1, 1}, Run: cmdSetnx})

	register(&Command{Meta: Meta{"GET", 2, 1, 1, 1}, Run: cmdGet})
	register(&Command{Meta: Meta{"GETSET", 3, 1, 1, 1}, Run: cmdGetset})
	register(&Command{Meta: Meta{"GETVSN", 2, 1, 1, 1}, Run: cmdGetvsn})
	register(&Command{Meta: Meta{"GETRANGE", 4, 1, 1, 1}, Run: cmdGetrange})
	register(&Command{Meta: Meta{"SUBSTR", 4, 1, 1, 1}, Run: cmdGetrange})
	register(&Command{Meta: Meta{"STRLEN", 2, 1, 1, 1}, Run: cmdStrlen})
	register(&Command{Meta: Meta{"MGET", -2, 1, -1, 1}, Run: cmdMget})

	register(&Command{Meta: Meta{"APPEND", 3, 1, 1, 1}, Run: cmdAppend})
	register(&Command{Meta: Meta{"SETRANGE", 4, 1, 1, 1}, Run: cmdSetrange})
	register(&Command{Meta: Meta{"SETBIT", 4, 1, 1, 1}, Run: cmdSetbit})
	register(&Command{Meta: Meta{"BITCOUNT", -2, 1, 1, 1}, Run: cmdBitcount})
	register(&Command{Meta: Meta{"BITPOS", -3, 1, 1, 1}, Run: cmdBitpos})
	register(&Command{Meta: Meta{"BITOP", -4, 2, -1, 1}, Run: cmdBitop})

	register(&Command{Meta: Meta{"CAS", 4, 1, 1, 1}, Run: cmdCas})
	register(&Command{Meta: Meta{"INCR", 2, 1, 1, 1}, Run: cmdIncr})
	register(&Command{Meta: Meta{"DECR", 2, 1, 1, 1}, Run: cmdDecr})
	register(&Command{Meta: Meta{"INCRBY", 3, 1, 1, 1}, Run: cmdIncrby})
	register(&Command{Meta: Meta{"DECRBY", 3, 1, 1, 1}, Run: cmdDecrby})
	register(&Command{Meta: Meta{"INCRBYFLOAT", 3, 1, 1, 1}, Run: cmdIncrbyfloat})

	register(&Command{Meta: Meta{"MSET", -3, 1, -1, 2}, Run: cmdMset})

	register(&Command{Meta: Meta{"MOVE", 3, 1, 1, 1}, Run: cmdUnsupported})
	register(&Command{Meta: Meta{"RENAME", 3, 1, 2, 1}, Run: cmdUnsupported})
	register(&Command{Meta: Meta{"RENAMENX", 3, 1, 2, 1}, Run: cmdUnsupported})
}
