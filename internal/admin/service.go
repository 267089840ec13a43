// Package admin implements the control-plane RPC surface operators use to
// inspect replication state: ReplStatus for one store, ListStores for
// every store a node's replica.Manager tracks. It is the expansion named
// in spec_full.md's "Admin/control-plane RPC" section, grounded on
// internal/netw/rpcx.go and wired to internal/replica.Manager.
package admin

import (
	"context"

	"github.com/Allen1211/msgp/msgp"

	"github.com/kvreplica/rkv/internal/netw"
	"github.com/kvreplica/rkv/internal/replica"
)

//go:generate msgp

// Service is registered by name with an internal/netw.RpcxServer; its
// methods follow rpcx's (ctx, args, reply) error convention.
type Service struct {
	mgr *replica.Manager
}

func NewService(mgr *replica.Manager) *Service {
	return &Service{mgr: mgr}
}

// ListArgs is empty: ListStores takes no parameters, but rpcx's msgp
// codec still needs a concrete Encodable/Decodable type to carry across
// the wire.
type ListArgs struct{}

type ListReply struct {
	StoreIds []int
}

func (s *Service) ListStores(ctx context.Context, args *ListArgs, reply *ListReply) error {
	reply.StoreIds = s.mgr.ListStores()
	return nil
}

type StatusArgs struct {
	StoreId int
}

// StatusReply flattens replica.StoreMeta/SyncStatus into wire-friendly
// fields (no time.Time, which this repository's hand-written msgp
// methods do not attempt to encode) plus Found, which is false when
// StoreId names a store this manager does not track.
type StatusReply struct {
	Found bool

	SyncFromHost string
	SyncFromPort int
	SyncFromId   int
	BinlogId     int64
	ReplState    string

	SessionId         uint64
	LastSyncTimeUnix  int64
	IsRunning         bool
}

func (s *Service) ReplStatus(ctx context.Context, args *StatusArgs, reply *StatusReply) error {
	meta, status, ok := s.mgr.ReplStatus(args.StoreId)
	reply.Found = ok
	if !ok {
		return nil
	}
	reply.SyncFromHost = meta.SyncFromHost
	reply.SyncFromPort = meta.SyncFromPort
	reply.SyncFromId = meta.SyncFromId
	reply.BinlogId = meta.BinlogId
	reply.ReplState = meta.ReplState.String()

	reply.SessionId = status.SessionId
	reply.LastSyncTimeUnix = status.LastSyncTime.Unix()
	reply.IsRunning = status.IsRunning
	return nil
}

func (a *ListArgs) EncodeMsg(w *msgp.Writer) error  { return nil }
func (a *ListArgs) DecodeMsg(r *msgp.Reader) error   { return nil }

func (rp *ListReply) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteUint32(uint32(len(rp.StoreIds))); err != nil {
		return err
	}
	for _, id := range rp.StoreIds {
		if err := w.WriteInt(id); err != nil {
			return err
		}
	}
	return nil
}

func (rp *ListReply) DecodeMsg(r *msgp.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	rp.StoreIds = make([]int, n)
	for i := range rp.StoreIds {
		if rp.StoreIds[i], err = r.ReadInt(); err != nil {
			return err
		}
	}
	return nil
}

func (a *StatusArgs) EncodeMsg(w *msgp.Writer) error { return w.WriteInt(a.StoreId) }

func (a *StatusArgs) DecodeMsg(r *msgp.Reader) error {
	var err error
	a.StoreId, err = r.ReadInt()
	return err
}

func (rp *StatusReply) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteBool(rp.Found); err != nil {
		return err
	}
	if err := w.WriteString(rp.SyncFromHost); err != nil {
		return err
	}
	if err := w.WriteInt(rp.SyncFromPort); err != nil {
		return err
	}
	if err := w.WriteInt(rp.SyncFromId); err != nil {
		return err
	}
	if err := w.WriteInt64(rp.BinlogId); err != nil {
		return err
	}
	if err := w.WriteString(rp.ReplState); err != nil {
		return err
	}
	if err := w.WriteUint64(rp.SessionId); err != nil {
		return err
	}
	if err := w.WriteInt64(rp.LastSyncTimeUnix); err != nil {
		return err
	}
	return w.WriteBool(rp.IsRunning)
}

func (rp *StatusReply) DecodeMsg(r *msgp.Reader) error {
	var err error
	if rp.Found, err = r.ReadBool(); err != nil {
		return err
	}
	if rp.SyncFromHost, err = r.ReadString(); err != nil {
		return err
	}
	if rp.SyncFromPort, err = r.ReadInt(); err != nil {
		return err
	}
	if rp.SyncFromId, err = r.ReadInt(); err != nil {
		return err
	}
	if rp.BinlogId, err = r.ReadInt64(); err != nil {
		return err
	}
	if rp.ReplState, err = r.ReadString(); err != nil {
		return err
	}
	if rp.SessionId, err = r.ReadUint64(); err != nil {
		return err
	}
	if rp.LastSyncTimeUnix, err = r.ReadInt64(); err != nil {
		return err
	}
	rp.IsRunning, err = r.ReadBool()
	return err
}

// Serve registers this Service under name and starts the rpcx server on
// its own goroutine, returning without waiting for it to stop.
func Serve(name, addr string, mgr *replica.Manager) (*netw.RpcxServer, error) {
	srv := netw.MakeRpcxServer(name, addr)
	if err := srv.Register(name, NewService(mgr)); err != nil {
		return nil, err
	}
	go srv.Start()
	return srv, nil
}
