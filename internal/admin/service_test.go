package admin

import (
	"bytes"
	"context"
	"testing"

	"github.com/Allen1211/msgp/msgp"
	"github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/internal/replica"
	"github.com/kvreplica/rkv/pkg/store"
)

type stubStore struct{ id int }

func (s *stubStore) Id() int                                       { return s.id }
func (s *stubStore) Stop() error                                    { return nil }
func (s *stubStore) Clear() error                                   { return nil }
func (s *stubStore) Restart(bool) (int64, error)                    { return 0, nil }
func (s *stubStore) BackupDir() string                              { return "" }
func (s *stubStore) BackupFiles() (map[string]int64, error)         { return nil, nil }
func (s *stubStore) Root() string                                   { return "" }
func (s *stubStore) ManifestBinlogId() []byte                       { return nil }
func (s *stubStore) SetBinlogSink(store.BinlogSink)                 {}
func (s *stubStore) Close()                                         {}
func (s *stubStore) CreateTransaction() (store.Transaction, error)  { return nil, nil }

func newTestManager() *replica.Manager {
	logger := logrus.New()
	logger.SetOutput(bytesDiscard{})
	mgr := replica.NewManager(logger)
	mgr.AddStore(&stubStore{id: 1}, "", 0, 0)
	return mgr
}

type bytesDiscard struct{}

func (bytesDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestListStores(t *testing.T) {
	mgr := newTestManager()
	defer mgr.Stop()
	svc := NewService(mgr)

	reply := &ListReply{}
	if err := svc.ListStores(context.Background(), &ListArgs{}, reply); err != nil {
		t.Fatalf("ListStores: %v", err)
	}
	if len(reply.StoreIds) != 1 || reply.StoreIds[0] != 1 {
		t.Fatalf("StoreIds = %v, want [1]", reply.StoreIds)
	}
}

func TestReplStatusUnknownStore(t *testing.T) {
	mgr := newTestManager()
	defer mgr.Stop()
	svc := NewService(mgr)

	reply := &StatusReply{}
	if err := svc.ReplStatus(context.Background(), &StatusArgs{StoreId: 99}, reply); err != nil {
		t.Fatalf("ReplStatus: %v", err)
	}
	if reply.Found {
		t.Fatalf("Found = true for an untracked store id")
	}
}

func TestReplStatusKnownStore(t *testing.T) {
	mgr := newTestManager()
	defer mgr.Stop()
	svc := NewService(mgr)

	reply := &StatusReply{}
	if err := svc.ReplStatus(context.Background(), &StatusArgs{StoreId: 1}, reply); err != nil {
		t.Fatalf("ReplStatus: %v", err)
	}
	if !reply.Found {
		t.Fatalf("Found = false for a tracked store id")
	}
	if reply.ReplState != "NONE" {
		t.Fatalf("ReplState = %q, want NONE for a store with no configured primary", reply.ReplState)
	}
}

func TestListReplyMsgpRoundtrip(t *testing.T) {
	rp := &ListReply{StoreIds: []int{1, 2, 3}}
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := rp.EncodeMsg(w); err != nil {
		t.Fatalf("EncodeMsg: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var got ListReply
	r := msgp.NewReader(&buf)
	if err := got.DecodeMsg(r); err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if len(got.StoreIds) != 3 || got.StoreIds[1] != 2 {
		t.Fatalf("roundtrip mismatch: got %v", got.StoreIds)
	}
}

func TestStatusReplyMsgpRoundtrip(t *testing.T) {
	rp := &StatusReply{
		Found:            true,
		SyncFromHost:     "10.0.0.1",
		SyncFromPort:     6400,
		SyncFromId:       2,
		BinlogId:         123,
		ReplState:        "connected",
		SessionId:        99,
		LastSyncTimeUnix: 1700000000,
		IsRunning:        true,
	}
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := rp.EncodeMsg(w); err != nil {
		t.Fatalf("EncodeMsg: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var got StatusReply
	r := msgp.NewReader(&buf)
	if err := got.DecodeMsg(r); err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got != *rp {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, *rp)
	}
}
