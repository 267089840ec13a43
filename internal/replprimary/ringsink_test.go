package replprimary

import (
	"testing"

	"github.com/kvreplica/rkv/pkg/record"
	"github.com/kvreplica/rkv/pkg/store"
)

func commitOne(s *ringSink, txnId int64, key string) {
	s.OnMutation(txnId, store.OpSet, record.NewKVKey(0, 0, []byte(key)), &record.Value{Bytes: []byte("v")})
	s.OnTxnEnd(txnId)
}

func TestRingSinkSubscribeFromReplaysBacklog(t *testing.T) {
	s := newRingSink(8)
	commitOne(s, 1, "a")
	commitOne(s, 2, "b")
	commitOne(s, 3, "c")

	ch, err := s.subscribeFrom(1, 1)
	if err != nil {
		t.Fatalf("subscribeFrom: %v", err)
	}

	var got []int64
	for len(got) < 2 {
		got = append(got, (<-ch).TxnId)
	}
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("replayed backlog = %v, want [2 3]", got)
	}

	commitOne(s, 4, "d")
	if batch := <-ch; batch.TxnId != 4 {
		t.Fatalf("live batch after subscribe = %d, want 4", batch.TxnId)
	}
}

func TestRingSinkSubscribeFromRejectsStaleBinlogId(t *testing.T) {
	s := newRingSink(2)
	commitOne(s, 1, "a")
	commitOne(s, 2, "b")
	commitOne(s, 3, "c")

	if _, err := s.subscribeFrom(1, 0); err == nil {
		t.Fatalf("subscribeFrom with evicted binlog id: want error, got nil")
	}
}
