// Package replprimary implements the primary side of primary-replica
// replication: the line-framed FULLSYNC/INCRSYNC listener and the
// per-store binlog ring buffer that feeds committed transactions to
// subscribed incremental-sync sessions. It supplements the design's
// replica-only focus (spec.md §4.8) the way a real deployment needs a
// primary to drive the replica state machine end to end, grounded on the
// teacher's internal/node TCP accept-loop shape.
package replprimary

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/internal/netw"
	"github.com/kvreplica/rkv/pkg/replrecord"
	"github.com/kvreplica/rkv/pkg/rkvcommon/utils"
	"github.com/kvreplica/rkv/pkg/store"
)

// Server listens for FULLSYNC/INCRSYNC control lines from replicas and
// serves both protocols against the stores it is told about.
type Server struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	stores map[int]store.Store
	sinks  map[int]*ringSink

	listener net.Listener
	dead     int32

	nextSessionId uint64
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		logger: logger,
		stores: map[int]store.Store{},
		sinks:  map[int]*ringSink{},
	}
}

// AddStore registers s as servable for FULLSYNC/INCRSYNC and attaches its
// binlog ring sink, which becomes s's BinlogSink for every withLog write
// from this moment on.
func (srv *Server) AddStore(s store.Store, ringCapacity int) {
	sink := newRingSink(ringCapacity)
	s.SetBinlogSink(sink)

	srv.mu.Lock()
	srv.stores[s.Id()] = s
	srv.sinks[s.Id()] = sink
	srv.mu.Unlock()
}

func (srv *Server) Serve(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = l
	srv.logger.Infof("replication primary listening on %s", addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			if atomic.LoadInt32(&srv.dead) == 1 {
				return nil
			}
			srv.logger.Warnf("replprimary: accept error: %v", err)
			continue
		}
		go srv.handleConn(netw.NewTCPConn(conn))
	}
}

func (srv *Server) Stop() {
	atomic.StoreInt32(&srv.dead, 1)
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
}

func (srv *Server) handleConn(conn netw.NetConn) {
	line, err := conn.ReadLine(0)
	if err != nil {
		conn.Close()
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		_ = conn.WriteLine("-ERR empty request", lineTimeout)
		conn.Close()
		return
	}

	switch fields[0] {
	case "FULLSYNC":
		storeId, err := parseInts(fields[1:], 1)
		if err != nil {
			_ = conn.WriteLine("-ERR "+err.Error(), lineTimeout)
			conn.Close()
			return
		}
		srv.handleFullSync(conn, storeId[0])
	case "INCRSYNC":
		args, err := parseInts(fields[1:], 3)
		if err != nil {
			_ = conn.WriteLine("-ERR "+err.Error(), lineTimeout)
			conn.Close()
			return
		}
		srv.handleIncrSync(conn, args[0], args[1], int64(args[2]))
	default:
		_ = conn.WriteLine("-ERR unknown replication request", lineTimeout)
		conn.Close()
	}
}

const lineTimeout = 3 * time.Second

func parseInts(fields []string, n int) ([]int, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed argument %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

// handleFullSync serves one replica's file-level snapshot transfer: send
// the manifest, stream every file, wait for the replica's +OK.
func (srv *Server) handleFullSync(conn netw.NetConn, storeId int) {
	defer conn.Close()

	srv.mu.RLock()
	s, ok := srv.stores[storeId]
	srv.mu.RUnlock()
	if !ok {
		_ = conn.WriteLine("-ERR unknown store", lineTimeout)
		return
	}

	files, err := s.BackupFiles()
	if err != nil {
		srv.logger.Warnf("replprimary: store %d: BackupFiles failed: %v", storeId, err)
		_ = conn.WriteLine("-ERR "+err.Error(), lineTimeout)
		return
	}

	manifest, err := json.Marshal(files)
	if err != nil {
		_ = conn.WriteLine("-ERR "+err.Error(), lineTimeout)
		return
	}
	if err := conn.WriteLine(string(manifest), lineTimeout); err != nil {
		return
	}

	for name, size := range files {
		if err := conn.WriteLine(name, lineTimeout); err != nil {
			return
		}
		if err := srv.sendFile(conn, s, name, size); err != nil {
			srv.logger.Warnf("replprimary: store %d: send %s failed: %v", storeId, name, err)
			return
		}
	}

	reply, err := conn.ReadLine(lineTimeout)
	if err != nil || reply != "+OK" {
		srv.logger.Warnf("replprimary: store %d: replica did not confirm transfer (%q, %v)", storeId, reply, err)
	}
}

func (srv *Server) sendFile(conn netw.NetConn, s store.Store, relName string, size int64) error {
	if relName == store.BinlogIdFileName {
		return conn.WriteFull(s.ManifestBinlogId(), lineTimeout)
	}

	f, err := os.Open(filepath.Join(s.Root(), filepath.FromSlash(relName)))
	if err != nil {
		return err
	}
	defer f.Close()

	remaining := size
	buf := make([]byte, netw.ChunkSize)
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := f.Read(buf[:chunk]); err != nil {
			return err
		}
		if err := conn.WriteFull(buf[:chunk], lineTimeout); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}

// handleIncrSync serves one replica's incremental-sync handshake and, on
// success, hands the connection off to a dedicated goroutine that streams
// binlog batches for the lifetime of the session. binlogId is the last
// transaction the replica already applied; the reply must replay anything
// committed since, not just batches that arrive after this call.
func (srv *Server) handleIncrSync(conn netw.NetConn, storeId, replicaStoreId int, binlogId int64) {
	srv.mu.RLock()
	sink, ok := srv.sinks[storeId]
	srv.mu.RUnlock()
	if !ok {
		_ = conn.WriteLine("-ERR unknown store", lineTimeout)
		conn.Close()
		return
	}

	if oldest, ok := sink.oldestRetained(); ok && binlogId < oldest-1 {
		_ = conn.WriteLine(fmt.Sprintf("-ERR binlog id %d precedes retained window (oldest %d), full sync required", binlogId, oldest), lineTimeout)
		conn.Close()
		return
	}

	sessionId := atomic.AddUint64(&srv.nextSessionId, 1)
	if err := conn.WriteLine(fmt.Sprintf("+%d", sessionId), lineTimeout); err != nil {
		conn.Close()
		return
	}
	pong, err := conn.ReadLine(lineTimeout)
	if err != nil || pong != "+PONG" {
		conn.Close()
		return
	}

	ch, err := sink.subscribeFrom(sessionId, binlogId)
	if err != nil {
		srv.logger.Warnf("replprimary: store %d: %v", storeId, err)
		conn.Close()
		return
	}
	go srv.streamBinlogs(conn, sink, sessionId, ch)
}

func (srv *Server) streamBinlogs(conn netw.NetConn, sink *ringSink, sessionId uint64, ch chan replrecord.ReplLogBatch) {
	defer conn.Close()
	defer sink.unsubscribe(sessionId)

	for batch := range ch {
		body := utils.MsgpEncode(&batch)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(body)))
		if err := conn.WriteFull(lenBuf, 0); err != nil {
			return
		}
		if err := conn.WriteFull(body, 0); err != nil {
			return
		}
	}
}
