package netw

import (
	"bufio"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/internal/command"
	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/segment"
	"github.com/kvreplica/rkv/internal/session"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

// Server is the RESP-speaking TCP front end: one goroutine per accepted
// connection, each processing commands off that connection sequentially
// against the shared segment manager, grounded on the teacher's one
// long-lived goroutine per live connection style (internal/node.Node).
type Server struct {
	addr   string
	seg    *segment.Manager
	logger *logrus.Logger

	listener net.Listener
	killedC  chan int
	dead     int32
	nextConn int64
}

func NewServer(addr string, seg *segment.Manager, logger *logrus.Logger) *Server {
	return &Server{
		addr:    addr,
		seg:     seg,
		logger:  logger,
		killedC: make(chan int, 1),
	}
}

func (s *Server) Serve() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.logger.Infof("rkv server listening on %s", s.addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.dead) == 1 {
				return nil
			}
			s.logger.Warnf("accept error: %v", err)
			continue
		}
		connId := atomic.AddInt64(&s.nextConn, 1)
		go s.serveConn(conn, connId)
	}
}

func (s *Server) Stop() {
	atomic.StoreInt32(&s.dead, 1)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) serveConn(conn net.Conn, connId int64) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	sess := session.New(s.seg, &session.Ctx{ConnId: connId, Peer: peer})
	reader := bufio.NewReader(conn)

	s.logger.Debugf("conn %d from %s opened", connId, peer)
	for {
		argv, err := ReadCommand(reader)
		if err != nil {
			s.logger.Debugf("conn %d closed: %v", connId, err)
			return
		}
		if len(argv) == 0 {
			continue
		}
		sess.SetArgv(argv)

		name := string(argv[0])
		upperName := upper(name)
		cmd := command.Lookup(upperName)
		var reply []byte
		if cmd == nil {
			metrics.CommandsTotal.WithLabelValues(upperName, "error").Inc()
			reply = command.FmtError(rkvcommon.Internal, "unknown command '"+name+"'")
		} else {
			reply, err = cmd.Run(sess)
			if err != nil {
				metrics.CommandsTotal.WithLabelValues(upperName, "error").Inc()
				reply = command.FmtErrFromErr(err)
			} else {
				metrics.CommandsTotal.WithLabelValues(upperName, "ok").Inc()
			}
		}
		if _, err := conn.Write(reply); err != nil {
			s.logger.Debugf("conn %d write error: %v", connId, err)
			return
		}
	}
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
