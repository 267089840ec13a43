package netw

import (
	"context"

	rpcx_client "github.com/smallnest/rpcx/client"
	"github.com/smallnest/rpcx/log"
	"github.com/smallnest/rpcx/protocol"
	"github.com/smallnest/rpcx/server"
	"github.com/smallnest/rpcx/share"

	"github.com/kvreplica/rkv/internal/netw/codec"
)

// msgpSerializeType is the rpcx wire serializer id this repository
// registers its msgp codec under, grounded on the teacher's own choice of
// an unused high id (5) to avoid colliding with rpcx's built-ins.
const msgpSerializeType = protocol.SerializeType(5)

func init() {
	log.SetDummyLogger()
	share.Codecs[msgpSerializeType] = &codec.MsgpCodec{}
}

// RpcxServer is the admin/control-plane RPC transport: a thin wrapper
// around rpcx's server so internal/admin can register a plain Go object
// without otherwise depending on rpcx's API surface.
type RpcxServer struct {
	Name string
	Addr string

	serv *server.Server
}

func MakeRpcxServer(name, addr string) *RpcxServer {
	return &RpcxServer{
		Name: name,
		Addr: addr,
		serv: server.NewServer(),
	}
}

func (s *RpcxServer) Register(name string, obj interface{}) error {
	return s.serv.RegisterName(name, obj, "")
}

func (s *RpcxServer) Start() error {
	return s.serv.Serve("tcp", s.Addr)
}

func (s *RpcxServer) Stop() {
	_ = s.serv.Close()
}

// ClientEnd is the admin RPC client side, one per remote admin address.
type ClientEnd struct {
	Name   string
	Addr   string
	client rpcx_client.XClient
}

func MakeRPCEnd(name, addr string) *ClientEnd {
	d, err := rpcx_client.NewPeer2PeerDiscovery("tcp@"+addr, "")
	if err != nil {
		return nil
	}
	option := rpcx_client.DefaultOption
	option.SerializeType = msgpSerializeType
	return &ClientEnd{
		Name:   name,
		Addr:   addr,
		client: rpcx_client.NewXClient(name, rpcx_client.Failfast, rpcx_client.RoundRobin, d, option),
	}
}

// Call invokes svrName against this end, returning false on any RPC-layer
// failure (the caller's reply argument is left unmodified in that case).
func (ce *ClientEnd) Call(svrName string, args interface{}, reply interface{}) bool {
	return ce.client.Call(context.Background(), svrName, args, reply) == nil
}

func (ce *ClientEnd) Close() {
	if ce.client != nil {
		ce.client.Close()
	}
}
