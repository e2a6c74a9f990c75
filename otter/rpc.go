package otter

import (
	"io"
	"net"
	"net/rpc"
	"reflect"

	hcodec "github.com/hashicorp/go-msgpack/codec"
	msgpackrpc "github.com/hashicorp/net-rpc-msgpackrpc"

	"github.com/rackerlabs/otter-sub001/logging"
)

// msgpackHandle is the shared codec handle used for RPC connections. Raw
// strings and plain maps keep the wire format interoperable with other
// HashiCorp style msgpack RPC endpoints.
var msgpackHandle = func() *hcodec.MsgpackHandle {
	h := &hcodec.MsgpackHandle{RawToString: true}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}()

// newServerCodec returns the rpc.ServerCodec used to process inbound RPC
// requests.
func newServerCodec(conn io.ReadWriteCloser) rpc.ServerCodec {
	return msgpackrpc.NewCodecFromHandle(true, true, conn, msgpackHandle)
}

// listen is used to listen for incoming RPC connections.
func (s *Server) listen() {
	for {
		// Accept a connection
		conn, err := s.rpcListener.Accept()
		if err != nil {
			if s.shutdown {
				return
			}
			logging.Error("core/rpc: failed to accept RPC conn: %v", err)
			continue
		}

		go s.handleConn(conn)
	}
}

// handleConn is used to service a single RPC connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	rpcCodec := newServerCodec(conn)
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		if err := s.rpcServer.ServeRequest(rpcCodec); err != nil {
			if err != io.EOF {
				logging.Error("core/rpc: RPC request error: %v", err)
			}
			return
		}
	}
}
