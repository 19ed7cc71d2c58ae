package server

import "github.com/ticknet-go/ticknet/transport"

// peerSender adapts transport.PacketIo plus one fixed destination address
// into the narrow connection.Sender contract.
type peerSender struct {
	io   transport.PacketIo
	addr transport.Addr
}

func (s *peerSender) Send(payload []byte) error {
	return s.io.Send(payload, s.addr)
}
