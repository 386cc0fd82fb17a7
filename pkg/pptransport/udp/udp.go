// Package udp implements the PProto datagram socket engine: one message
// per UDP datagram, no length prefix, no compression, no encryption (core
// spec §4.4/§6.4). It has no counterpart in the teacher (a TCP-only mesh
// relay), so its framing is grounded directly on the core spec's shape and
// on the UDP-datagram-header idea seen in other_examples' sockethub code.
package udp

import (
	"log"
	"net"
	"sync"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize"
	"github.com/zentalk/pproto/pkg/pptype"
)

// Signature is the fixed prefix every datagram begins with, PPROTO_UDP_SIGNATURE
// in core spec §4.4. 8 bytes: ASCII "PPROTOv1".
var Signature = [8]byte{'P', 'P', 'R', 'O', 'T', 'O', 'v', '1'}

// mtuWarnSize is the single-datagram payload size above which Send logs a
// warning, since UDP datagrams beyond the path MTU fragment or get dropped
// (core spec §4.4's "~500 bytes" MTU safety note).
const mtuWarnSize = 500

// Socket is a UDP datagram engine: one net.PacketConn, no per-peer state.
// It has no lifecycle state machine — each datagram is a self-contained
// message, so there is no handshake to run (core spec §4.4).
type Socket struct {
	conn net.PacketConn

	mu               sync.Mutex
	discardAddresses map[string]bool

	OnMessage func(src pptype.HostPoint, m *ppmsg.Message)
	OnError   func(error)

	stopCh chan struct{}
	doneCh chan struct{}
}

// Listen opens a UDP socket bound to addr (host:port, "" host means all
// interfaces) and starts its single receive-loop goroutine.
func Listen(addr string) (*Socket, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	s := &Socket{
		conn:             conn,
		discardAddresses: make(map[string]bool),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	go s.recvLoop()
	return s, nil
}

// DiscardAddress adds host to the inbound filter: datagrams whose source
// host matches an entry here are dropped silently (core spec §4.4). Only
// the host is compared; neither the source port nor the local bind port
// takes part in the match.
func (s *Socket) DiscardAddress(host string) {
	s.mu.Lock()
	s.discardAddresses[host] = true
	s.mu.Unlock()
}

func (s *Socket) discards(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discardAddresses[host]
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Send serializes m with qbinary and writes one datagram per resolved
// destination, falling back to SourcePoint when DestinationPoints is
// empty (core spec §4.4).
func (s *Socket) Send(m *ppmsg.Message) error {
	body := ppserialize.EncodeQBinary(m)
	datagram := make([]byte, 0, len(Signature)+len(body))
	datagram = append(datagram, Signature[:]...)
	datagram = append(datagram, body...)

	if len(datagram) > mtuWarnSize {
		log.Printf("udp: outbound datagram for command %s is %d bytes, above the %d-byte single-datagram MTU safety margin", m.Command, len(datagram), mtuWarnSize)
	}

	targets := m.DestinationPoints
	if len(targets) == 0 {
		targets = []pptype.HostPoint{m.SourcePoint}
	}
	for _, t := range targets {
		if t.IsNull() {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", t.String())
		if err != nil {
			return err
		}
		if _, err := s.conn.WriteTo(datagram, addr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Socket) recvLoop() {
	defer close(s.doneCh)
	buf := make([]byte, 65535)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if s.OnError != nil {
				s.OnError(err)
			}
			return
		}
		s.handleDatagram(buf[:n], addr)
	}
}

func (s *Socket) handleDatagram(datagram []byte, addr net.Addr) {
	host, port := splitHostPort(addr)
	if s.discards(host) {
		return
	}
	if len(datagram) < len(Signature) {
		log.Printf("udp: datagram from %s too short to carry the signature, dropped", addr)
		return
	}
	var sig [8]byte
	copy(sig[:], datagram[:len(Signature)])
	if sig != Signature {
		log.Printf("udp: datagram from %s has wrong signature, dropped", addr)
		return
	}
	m, err := ppserialize.DecodeQBinary(datagram[len(Signature):])
	if err != nil {
		log.Printf("udp: failed to decode datagram from %s: %v", addr, err)
		return
	}
	m.SourcePoint = pptype.HostPoint{Address: host, Port: port}
	if s.OnMessage != nil {
		s.OnMessage(m.SourcePoint, m)
	}
}

func splitHostPort(addr net.Addr) (string, uint16) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return addr.String(), 0
	}
	return udpAddr.IP.String(), uint16(udpAddr.Port)
}

// Close stops the receive loop and closes the underlying PacketConn.
func (s *Socket) Close() error {
	close(s.stopCh)
	err := s.conn.Close()
	<-s.doneCh
	return err
}
