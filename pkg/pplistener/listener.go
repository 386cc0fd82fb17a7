// Package pplistener implements the PProto connection listener: accepts
// TCP/UNIX connections, starts one pptransport.Socket worker per
// connection, and owns the set of currently active sockets (core spec
// §4.5). Grounded in the teacher's RelayServer accept loop (pkg/network/
// relay.go), generalized from one fixed message protocol to pluggable
// pptransport.Properties.
package pplistener

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptransport"
	"github.com/zentalk/pproto/pkg/pptype"
)

// housekeepingInterval is how often the listener prunes sockets whose
// worker goroutine has already exited (core spec §4.5).
const housekeepingInterval = 15 * time.Second

// Listener accepts connections on one net.Listener and tracks every
// socket it has admitted, keyed by descriptor.
type Listener struct {
	ln    net.Listener
	props pptransport.Properties

	mu      sync.RWMutex
	sockets map[pptype.SocketDescriptor]*pptransport.Socket

	stopCh chan struct{}
	doneCh chan struct{}

	// OnMessage/OnConnected/OnDisconnected are wired onto every accepted
	// socket before it is inserted into the active set (core spec §4.5's
	// insideListener gate).
	OnMessage      func(*pptransport.Socket, *ppmsg.Message)
	OnConnected    func(*pptransport.Socket)
	OnDisconnected func(*pptransport.Socket)
}

// Listen opens network ("tcp" or "unix") on addr and starts accepting.
func Listen(network, addr string, props pptransport.Properties) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:      ln,
		props:   props,
		sockets: make(map[pptype.SocketDescriptor]*pptransport.Socket),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go l.acceptLoop()
	go l.housekeepingLoop()
	return l, nil
}

// Addr returns the listener's bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) acceptLoop() {
	defer close(l.doneCh)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
			}
			log.Printf("pplistener: accept error: %v", err)
			return
		}
		l.admit(conn)
	}
}

// admit constructs the socket, wires its callbacks through to the
// listener's own, starts its worker, and only then inserts it into the
// active set — the insideListener gate of core spec §4.5.
func (l *Listener) admit(conn net.Conn) {
	s := pptransport.NewAccepted(conn, l.props)
	s.OnMessage = func(sock *pptransport.Socket, m *ppmsg.Message) {
		if l.OnMessage != nil {
			l.OnMessage(sock, m)
		}
	}
	s.OnConnected = func(sock *pptransport.Socket) {
		l.insert(sock)
		if l.OnConnected != nil {
			l.OnConnected(sock)
		}
	}
	s.OnDisconnected = func(sock *pptransport.Socket) {
		l.remove(sock.Descriptor())
		if l.OnDisconnected != nil {
			l.OnDisconnected(sock)
		}
	}
	s.Start()
}

func (l *Listener) insert(s *pptransport.Socket) {
	l.mu.Lock()
	l.sockets[s.Descriptor()] = s
	l.mu.Unlock()
}

func (l *Listener) remove(d pptype.SocketDescriptor) {
	l.mu.Lock()
	delete(l.sockets, d)
	l.mu.Unlock()
}

func (l *Listener) housekeepingLoop() {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.pruneClosed()
		}
	}
}

func (l *Listener) pruneClosed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for d, s := range l.sockets {
		select {
		case <-s.Done():
			delete(l.sockets, d)
		default:
		}
	}
}

// Sockets returns a snapshot slice of every currently active socket.
func (l *Listener) Sockets() []*pptransport.Socket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*pptransport.Socket, 0, len(l.sockets))
	for _, s := range l.sockets {
		out = append(out, s)
	}
	return out
}

// Count returns the number of currently active sockets.
func (l *Listener) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sockets)
}

// Broadcast sends an Event to every active socket whose descriptor is not
// in exclude (core spec §4.5).
func (l *Listener) Broadcast(m *ppmsg.Message, exclude map[pptype.SocketDescriptor]bool) {
	for _, s := range l.Sockets() {
		if exclude != nil && exclude[s.Descriptor()] {
			continue
		}
		s.Send(m)
	}
}

// Send delivers a Command/Answer message by destination_sockets first,
// then socket_descriptor; if neither resolves to an active socket, the
// message is dropped and an error is logged (core spec §4.5).
func (l *Listener) Send(m *ppmsg.Message) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(m.DestinationSockets) > 0 {
		delivered := false
		for _, d := range m.DestinationSockets {
			if s, ok := l.sockets[d]; ok {
				s.Send(m)
				delivered = true
			}
		}
		if delivered {
			return true
		}
	}
	if s, ok := l.sockets[m.SocketDescriptor]; ok {
		s.Send(m)
		return true
	}
	log.Printf("pplistener: dropping message %s for command %s: no destination resolved", m.Id, m.Command)
	return false
}

// Close stops accepting new connections and disconnects every active
// socket, waiting up to timeout per socket.
func (l *Listener) Close(timeout time.Duration) error {
	close(l.stopCh)
	err := l.ln.Close()
	<-l.doneCh
	for _, s := range l.Sockets() {
		s.Disconnect(timeout)
	}
	return err
}
