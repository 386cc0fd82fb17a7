package pptransport

import (
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zentalk/pproto/pkg/ppcrypto"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppqueue"
	"github.com/zentalk/pproto/pkg/pptype"
)

// nextDescriptor hands out process-unique SocketDescriptor values, the Go
// stand-in for "OS file descriptor semantics" (core spec §3.1) since two
// real OS descriptors could otherwise collide across net.Conn instances
// implemented without raw fds (e.g. in tests).
var nextDescriptor = newDescriptorCounter()

// Socket is one connection's state machine, I/O loop and send queue (core
// spec §4.1). The run goroutine owns the socket's lifecycle state; it
// shares net.Conn with a reader goroutine (inbound frames) and a writer
// goroutine (the send queue) that it starts and waits for. Accessors that
// only read published fields use sMu.RLock so they stay responsive while
// those goroutines are blocked in I/O (core spec §5's "try-lock... used by read-only
// accessors to stay responsive" — Go's RWMutex plays that role here).
type Socket struct {
	conn       net.Conn
	descriptor pptype.SocketDescriptor
	props      Properties
	initiator  bool

	sMu   sync.RWMutex
	state State

	sendQueue *ppqueue.Queue

	peerUnknownMu sync.Mutex
	peerUnknown   map[pptype.CommandId]bool

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64

	shared    *ppcrypto.SharedKey
	format    pptype.SerializeFormat
	encrypted bool

	peerProtoLow, peerProtoHigh uint16

	echoMu         sync.Mutex
	echoTimeoutMS  int64
	lastEchoSentAt time.Time
	lastEchoRecvAt time.Time

	sourcePoint pptype.HostPoint
	socketName  string

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	// OnMessage fires for every inbound message that passes the built-in
	// filter (handshake/echo/close/unknown are consumed internally — core
	// spec §4.1.5). OnConnected fires once, after the compatibility check
	// succeeds. OnDisconnected fires exactly once as the socket closes.
	OnMessage      func(*Socket, *ppmsg.Message)
	OnConnected    func(*Socket)
	OnDisconnected func(*Socket)

	// OnEchoAnswered fires whenever the peer answers one of our liveness
	// probes (core spec §4.1.6). Optional; mainly useful for diagnostics.
	OnEchoAnswered func(*Socket)
}

type descriptorCounter struct {
	mu   sync.Mutex
	next int64
}

func newDescriptorCounter() *descriptorCounter { return &descriptorCounter{next: 1} }

func (c *descriptorCounter) next_() pptype.SocketDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.next
	c.next++
	return pptype.SocketDescriptor(d)
}

func newSocket(conn net.Conn, props Properties, initiator bool) *Socket {
	s := &Socket{
		conn:          conn,
		descriptor:    nextDescriptor.next_(),
		props:         props,
		initiator:     initiator,
		state:         StateCreated,
		peerUnknown:   make(map[pptype.CommandId]bool),
		echoTimeoutMS: props.EchoTimeoutMS,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	s.sendQueue = ppqueue.New(s)
	if conn.RemoteAddr() != nil {
		s.sourcePoint = parseHostPoint(conn.RemoteAddr())
	}
	return s
}

func parseHostPoint(addr net.Addr) pptype.HostPoint {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return pptype.HostPoint{Address: addr.String()}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return pptype.HostPoint{Address: host}
	}
	return pptype.HostPoint{Address: host, Port: uint16(port)}
}

// Dial opens a client connection over network ("tcp" or "unix") to addr.
// The returned Socket's worker goroutine does not start until Start is
// called, giving the caller a chance to wire OnMessage/OnConnected/
// OnDisconnected first (core spec §4.1.1 Created→Connecting).
func Dial(network, addr string, props Properties) (*Socket, error) {
	conn, err := net.DialTimeout(network, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	s := newSocket(conn, props, true)
	s.setState(StateConnecting)
	return s, nil
}

// NewAccepted wraps an already-accepted net.Conn (from a listener's
// Accept loop) as a server-side Socket. Its worker goroutine does not
// start until Start is called, giving the caller a chance to wire
// OnMessage/OnConnected/OnDisconnected first — the insideListener gate of
// core spec §4.5, so no callback can fire against a nil handler.
func NewAccepted(conn net.Conn, props Properties) *Socket {
	return newSocket(conn, props, false)
}

// Start launches the socket's worker goroutine. Callers that construct a
// Socket directly with NewAccepted must call Start exactly once, after
// wiring any callbacks. Start freezes the socket's command registry, so
// any later Register call on it panics.
func (s *Socket) Start() {
	if s.props.Registry != nil {
		s.props.Registry.Freeze()
	}
	go s.run()
}

func (s *Socket) setState(st State) {
	s.sMu.Lock()
	s.state = st
	s.sMu.Unlock()
}

// State returns the socket's current lifecycle state.
func (s *Socket) State() State {
	s.sMu.RLock()
	defer s.sMu.RUnlock()
	return s.state
}

// Descriptor returns this socket's process-unique handle.
func (s *Socket) Descriptor() pptype.SocketDescriptor { return s.descriptor }

// SocketType reports which transport this connection runs over.
func (s *Socket) SocketType() pptype.SocketType {
	switch s.conn.RemoteAddr().Network() {
	case "unix":
		return pptype.SocketLocal
	case "udp":
		return pptype.SocketUdp
	default:
		return pptype.SocketTcp
	}
}

// SetSocketName assigns an application-chosen label copied onto every
// inbound message's transient SocketName field (core spec §3.2).
func (s *Socket) SetSocketName(name string) { s.socketName = name }

// SourcePoint returns the peer's address/port as observed by net.Conn.
func (s *Socket) SourcePoint() pptype.HostPoint { return s.sourcePoint }

// RemoteAddr returns the underlying connection's remote address string.
func (s *Socket) RemoteAddr() string {
	if s.conn == nil || s.conn.RemoteAddr() == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// Send enqueues m for transmission, returning false (logged) if the
// command is known-unknown to the peer or the socket is closed (core spec
// §4.3/§7).
func (s *Socket) Send(m *ppmsg.Message) bool {
	if !m.Flags.ContentNotEmpty() && len(m.Content) > 0 {
		m.SetContent(m.Content, m.ContentFormat)
	}
	return s.sendQueue.Send(m)
}

// PeerUnknown implements ppqueue.UnknownChecker.
func (s *Socket) PeerUnknown(id pptype.CommandId) bool {
	s.peerUnknownMu.Lock()
	defer s.peerUnknownMu.Unlock()
	return s.peerUnknown[id]
}

func (s *Socket) markPeerUnknown(id pptype.CommandId) {
	s.peerUnknownMu.Lock()
	s.peerUnknown[id] = true
	s.peerUnknownMu.Unlock()
}

// Disconnect signals the worker to exit, waiting up to timeout for it to
// finish flushing and close the socket (core spec §5 "Cancellation").
func (s *Socket) Disconnect(timeout time.Duration) {
	s.closeOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
	case <-time.After(timeout):
		log.Printf("pptransport: socket %d disconnect timed out after %s", s.descriptor, timeout)
	}
}

// Done returns a channel closed once the worker goroutine has fully exited.
func (s *Socket) Done() <-chan struct{} { return s.doneCh }

// MessagesSent returns the number of frames successfully written to the
// wire over this socket's lifetime.
func (s *Socket) MessagesSent() uint64 { return s.messagesSent.Load() }

// MessagesReceived returns the number of frames successfully read from the
// wire over this socket's lifetime.
func (s *Socket) MessagesReceived() uint64 { return s.messagesReceived.Load() }
