package pptransport

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptype"
)

// ErrClosed names the error of a socket that has finished draining. No
// function of this package returns it; Send reports a closed socket by
// returning false.
var ErrClosed = errors.New("pptransport: socket closed")

// run drives one connection through its entire lifecycle: handshake,
// the framed I/O loop, and teardown (core spec §4.1.1/§4.1.5/§4.1.7).
// After the handshake it starts two helper goroutines on s.conn: a writer
// that drains the send queue and a reader that decodes inbound frames;
// run itself selects over inbound messages, the echo ticker and stop.
func (s *Socket) run() {
	defer close(s.doneCh)

	if err := s.handshake(); err != nil {
		log.Printf("pptransport: socket %d handshake failed: %v", s.descriptor, err)
		s.teardown()
		return
	}

	s.setState(StateRunning)
	if s.OnConnected != nil {
		s.OnConnected(s)
	}
	s.startEcho()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writerLoop()
	}()

	// echoPollInterval is deliberately finer-grained than any one
	// connection's echo_timeout, since the listener side only learns its
	// peer's timeout after the handshake completes (core spec §4.1.6).
	const echoPollInterval = 50 * time.Millisecond
	echoTicker := time.NewTicker(echoPollInterval)
	defer echoTicker.Stop()
	echoCh := echoTicker.C

	readErrCh := make(chan error, 1)
	msgCh := make(chan *ppmsg.Message, 16)
	go func() {
		for {
			m, err := s.readMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			msgCh <- m
		}
	}()

readLoop:
	for {
		select {
		case <-s.stopCh:
			break readLoop
		case err := <-readErrCh:
			if err != io.EOF {
				log.Printf("pptransport: socket %d read error: %v", s.descriptor, err)
			}
			break readLoop
		case m := <-msgCh:
			if !s.handleInbound(m) {
				break readLoop
			}
		case <-echoCh:
			s.checkEchoLiveness()
		}
	}

	s.setState(StateDraining)
	s.sendQueue.Close()
	<-writerDone
	s.teardown()
}

// writerLoop pulls messages off the priority queue and writes them until
// the queue is closed (core spec §4.1.7/§7).
func (s *Socket) writerLoop() {
	for {
		m, ok := s.sendQueue.Pop()
		if !ok {
			return
		}
		if err := s.writeMessage(m); err != nil {
			log.Printf("pptransport: socket %d write error: %v", s.descriptor, err)
			return
		}
	}
}

func (s *Socket) handshake() error {
	sig, err := s.exchangeSignature()
	if err != nil {
		return err
	}
	s.format = sig.Format
	s.encrypted = sig.Encrypted

	if s.encrypted {
		if err := s.exchangeKeys(); err != nil {
			return err
		}
	}
	return s.checkProtocolCompatibility()
}

// handleInbound dispatches one received message to the built-in protocol
// handlers of core spec §4.1.5/§6.5, falling through to OnMessage for
// anything application-level. A CloseConnection Command is answered with
// an empty Answer before the loop stops. Returns false to signal the read
// loop should stop (a close request or its answer arrived).
func (s *Socket) handleInbound(m *ppmsg.Message) bool {
	m.SocketDescriptor = s.descriptor
	m.SocketName = s.socketName
	m.SourcePoint = s.sourcePoint

	switch m.Command {
	case ppcommand.CloseConnection:
		if m.Type() == ppmsg.TypeCommand {
			s.Send(m.CloneForAnswer())
		}
		return false
	case ppcommand.EchoConnection:
		s.handleEchoInbound(m)
		return true
	case ppcommand.ProtocolCompatible:
		// Handshake-only command received again post-handshake; ignore.
		return true
	case ppcommand.Unknown:
		if original, ok := decodeUnknownPayload(m.Content); ok {
			s.markPeerUnknown(original)
		}
		return true
	}

	if !s.initiator && s.props.CheckUnknownCommands {
		if exists := s.props.Registry.Exists(m.Command); exists == ppcommand.NotExists {
			reply := m.CloneForAnswer()
			originalCommand := m.Command
			reply.Command = ppcommand.Unknown
			reply.SetExecStatus(ppmsg.ExecFailed)
			reply.SetContent(originalCommand[:], pptype.QBinary)
			s.Send(reply)
			return true
		}
	}

	if s.OnMessage != nil {
		s.OnMessage(s, m)
	}
	return true
}

// decodeUnknownPayload extracts the original CommandId an Unknown reply
// describes, encoded as its raw 16 bytes (core spec §4.1.5/§7).
func decodeUnknownPayload(content []byte) (pptype.CommandId, bool) {
	if len(content) != 16 {
		return pptype.CommandId{}, false
	}
	id, err := uuid.FromBytes(content)
	if err != nil {
		return pptype.CommandId{}, false
	}
	return id, true
}

func (s *Socket) teardown() {
	s.setState(StateClosed)
	_ = s.conn.Close()
	if s.OnDisconnected != nil {
		s.OnDisconnected(s)
	}
}

// Close requests a graceful shutdown by sending CloseConnection and then
// draining (core spec §4.1.7).
func (s *Socket) Close() {
	closeMsg := ppmsg.New(ppcommand.CloseConnection)
	s.Send(closeMsg)
	s.closeOnce.Do(func() { close(s.stopCh) })
}
