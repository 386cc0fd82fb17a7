package pptransport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize"
	"github.com/zentalk/pproto/pkg/pptype"
)

func testProps(registry *ppcommand.Registry) Properties {
	p := DefaultProperties()
	p.Registry = registry
	return p
}

// connectedPair dials a loopback TCP listener and returns both ends started
// and past OnConnected, using fresh per-test registries so the global
// ppcommand.Default is never mutated by these tests.
func connectedPair(t *testing.T, clientProps, serverProps Properties) (client, server *Socket, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serverCh := make(chan *Socket, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewAccepted(conn, serverProps)
		serverCh <- s
	}()

	c, err := Dial("tcp", ln.Addr().String(), clientProps)
	require.NoError(t, err)

	s := <-serverCh

	clientConnected := make(chan struct{})
	serverConnected := make(chan struct{})
	c.OnConnected = func(*Socket) { close(clientConnected) }
	s.OnConnected = func(*Socket) { close(serverConnected) }

	c.Start()
	s.Start()

	select {
	case <-clientConnected:
	case <-time.After(3 * time.Second):
		t.Fatal("client never connected")
	}
	select {
	case <-serverConnected:
	case <-time.After(3 * time.Second):
		t.Fatal("server never connected")
	}

	return c, s, func() {
		c.Close()
		s.Close()
		_ = ln.Close()
	}
}

func TestHandshakeAndMessageRoundTripUnencrypted(t *testing.T) {
	reg := ppcommand.NewRegistry()
	cmd := pptype.NewMessageId()
	reg.Register(cmd, "Greet", false)

	props := testProps(reg)
	c, s, cleanup := connectedPair(t, props, props)
	defer cleanup()

	received := make(chan *ppmsg.Message, 1)
	s.OnMessage = func(_ *Socket, m *ppmsg.Message) { received <- m }

	m := ppmsg.New(cmd)
	m.SetContent([]byte("hello"), pptype.QBinary)
	require.True(t, c.Send(m))

	select {
	case got := <-received:
		require.Equal(t, cmd, got.Command)
		require.Equal(t, []byte("hello"), got.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestHandshakeEncryptedRoundTrip(t *testing.T) {
	reg := ppcommand.NewRegistry()
	cmd := pptype.NewMessageId()
	reg.Register(cmd, "Secret", false)

	props := testProps(reg)
	props.Encrypted = true
	c, s, cleanup := connectedPair(t, props, props)
	defer cleanup()

	received := make(chan *ppmsg.Message, 1)
	s.OnMessage = func(_ *Socket, m *ppmsg.Message) { received <- m }

	m := ppmsg.New(cmd)
	m.SetContent([]byte("top secret payload"), pptype.QBinary)
	require.True(t, c.Send(m))

	select {
	case got := <-received:
		require.Equal(t, []byte("top secret payload"), got.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the encrypted message")
	}
}

func TestCompressedMessageAboveThresholdRoundTrips(t *testing.T) {
	reg := ppcommand.NewRegistry()
	cmd := pptype.NewMessageId()
	reg.Register(cmd, "Bulk", false)

	props := testProps(reg)
	props.CompressionSize = 64
	c, s, cleanup := connectedPair(t, props, props)
	defer cleanup()

	received := make(chan *ppmsg.Message, 1)
	s.OnMessage = func(_ *Socket, m *ppmsg.Message) { received <- m }

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 7)
	}
	m := ppmsg.New(cmd)
	m.SetContent(big, pptype.QBinary)
	require.True(t, c.Send(m))

	select {
	case got := <-received:
		require.Equal(t, big, got.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the large message")
	}
}

func TestProtocolIncompatibilityPreventsConnection(t *testing.T) {
	reg := ppcommand.NewRegistry()
	clientProps := testProps(reg)
	clientProps.ProtocolVersionLow, clientProps.ProtocolVersionHigh = 1, 1
	serverProps := testProps(reg)
	serverProps.ProtocolVersionLow, serverProps.ProtocolVersionHigh = 5, 9

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDisconnected := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewAccepted(conn, serverProps)
		s.OnDisconnected = func(*Socket) { close(serverDisconnected) }
		s.Start()
	}()

	c, err := Dial("tcp", ln.Addr().String(), clientProps)
	require.NoError(t, err)
	clientDisconnected := make(chan struct{})
	c.OnDisconnected = func(*Socket) { close(clientDisconnected) }
	c.Start()

	select {
	case <-clientDisconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("incompatible client never disconnected")
	}
	select {
	case <-serverDisconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("incompatible server never disconnected")
	}
}

func TestUnknownCommandMechanismTracksPeerUnknown(t *testing.T) {
	clientReg := ppcommand.NewRegistry()
	unregistered := pptype.NewMessageId()

	serverReg := ppcommand.NewRegistry()
	// Server deliberately does not register `unregistered`.

	c, s, cleanup := connectedPair(t, testProps(clientReg), testProps(serverReg))
	defer cleanup()

	m := ppmsg.New(unregistered)
	require.True(t, c.Send(m))

	require.Eventually(t, func() bool {
		return c.PeerUnknown(unregistered)
	}, 3*time.Second, 10*time.Millisecond)

	ok := c.Send(ppmsg.New(unregistered))
	require.False(t, ok, "Send must reject a command already known to be unrecognized by the peer")
	_ = s
}

func TestEchoLivenessFiresOnEchoAnswered(t *testing.T) {
	reg := ppcommand.NewRegistry()
	props := testProps(reg)
	props.EchoTimeoutMS = 50

	c, s, cleanup := connectedPair(t, props, props)
	defer cleanup()

	answered := make(chan struct{}, 1)
	c.OnEchoAnswered = func(*Socket) {
		select {
		case answered <- struct{}{}:
		default:
		}
	}

	select {
	case <-answered:
	case <-time.After(3 * time.Second):
		t.Fatal("echo was never answered")
	}
	_ = s
}

func TestEchoLivenessTimeoutSynthesizesLocalEvent(t *testing.T) {
	reg := ppcommand.NewRegistry()
	clientProps := testProps(reg)
	clientProps.EchoTimeoutMS = 50
	serverProps := testProps(reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn <- conn
	}()

	c, err := Dial("tcp", ln.Addr().String(), clientProps)
	require.NoError(t, err)

	synthesized := make(chan *ppmsg.Message, 1)
	c.OnMessage = func(_ *Socket, m *ppmsg.Message) {
		select {
		case synthesized <- m:
		default:
		}
	}
	clientDisconnected := make(chan struct{})
	c.OnDisconnected = func(*Socket) { close(clientDisconnected) }
	c.Start()

	// Accept the connection and perform the handshake manually without ever
	// answering an echo, simulating a listener that stops responding
	// (core spec's concrete echo-liveness scenario).
	conn := <-serverConn
	defer conn.Close()

	mySig := ppcommand.Signature(serverProps.MessageFormat, serverProps.Encrypted)
	var peerSigBytes [16]byte
	_, err = io.ReadFull(conn, peerSigBytes[:])
	require.NoError(t, err)
	_, err = conn.Write(mySig[:])
	require.NoError(t, err)

	mine := ppmsg.New(ppcommand.ProtocolCompatible)
	mine.ProtocolVersionLow, mine.ProtocolVersionHigh = serverProps.ProtocolVersionLow, serverProps.ProtocolVersionHigh
	require.NoError(t, writeFrame(conn, ppserialize.EncodeQBinary(mine), false))

	peerBody, _, err := readFrame(conn)
	require.NoError(t, err)
	peer, err := ppserialize.DecodeQBinary(peerBody)
	require.NoError(t, err)
	require.Equal(t, ppcommand.ProtocolCompatible, peer.Command)

	// Read (and discard) the client's first echo probe, then go silent.
	_, _, err = readFrame(conn)
	require.NoError(t, err)

	select {
	case got := <-synthesized:
		require.Equal(t, ppcommand.EchoConnection, got.Command)
		require.Equal(t, ppmsg.TypeEvent, got.Type())
	case <-time.After(3 * time.Second):
		t.Fatal("client never synthesized a local EchoConnection event on liveness timeout")
	}

	select {
	case <-clientDisconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("client never closed after the liveness timeout")
	}
}

func TestSignatureMismatchListenerEchoesZeroAndCloses(t *testing.T) {
	reg := ppcommand.NewRegistry()
	props := testProps(reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDisconnected := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewAccepted(conn, props)
		s.OnDisconnected = func(*Socket) { close(serverDisconnected) }
		s.Start()
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 3*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	var bogus [16]byte
	for i := range bogus {
		bogus[i] = 0xFF
	}
	_, err = conn.Write(bogus[:])
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	var resp [16]byte
	_, err = io.ReadFull(conn, resp[:])
	require.NoError(t, err)
	require.Equal(t, uuid.Nil[:], resp[:], "listener must echo an all-zero UUID on signature mismatch")

	select {
	case <-serverDisconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("listener never closed after rejecting the mismatched signature")
	}
}

func TestProtocolIncompatibilitySendsCloseConnectionWithErrorCode(t *testing.T) {
	reg := ppcommand.NewRegistry()
	serverProps := testProps(reg)
	serverProps.ProtocolVersionLow, serverProps.ProtocolVersionHigh = 5, 9

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewAccepted(conn, serverProps)
		s.Start()
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 3*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	mySig := ppcommand.Signature(serverProps.MessageFormat, false)
	_, err = conn.Write(mySig[:])
	require.NoError(t, err)

	var echoed [16]byte
	_, err = io.ReadFull(conn, echoed[:])
	require.NoError(t, err)
	require.Equal(t, mySig[:], echoed[:])

	mine := ppmsg.New(ppcommand.ProtocolCompatible)
	mine.ProtocolVersionLow, mine.ProtocolVersionHigh = 1, 1
	require.NoError(t, writeFrame(conn, ppserialize.EncodeQBinary(mine), false))

	peerBody, _, err := readFrame(conn)
	require.NoError(t, err)
	peer, err := ppserialize.DecodeQBinary(peerBody)
	require.NoError(t, err)
	require.Equal(t, ppcommand.ProtocolCompatible, peer.Command)

	closeBody, _, err := readFrame(conn)
	require.NoError(t, err)
	closeMsg, err := ppserialize.DecodeQBinary(closeBody)
	require.NoError(t, err)
	require.Equal(t, ppcommand.CloseConnection, closeMsg.Command)
	require.Equal(t, ppmsg.ExecError, closeMsg.ExecStatus())

	_, code, desc, err := ppserialize.DecodeMessageError(closeMsg.Content)
	require.NoError(t, err)
	require.Equal(t, [16]byte(ppmsg.ErrCodeProtocolIncompatible), code)
	require.Contains(t, desc, "peer=[1,1]")
	require.Contains(t, desc, "local=[5,9]")
}
