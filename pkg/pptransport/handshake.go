package pptransport

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppcrypto"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize"
	"github.com/zentalk/pproto/pkg/pptype"
)

// signatureResult reports what the negotiated protocol signature selected.
type signatureResult struct {
	Format    pptype.SerializeFormat
	Encrypted bool
}

// connectTimeout bounds Dial's initial TCP/UNIX connect.
const connectTimeout = 10 * time.Second

// Handshake step deadlines; a peer that never answers is assumed dead
// (core spec §4.1.2/§4.1.4). The signature exchange is asymmetric: the
// listener-side socket only allows 3 seconds to read the initiator's
// signature, while the initiator allows 6 seconds for the listener's
// echoed response.
const (
	listenerSignatureTimeout  = 3 * time.Second
	initiatorSignatureTimeout = 6 * time.Second
	signatureRejectGrace      = 200 * time.Millisecond
	keyExchangeTimeout        = 6 * time.Second
	compatTimeout             = 6 * time.Second
)

// keyHeaderSize is [u16 length][u16 reserved][32-byte public key].
const keyHeaderSize = 2 + 2 + ppcrypto.KeySize

// exchangeSignature performs the 16-byte protocol signature exchange of
// core spec §4.1.2. The initiator sends its chosen signature and waits
// for the listener to echo it back (or an all-zero UUID on rejection).
// The listener-side socket reads the initiator's signature, selects the
// matching (format, encrypted) row, and either echoes it back to confirm
// or, on no match (or only_encrypted rejecting an unencrypted offer),
// echoes back an all-zero UUID and closes after a short grace period.
func (s *Socket) exchangeSignature() (signatureResult, error) {
	s.setState(StateSignatureExchange)

	mySig := ppcommand.Signature(s.props.MessageFormat, s.props.Encrypted)

	if s.initiator {
		return s.exchangeSignatureAsInitiator(mySig)
	}
	return s.exchangeSignatureAsListener()
}

func (s *Socket) exchangeSignatureAsInitiator(mySig uuid.UUID) (signatureResult, error) {
	_ = s.conn.SetDeadline(time.Now().Add(initiatorSignatureTimeout))
	defer s.conn.SetDeadline(time.Time{})

	if _, err := s.conn.Write(mySig[:]); err != nil {
		return signatureResult{}, err
	}

	var peerSigBytes [16]byte
	if _, err := io.ReadFull(s.conn, peerSigBytes[:]); err != nil {
		return signatureResult{}, err
	}
	peerSig, err := uuid.FromBytes(peerSigBytes[:])
	if err != nil {
		return signatureResult{}, err
	}
	if peerSig == uuid.Nil {
		return signatureResult{}, fmt.Errorf("pptransport: listener rejected protocol signature %s", mySig)
	}
	if peerSig != mySig {
		return signatureResult{}, fmt.Errorf("pptransport: signature echo mismatch: local=%s peer=%s", mySig, peerSig)
	}
	return signatureResult{Format: s.props.MessageFormat, Encrypted: s.props.Encrypted}, nil
}

func (s *Socket) exchangeSignatureAsListener() (signatureResult, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(listenerSignatureTimeout))

	var peerSigBytes [16]byte
	_, readErr := io.ReadFull(s.conn, peerSigBytes[:])
	_ = s.conn.SetReadDeadline(time.Time{})
	if readErr != nil {
		return signatureResult{}, readErr
	}

	peerSig, err := uuid.FromBytes(peerSigBytes[:])
	if err != nil {
		return signatureResult{}, err
	}

	format, encrypted, ok := ppcommand.SignatureLookup(peerSig)
	if !ok || (s.props.OnlyEncrypted && !encrypted) {
		log.Printf("pptransport: socket %d incompatible serialize signatures", s.descriptor)
		_, _ = s.conn.Write(uuid.Nil[:])
		time.Sleep(signatureRejectGrace)
		return signatureResult{}, fmt.Errorf("pptransport: incompatible serialize signatures: peer offered %s", peerSig)
	}

	if _, err := s.conn.Write(peerSig[:]); err != nil {
		return signatureResult{}, err
	}
	return signatureResult{Format: format, Encrypted: encrypted}, nil
}

// exchangeKeys performs the Curve25519 key exchange of core spec §4.1.3:
// each side sends [u16 length][u16 reserved=0][32-byte public key], then
// precomputes the shared "before-nm" key via nacl/box.
func (s *Socket) exchangeKeys() error {
	s.setState(StateKeyExchange)
	_ = s.conn.SetDeadline(time.Now().Add(keyExchangeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	pub, priv, err := ppcrypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	var out [keyHeaderSize]byte
	binary.BigEndian.PutUint16(out[0:2], uint16(ppcrypto.KeySize))
	binary.BigEndian.PutUint16(out[2:4], 0)
	copy(out[4:], pub[:])

	errCh := make(chan error, 1)
	go func() {
		_, err := s.conn.Write(out[:])
		errCh <- err
	}()

	var in [keyHeaderSize]byte
	_, readErr := io.ReadFull(s.conn, in[:])
	writeErr := <-errCh
	if writeErr != nil {
		return writeErr
	}
	if readErr != nil {
		return readErr
	}

	length := binary.BigEndian.Uint16(in[0:2])
	if int(length) != ppcrypto.KeySize {
		return fmt.Errorf("pptransport: peer key exchange length %d, want %d", length, ppcrypto.KeySize)
	}
	var peerPub [ppcrypto.KeySize]byte
	copy(peerPub[:], in[4:])

	s.shared = ppcrypto.Precompute(&peerPub, priv)
	return nil
}

// checkProtocolCompatibility performs the version-window negotiation of
// core spec §4.1.4: both sides send their own ProtocolCompatible message
// (carrying ProtocolVersionLow/High in the header fields already present
// on every message), then compare windows for any overlap. On mismatch
// the receiver sends command::CloseConnection carrying a MessageError
// with the well-known protocol_incompatible code and a description
// naming both windows, then transitions to Draining.
func (s *Socket) checkProtocolCompatibility() error {
	s.setState(StateProtocolCompatibilityCheck)

	mine := ppmsg.New(ppcommand.ProtocolCompatible)
	mine.ProtocolVersionLow = s.props.ProtocolVersionLow
	mine.ProtocolVersionHigh = s.props.ProtocolVersionHigh

	if err := s.writeMessage(mine); err != nil {
		return err
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(compatTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	peer, err := s.readMessage()
	if err != nil {
		return err
	}
	if peer.Command != ppcommand.ProtocolCompatible {
		return fmt.Errorf("pptransport: expected protocolCompatible handshake message, got %s", peer.Command)
	}
	s.peerProtoLow, s.peerProtoHigh = peer.ProtocolVersionLow, peer.ProtocolVersionHigh

	if !s.props.CheckProtocolCompatibility {
		return nil
	}
	if peer.ProtocolVersionHigh < s.props.ProtocolVersionLow || peer.ProtocolVersionLow > s.props.ProtocolVersionHigh {
		desc := fmt.Sprintf("local=[%d,%d] peer=[%d,%d]",
			s.props.ProtocolVersionLow, s.props.ProtocolVersionHigh, peer.ProtocolVersionLow, peer.ProtocolVersionHigh)

		failure := ppmsg.New(ppcommand.CloseConnection)
		failure.SetExecStatus(ppmsg.ExecError)
		content := ppserialize.EncodeMessageError(0, [16]byte(ppmsg.ErrCodeProtocolIncompatible), desc)
		failure.SetContent(content, pptype.QBinary)
		_ = s.writeMessage(failure)

		s.setState(StateDraining)
		return fmt.Errorf("pptransport: protocol incompatible: %s", desc)
	}
	return nil
}
