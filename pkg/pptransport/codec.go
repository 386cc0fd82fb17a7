package pptransport

import (
	"fmt"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize"
	"github.com/zentalk/pproto/pkg/pptype"
)

// encode serializes m per the socket's negotiated format (core spec §4.2).
func (s *Socket) encode(m *ppmsg.Message) ([]byte, error) {
	switch s.format {
	case pptype.Json:
		return ppserialize.EncodeJSON(m, s.props.MessageWebFlags)
	default:
		return ppserialize.EncodeQBinary(m), nil
	}
}

func (s *Socket) decode(body []byte) (*ppmsg.Message, error) {
	switch s.format {
	case pptype.Json:
		return ppserialize.DecodeJSON(body)
	default:
		return ppserialize.DecodeQBinary(body)
	}
}

// writeMessage serializes, optionally compresses, optionally encrypts and
// writes m as one frame (core spec §4.1.5/§4.1.7).
func (s *Socket) writeMessage(m *ppmsg.Message) error {
	body, err := s.encode(m)
	if err != nil {
		return fmt.Errorf("pptransport: encode: %w", err)
	}

	compressed := false
	if s.props.CompressionLevel != 0 && len(body) > s.props.CompressionSize {
		zipped, err := zipCompress(body, clampCompressionLevel(s.props.CompressionLevel))
		if err != nil {
			return fmt.Errorf("pptransport: compress: %w", err)
		}
		body, compressed = zipped, true
	}

	if s.encrypted {
		err = writeEncryptedFrame(s.conn, s.shared, compressed, body)
	} else {
		err = writeFrame(s.conn, body, compressed)
	}
	if err == nil {
		s.messagesSent.Add(1)
	}
	return err
}

// readMessage reads one frame, decrypts/decompresses as needed, and
// decodes it into a Message.
func (s *Socket) readMessage() (*ppmsg.Message, error) {
	var body []byte
	var compressed bool
	var err error

	if s.encrypted {
		compressed, body, err = readEncryptedFrame(s.conn, s.shared)
	} else {
		body, compressed, err = readFrame(s.conn)
	}
	if err != nil {
		return nil, err
	}
	if compressed {
		if body, err = zipDecompress(body); err != nil {
			return nil, fmt.Errorf("pptransport: decompress: %w", err)
		}
	}
	m, err := s.decode(body)
	if err == nil {
		s.messagesReceived.Add(1)
	}
	return m, err
}
