package ppserialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptype"
)

func TestQBinaryRoundTripFullMessage(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())
	m.ProtocolVersionLow = 1
	m.ProtocolVersionHigh = 3
	m.SetTags([]uint64{10, 20, 30})
	m.MaxTimeLife = 123456
	m.ProxyId = 77
	m.AccessId = []byte("access-token")
	m.SetContent([]byte(`{"hello":"world"}`), pptype.QBinary)
	m.Flags2 = 0xFF
	m.Flags = m.Flags.WithFlags2NotEmpty(true)

	encoded := EncodeQBinary(m)
	decoded, err := DecodeQBinary(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Id, decoded.Id)
	require.Equal(t, m.Command, decoded.Command)
	require.Equal(t, m.ProtocolVersionLow, decoded.ProtocolVersionLow)
	require.Equal(t, m.ProtocolVersionHigh, decoded.ProtocolVersionHigh)
	require.Equal(t, m.Tags, decoded.Tags)
	require.Equal(t, m.MaxTimeLife, decoded.MaxTimeLife)
	require.True(t, decoded.HasMaxTimeLife())
	require.Equal(t, m.ProxyId, decoded.ProxyId)
	require.Equal(t, m.AccessId, decoded.AccessId)
	require.Equal(t, m.Content, decoded.Content)
	require.Equal(t, pptype.QBinary, decoded.ContentFormat)
	require.Equal(t, m.Flags2, decoded.Flags2)
}

func TestQBinaryRoundTripMinimalMessage(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())

	encoded := EncodeQBinary(m)
	decoded, err := DecodeQBinary(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Id, decoded.Id)
	require.Equal(t, m.Command, decoded.Command)
	require.False(t, decoded.HasMaxTimeLife())
	require.Equal(t, uint64(ppmsg.NoMaxTimeLife), decoded.MaxTimeLife)
	require.Empty(t, decoded.Tags)
	require.Empty(t, decoded.Content)
	require.Zero(t, decoded.ProxyId)
}

func TestQBinaryDecodeIgnoresVersionsNewerThanReaderKnows(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())
	encoded := EncodeQBinary(m)

	// Append a second chunk, as a writer on a newer schema would.
	encoded[0]++
	encoded = append(encoded, 0, 0, 0, 3, 'n', 'e', 'w')

	decoded, err := DecodeQBinary(encoded)
	require.NoError(t, err)
	require.Equal(t, m.Id, decoded.Id)
}
