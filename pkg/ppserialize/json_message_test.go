package ppserialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptype"
)

func TestJSONRoundTripFullMessage(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())
	m.ProtocolVersionLow = 2
	m.ProtocolVersionHigh = 4
	m.SetTags([]uint64{1, 2, 3})
	m.MaxTimeLife = 999
	m.ProxyId = 55
	m.AccessId = []byte("token")
	m.SetContent([]byte(`{"x":1}`), pptype.Json)

	encoded, err := EncodeJSON(m, false)
	require.NoError(t, err)

	decoded, err := DecodeJSON(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Id, decoded.Id)
	require.Equal(t, m.Command, decoded.Command)
	require.Equal(t, m.ProtocolVersionLow, decoded.ProtocolVersionLow)
	require.Equal(t, m.ProtocolVersionHigh, decoded.ProtocolVersionHigh)
	require.Equal(t, m.Tags, decoded.Tags)
	require.True(t, decoded.HasMaxTimeLife())
	require.Equal(t, m.MaxTimeLife, decoded.MaxTimeLife)
	require.Equal(t, m.ProxyId, decoded.ProxyId)
	require.Equal(t, pptype.Json, decoded.ContentFormat)
}

func TestJSONRoundTripMinimalMessageOmitsOptionalMembers(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())

	encoded, err := EncodeJSON(m, false)
	require.NoError(t, err)
	require.NotContains(t, string(encoded), "maxTimeLife")
	require.NotContains(t, string(encoded), "tags")

	decoded, err := DecodeJSON(encoded)
	require.NoError(t, err)
	require.False(t, decoded.HasMaxTimeLife())
	require.Empty(t, decoded.Tags)
}

func TestJSONDecodeFailsOnMissingMandatoryMember(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"command":"00000000-0000-0000-0000-000000000000"}`))
	require.Error(t, err)
}

func TestJSONWebFlagsRoundTripWhenRequested(t *testing.T) {
	m := ppmsg.New(pptype.NewMessageId())
	encoded, err := EncodeJSON(m, true)
	require.NoError(t, err)
	require.Contains(t, string(encoded), "webFlags")

	decoded, err := DecodeJSON(encoded)
	require.NoError(t, err)
	require.Equal(t, m.Type(), decoded.Type())
}
