package pptype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostPointIsNull(t *testing.T) {
	require.True(t, NullHostPoint.IsNull())
	require.False(t, HostPoint{Address: "1.2.3.4", Port: 80}.IsNull())
}

func TestHostPointString(t *testing.T) {
	require.Equal(t, "<null>", NullHostPoint.String())
	require.Equal(t, "1.2.3.4:80", HostPoint{Address: "1.2.3.4", Port: 80}.String())
}

func TestSocketTypeString(t *testing.T) {
	require.Equal(t, "local", SocketLocal.String())
	require.Equal(t, "tcp", SocketTcp.String())
	require.Equal(t, "udp", SocketUdp.String())
	require.Equal(t, "unknown", SocketUnknown.String())
}

func TestNewMessageIdIsUnique(t *testing.T) {
	require.NotEqual(t, NewMessageId(), NewMessageId())
}
