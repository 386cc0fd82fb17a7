package ppmsg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/pptype"
)

func TestNewMessageDefaults(t *testing.T) {
	cmd := pptype.NewMessageId()
	m := New(cmd)

	require.Equal(t, cmd, m.Command)
	require.Equal(t, TypeCommand, m.Type())
	require.Equal(t, PriorityNormal, m.Priority())
	require.Equal(t, ExecUnknown, m.ExecStatus())
	require.Equal(t, uint64(NoMaxTimeLife), m.MaxTimeLife)
	require.False(t, m.HasMaxTimeLife())
	require.Equal(t, pptype.NoSocketDescriptor, m.SocketDescriptor)
}

func TestNewEventType(t *testing.T) {
	m := NewEvent(pptype.NewMessageId())
	require.Equal(t, TypeEvent, m.Type())
}

func TestSetTagsTruncatesAt255(t *testing.T) {
	m := New(pptype.NewMessageId())
	tags := make([]uint64, 300)
	for i := range tags {
		tags[i] = uint64(i)
	}
	m.SetTags(tags)
	require.Len(t, m.Tags, maxTags)
}

func TestCloneForAnswerPreservesIdentityAndClearsContent(t *testing.T) {
	m := New(pptype.NewMessageId())
	m.SetContent([]byte("hello"), pptype.QBinary)
	m.SetTags([]uint64{1, 2, 3})
	m.MaxTimeLife = 42
	m.DestinationPoints = []pptype.HostPoint{{Address: "1.2.3.4", Port: 80}}

	answer := m.CloneForAnswer()

	require.Equal(t, m.Id, answer.Id)
	require.Equal(t, m.Command, answer.Command)
	require.Equal(t, m.Tags, answer.Tags)
	require.Equal(t, uint64(42), answer.MaxTimeLife)
	require.Equal(t, TypeAnswer, answer.Type())
	require.Equal(t, ExecSuccess, answer.ExecStatus())
	require.Equal(t, CompressNone, answer.Compression())
	require.Empty(t, answer.Content)
	require.False(t, answer.Flags.ContentNotEmpty())
	require.Nil(t, answer.DestinationPoints)
}

func TestSetContentUpdatesNotEmptyBitAndFormat(t *testing.T) {
	m := New(pptype.NewMessageId())
	require.False(t, m.Flags.ContentNotEmpty())

	m.SetContent([]byte("payload"), pptype.Json)
	require.True(t, m.Flags.ContentNotEmpty())
	require.Equal(t, pptype.Json, m.Flags.ContentFormat())

	m.SetContent(nil, pptype.Json)
	require.False(t, m.Flags.ContentNotEmpty())
}

func TestIsStale(t *testing.T) {
	m := New(pptype.NewMessageId())
	require.False(t, m.IsStale(1_000_000))

	m.MaxTimeLife = 100
	require.False(t, m.IsStale(100))
	require.True(t, m.IsStale(101))
}

func TestMarkProcessedIsSingleFire(t *testing.T) {
	m := New(pptype.NewMessageId())
	require.True(t, m.MarkProcessed())
	require.False(t, m.MarkProcessed())
	require.True(t, m.Processed())
}
