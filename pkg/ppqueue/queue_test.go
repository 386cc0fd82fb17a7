package ppqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptype"
)

func newMsg(p ppmsg.Priority) *ppmsg.Message {
	m := ppmsg.New(pptype.NewMessageId())
	m.SetPriority(p)
	return m
}

func TestHighAlwaysWinsOverNormalAndLow(t *testing.T) {
	q := New(nil)
	q.Send(newMsg(ppmsg.PriorityLow))
	q.Send(newMsg(ppmsg.PriorityNormal))
	high := newMsg(ppmsg.PriorityHigh)
	q.Send(high)

	got, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, high.Id, got.Id)
}

func TestNormalBurstThenLowGetsATurn(t *testing.T) {
	q := New(nil)
	for i := 0; i < normalBurst+2; i++ {
		q.Send(newMsg(ppmsg.PriorityNormal))
	}
	low := newMsg(ppmsg.PriorityLow)
	q.Send(low)

	var priorities []ppmsg.Priority
	for i := 0; i < normalBurst+1; i++ {
		m, ok := q.Pop()
		require.True(t, ok)
		priorities = append(priorities, m.Priority())
	}
	for i := 0; i < normalBurst; i++ {
		require.Equal(t, ppmsg.PriorityNormal, priorities[i])
	}
	require.Equal(t, ppmsg.PriorityLow, priorities[normalBurst])
}

func TestFIFOOrderWithinPriority(t *testing.T) {
	q := New(nil)
	first := newMsg(ppmsg.PriorityNormal)
	second := newMsg(ppmsg.PriorityNormal)
	q.Send(first)
	q.Send(second)

	got1, _ := q.Pop()
	got2, _ := q.Pop()
	require.Equal(t, first.Id, got1.Id)
	require.Equal(t, second.Id, got2.Id)
}

func TestCloseUnblocksPopAfterDrainingBacklog(t *testing.T) {
	q := New(nil)
	q.Send(newMsg(ppmsg.PriorityNormal))
	q.Close()

	_, ok := q.Pop()
	require.True(t, ok, "backlog must drain before Pop reports closed")

	_, ok = q.Pop()
	require.False(t, ok)
}

type rejectAll struct{}

func (rejectAll) PeerUnknown(pptype.CommandId) bool { return true }

func TestSendRejectsPeerUnknownCommand(t *testing.T) {
	q := New(rejectAll{})
	ok := q.Send(newMsg(ppmsg.PriorityNormal))
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

func TestRemoveDeletesMatchingCommandFromAllBuckets(t *testing.T) {
	q := New(nil)
	target := pptype.NewMessageId()
	for _, p := range []ppmsg.Priority{ppmsg.PriorityHigh, ppmsg.PriorityNormal, ppmsg.PriorityLow} {
		m := ppmsg.New(target)
		m.SetPriority(p)
		q.Send(m)
	}
	q.Remove(target)
	require.Equal(t, 0, q.Len())
}

func TestPopBlocksUntilSend(t *testing.T) {
	q := New(nil)
	done := make(chan *ppmsg.Message, 1)
	go func() {
		m, _ := q.Pop()
		done <- m
	}()

	time.Sleep(20 * time.Millisecond)
	sent := newMsg(ppmsg.PriorityNormal)
	q.Send(sent)

	select {
	case got := <-done:
		require.Equal(t, sent.Id, got.Id)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Send")
	}
}
