// Package ppqueue implements the per-socket three-priority send queue and
// its weighted fair scheduler (core spec §4.3).
package ppqueue

import (
	"container/list"
	"log"
	"sync"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptype"
)

// normalBurst is how many consecutive Normal-priority messages are sent
// before Low gets a turn, giving Normal a 5-to-1 weighting over Low
// without starving either (core spec §4.3).
const normalBurst = 5

// UnknownChecker reports whether the peer is known not to understand a
// given command, so Send can reject it before it is ever queued (core spec
// §4.3/§7 "peer-unknown-command").
type UnknownChecker interface {
	PeerUnknown(id pptype.CommandId) bool
}

// Queue is a per-socket send queue: three FIFOs (High, Normal, Low) behind
// one mutex/condition variable, selected by the weighted policy of core
// spec §4.3.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	high        *list.List
	normal      *list.List
	low         *list.List
	normalCount int
	closed      bool
	peerUnknown UnknownChecker
}

// New returns an empty Queue. peerUnknown may be nil, in which case Send
// never rejects on that ground.
func New(peerUnknown UnknownChecker) *Queue {
	q := &Queue{
		high:        list.New(),
		normal:      list.New(),
		low:         list.New(),
		peerUnknown: peerUnknown,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send enqueues m by its priority. Returns false (and logs at error level)
// if the socket already knows its peer doesn't understand m.Command, or if
// the queue has been closed.
func (q *Queue) Send(m *ppmsg.Message) bool {
	if q.peerUnknown != nil && q.peerUnknown.PeerUnknown(m.Command) {
		log.Printf("ppqueue: dropping send of command %s: peer does not know it", m.Command)
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Printf("ppqueue: dropping send of command %s: queue closed", m.Command)
		return false
	}
	switch m.Priority() {
	case ppmsg.PriorityHigh:
		q.high.PushBack(m)
	case ppmsg.PriorityLow:
		q.low.PushBack(m)
	default:
		q.normal.PushBack(m)
	}
	q.cond.Signal()
	return true
}

// Remove deletes every queued message whose command equals id, scanning
// all three FIFOs (core spec §4.3).
func (q *Queue) Remove(id pptype.CommandId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range []*list.List{q.high, q.normal, q.low} {
		removeMatching(l, id)
	}
}

func removeMatching(l *list.List, id pptype.CommandId) {
	for e := l.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*ppmsg.Message).Command == id {
			l.Remove(e)
		}
		e = next
	}
}

// Pop selects and removes the next message per the scheduler policy:
// High first; then Normal up to normalBurst times in a row; then Low once
// and the burst counter resets; if the preferred bucket is empty it falls
// through to the next eligible one. Pop blocks until a message is
// available or the queue is closed, in which case it returns (nil, false).
func (q *Queue) Pop() (*ppmsg.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if m := q.popLocked(); m != nil {
			return m, true
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

// TryPop is Pop's non-blocking variant: it returns false at once when all
// three queues are empty. The socket engine's writer uses the blocking Pop.
func (q *Queue) TryPop() (*ppmsg.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if m := q.popLocked(); m != nil {
		return m, true
	}
	return nil, false
}

func (q *Queue) popLocked() *ppmsg.Message {
	if q.high.Len() > 0 {
		return popFront(q.high)
	}
	if q.normal.Len() > 0 && q.normalCount < normalBurst {
		q.normalCount++
		return popFront(q.normal)
	}
	q.normalCount = 0
	if q.low.Len() > 0 {
		return popFront(q.low)
	}
	if q.normal.Len() > 0 {
		return popFront(q.normal)
	}
	return nil
}

func popFront(l *list.List) *ppmsg.Message {
	e := l.Front()
	l.Remove(e)
	return e.Value.(*ppmsg.Message)
}

// Close marks the queue closed and wakes every blocked Pop/cond.Wait.
// Already-queued messages are still returned by subsequent Pop calls in
// priority order; Pop only reports (nil, false) once both closed and
// empty, so a writer loop drains the backlog before exiting.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the total number of messages across all three priorities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.high.Len() + q.normal.Len() + q.low.Len()
}
