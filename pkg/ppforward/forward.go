// Package ppforward implements the optional two-point command/answer
// relay of core spec §4.6. It has no teacher equivalent (the teacher's
// relay is a full mesh, not a two-endpoint forwarder), so its shape is
// grounded directly on the core spec's description.
package ppforward

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize"
	"github.com/zentalk/pproto/pkg/pptransport"
	"github.com/zentalk/pproto/pkg/pptype"
)

// defaultExpiry is the fallback record lifetime when a forwarded Command
// carries NoMaxTimeLife (core spec §4.6 "max_time_life or now+10s").
const defaultExpiry = 10 * time.Second

// forwarderErrorGroup namespaces MessageError.Group for errors this
// package synthesizes itself, distinct from application error groups.
const forwarderErrorGroup = -1

// Error codes for the two failure paths core spec §4.6 describes; these
// have no well-known UUID in the core spec (only protocol_incompatible
// and the parse errors are normative there), so they are minted locally.
var (
	errCodeMissingPeer = uuid.MustParse("7c9f9a8a-7f14-4a0d-9a7a-5e6f7c9a1b2c")
	errCodeAnswerTimeout = uuid.MustParse("9e2d9a52-0f2f-4b3c-8f3e-1a2b3c4d5e6f")
)

type pendingRecord struct {
	id         pptype.MessageId
	expiryUnix uint64
}

// Point is one named endpoint of the forwarder: an optional socket and a
// FIFO of messages it has forwarded that are still awaiting an answer.
type Point struct {
	Name   string
	Socket *pptransport.Socket

	mu      sync.Mutex
	pending []pendingRecord
}

// Forwarder relays Command/Answer/Event messages between exactly two
// Points, gated by a per-command allow-set (core spec §4.6).
type Forwarder struct {
	A, B *Point

	mu       sync.Mutex
	allowed  map[pptype.CommandId]bool
	nowUnix  func() uint64
}

// New returns a Forwarder between named points a and b. nowUnix defaults
// to the real wall clock; tests may override it.
func New(nameA, nameB string) *Forwarder {
	return &Forwarder{
		A:       &Point{Name: nameA},
		B:       &Point{Name: nameB},
		allowed: make(map[pptype.CommandId]bool),
		nowUnix: func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Allow adds command to the forwarding allow-set.
func (f *Forwarder) Allow(command pptype.CommandId) {
	f.mu.Lock()
	f.allowed[command] = true
	f.mu.Unlock()
}

func (f *Forwarder) isAllowed(command pptype.CommandId) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed[command]
}

// Forward relays m from whichever Point's socket descriptor matches
// m.SocketDescriptor to the other Point, per the rules of core spec §4.6.
// Returns false if the command isn't allowed or no source point matched.
func (f *Forwarder) Forward(m *ppmsg.Message) bool {
	if !f.isAllowed(m.Command) {
		return false
	}

	src, dst := f.resolve(m.SocketDescriptor)
	if src == nil {
		return false
	}
	src.sweep(f.nowUnix())
	dst.sweep(f.nowUnix())

	if dst.Socket == nil {
		f.replyMissingPeer(src, m, dst.Name)
		return false
	}

	switch m.Type() {
	case ppmsg.TypeEvent:
		dst.Socket.Send(m)
		return true
	case ppmsg.TypeCommand:
		expiry := m.MaxTimeLife
		if !m.HasMaxTimeLife() {
			expiry = f.nowUnix() + uint64(defaultExpiry.Seconds())
		}
		src.recordPending(m.Id, expiry)
		dst.Socket.Send(m)
		return true
	case ppmsg.TypeAnswer:
		if dst.takePending(m.Id) {
			dst.Socket.Send(m)
			return true
		}
		f.replyTimeout(src, m)
		return false
	}
	return false
}

func (f *Forwarder) resolve(descriptor pptype.SocketDescriptor) (src, dst *Point) {
	switch {
	case f.A.Socket != nil && f.A.Socket.Descriptor() == descriptor:
		return f.A, f.B
	case f.B.Socket != nil && f.B.Socket.Descriptor() == descriptor:
		return f.B, f.A
	default:
		return nil, nil
	}
}

func (p *Point) recordPending(id pptype.MessageId, expiryUnix uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, pendingRecord{id: id, expiryUnix: expiryUnix})
}

// takePending removes and reports whether id is present, regardless of
// expiry (expiry is enforced by sweep, called on every Forward).
func (p *Point) takePending(id pptype.MessageId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.pending {
		if r.id == id {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Point) sweep(nowUnix uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.pending[:0]
	for _, r := range p.pending {
		if r.expiryUnix > nowUnix {
			kept = append(kept, r)
		}
	}
	p.pending = kept
}

func (f *Forwarder) replyMissingPeer(src *Point, m *ppmsg.Message, missingName string) {
	if src.Socket == nil {
		return
	}
	desc := fmt.Sprintf("forward point %q has no bound socket", missingName)
	f.sendError(src, m, errCodeMissingPeer, desc)
}

func (f *Forwarder) replyTimeout(src *Point, m *ppmsg.Message) {
	if src == nil || src.Socket == nil {
		return
	}
	desc := fmt.Sprintf("no pending command %s awaiting this answer", m.Id)
	f.sendError(src, m, errCodeAnswerTimeout, desc)
}

func (f *Forwarder) sendError(src *Point, m *ppmsg.Message, code uuid.UUID, description string) {
	reply := m.CloneForAnswer()
	reply.Command = ppcommand.Error
	reply.SetExecStatus(ppmsg.ExecError)
	content := ppserialize.EncodeMessageError(forwarderErrorGroup, [16]byte(code), description)
	reply.SetContent(content, pptype.QBinary)
	src.Socket.Send(reply)
}
