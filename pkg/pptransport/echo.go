package pptransport

import (
	"time"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
)

// echoListenerGrace extends the listener side's liveness window beyond the
// peer's declared timeout, to absorb the round trip the client's probe
// already spent in flight (core spec §4.1.6).
const echoListenerGrace = 5 * time.Second

// startEcho sends the initiator's first liveness probe immediately after
// the compatibility check succeeds, carrying the configured timeout in
// Tags[0] so the listener side can learn it on first receipt (core spec
// §4.1.6). The listener never probes on its own; it only watches that
// probes keep arriving.
func (s *Socket) startEcho() {
	if !s.initiator || s.echoTimeoutMS <= 0 {
		return
	}
	s.sendEchoProbe()
}

func (s *Socket) sendEchoProbe() {
	probe := ppmsg.New(ppcommand.EchoConnection)
	probe.SetTags([]uint64{uint64(s.echoTimeoutMS)})
	s.echoMu.Lock()
	s.lastEchoSentAt = time.Now()
	s.echoMu.Unlock()
	s.Send(probe)
}

// checkEchoLiveness is polled on every loop tick (core spec §4.1.7). The
// initiator re-sends its probe once the round trip to the previous one
// completed, and declares the peer dead if a probe goes unanswered past
// its own timeout. The listener-side socket never sends on its own; it
// only declares the peer dead once it stops seeing incoming probes for
// longer than the learned timeout plus echoListenerGrace.
func (s *Socket) checkEchoLiveness() {
	s.echoMu.Lock()
	timeoutMS := s.echoTimeoutMS
	sentAt, recvAt := s.lastEchoSentAt, s.lastEchoRecvAt
	s.echoMu.Unlock()

	if timeoutMS <= 0 {
		return
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond

	if s.initiator {
		if sentAt.IsZero() {
			return
		}
		if !recvAt.Before(sentAt) {
			// Peer already answered the last probe; send the next one once
			// a full interval has elapsed.
			if time.Since(sentAt) >= timeout {
				s.sendEchoProbe()
			}
			return
		}
		if time.Since(sentAt) >= timeout {
			s.onEchoTimeout()
		}
		return
	}

	if recvAt.IsZero() {
		return
	}
	if time.Since(recvAt) >= timeout+echoListenerGrace {
		s.onEchoTimeout()
	}
}

// onEchoTimeout synthesizes a local EchoConnection event so the
// application observes the liveness loss (it never crossed the wire),
// then tears the connection down (core spec §4.1.6, concrete scenario
// §8.4).
func (s *Socket) onEchoTimeout() {
	if s.OnMessage != nil {
		synthetic := ppmsg.NewEvent(ppcommand.EchoConnection)
		synthetic.SocketDescriptor = s.descriptor
		synthetic.SocketName = s.socketName
		synthetic.SourcePoint = s.sourcePoint
		s.OnMessage(s, synthetic)
	}
	s.closeOnce.Do(func() { close(s.stopCh) })
}

// handleEchoInbound answers an incoming echo probe, records the peer's
// liveness activity, and — on the listener side, the first time it sees
// one — learns the peer's timeout from Tags[0] (core spec §4.1.6).
func (s *Socket) handleEchoInbound(m *ppmsg.Message) {
	s.echoMu.Lock()
	s.lastEchoRecvAt = time.Now()
	if !s.initiator && s.echoTimeoutMS == 0 && len(m.Tags) > 0 {
		s.echoTimeoutMS = int64(m.Tags[0])
	}
	s.echoMu.Unlock()

	if m.Type() == ppmsg.TypeAnswer {
		if s.OnEchoAnswered != nil {
			s.OnEchoAnswered(s)
		}
		return
	}
	reply := m.CloneForAnswer()
	s.Send(reply)
}
