// Command pproto-dial connects to a PProto listener, sends a single
// EchoConnection probe, and logs the answer. Mirrors the teacher's
// cmd/relay flag-parsing style.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pptransport"
	"github.com/zentalk/pproto/pkg/pptype"
)

var (
	network    = flag.String("network", "tcp", "network to dial: tcp or unix")
	addr       = flag.String("addr", "127.0.0.1:7777", "address to dial")
	encrypted  = flag.Bool("encrypted", false, "perform key exchange and encrypt every frame")
	jsonFormat = flag.Bool("json", false, "use JSON framing instead of qbinary")
)

func main() {
	flag.Parse()

	props := pptransport.DefaultProperties()
	props.Encrypted = *encrypted
	if *jsonFormat {
		props.MessageFormat = pptype.Json
	}

	ppcommand.Default.Freeze()

	s, err := pptransport.Dial(*network, *addr, props)
	if err != nil {
		log.Fatalf("pproto-dial: %v", err)
	}

	answered := make(chan struct{}, 1)
	s.OnConnected = func(sock *pptransport.Socket) {
		log.Printf("pproto-dial: connected, socket %d", sock.Descriptor())
		probe := ppmsg.New(ppcommand.EchoConnection)
		sock.Send(probe)
	}
	s.OnEchoAnswered = func(sock *pptransport.Socket) {
		answered <- struct{}{}
	}
	s.OnDisconnected = func(sock *pptransport.Socket) {
		log.Printf("pproto-dial: disconnected")
	}
	s.Start()

	select {
	case <-answered:
		log.Printf("pproto-dial: echo answered")
	case <-time.After(10 * time.Second):
		log.Printf("pproto-dial: timed out waiting for echo answer")
	}

	s.Close()
	s.Disconnect(5 * time.Second)
}
