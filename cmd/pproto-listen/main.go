// Command pproto-listen starts a PProto listener on TCP or UNIX and logs
// every connected/disconnected/message event, with an optional admin HTTP
// side-car. Mirrors the teacher's cmd/relay flag-parsing style.
package main

import (
	"flag"
	"log"

	"github.com/zentalk/pproto/pkg/ppadmin"
	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pplistener"
	"github.com/zentalk/pproto/pkg/pptransport"
	"github.com/zentalk/pproto/pkg/pptype"
)

var (
	network       = flag.String("network", "tcp", "network to listen on: tcp or unix")
	addr          = flag.String("addr", ":7777", "address to listen on")
	encrypted     = flag.Bool("encrypted", false, "require key exchange and encrypt every frame")
	onlyEncrypted = flag.Bool("only-encrypted", false, "reject connections that offer an unencrypted signature")
	jsonFormat    = flag.Bool("json", false, "use JSON framing instead of qbinary")
	echoSeconds   = flag.Int("echo-seconds", 0, "liveness probe interval in seconds (0 disables)")
	adminAddr     = flag.String("admin-addr", "", "address for the optional admin HTTP surface (empty disables)")
)

func main() {
	flag.Parse()

	props := pptransport.DefaultProperties()
	props.Encrypted = *encrypted
	props.OnlyEncrypted = *onlyEncrypted
	if *jsonFormat {
		props.MessageFormat = pptype.Json
	}
	if *echoSeconds > 0 {
		props = props.WithEchoTimeoutSeconds(*echoSeconds)
	}

	ppcommand.Default.Freeze()

	l, err := pplistener.Listen(*network, *addr, props)
	if err != nil {
		log.Fatalf("pproto-listen: %v", err)
	}
	l.OnConnected = func(s *pptransport.Socket) {
		log.Printf("pproto-listen: socket %d connected from %s", s.Descriptor(), s.RemoteAddr())
	}
	l.OnDisconnected = func(s *pptransport.Socket) {
		log.Printf("pproto-listen: socket %d disconnected", s.Descriptor())
	}
	l.OnMessage = func(s *pptransport.Socket, m *ppmsg.Message) {
		log.Printf("pproto-listen: socket %d received command %s (%d bytes content)", s.Descriptor(), m.Command, len(m.Content))
	}

	log.Printf("pproto-listen: listening on %s://%s", *network, *addr)

	if *adminAddr != "" {
		admin := ppadmin.New(l)
		log.Printf("pproto-listen: admin HTTP surface on %s", *adminAddr)
		if err := admin.Run(*adminAddr); err != nil {
			log.Fatalf("pproto-listen: admin server: %v", err)
		}
		return
	}

	select {}
}
