// Package ppadmin exposes a read-only HTTP surface over a pplistener.
// Listener, grounded in the teacher's pkg/meshstorage/api gin usage and
// its RelayServer.GetStats() idea, generalized into typed responses (core
// spec §13 of SPEC_FULL.md; not present in the distilled core spec, which
// explicitly scopes out CLI/config/observability surfaces).
package ppadmin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zentalk/pproto/pkg/pplistener"
	"github.com/zentalk/pproto/pkg/pptype"
)

// Stats is the GET /stats response body.
type Stats struct {
	ActiveSockets    int       `json:"active_sockets"`
	MessagesSent     uint64    `json:"messages_sent"`
	MessagesReceived uint64    `json:"messages_received"`
	StartedAt        time.Time `json:"started_at"`
}

// SocketRow is one entry of the GET /sockets response body.
type SocketRow struct {
	Descriptor pptype.SocketDescriptor `json:"descriptor"`
	RemoteAddr string                  `json:"remote_addr"`
	SocketType string                  `json:"socket_type"`
	State      string                  `json:"state"`
}

// Server wraps a gin.Engine serving read-only introspection for one
// Listener. It never calls back into pptransport/pplistener internals
// beyond their already-public accessors, so it cannot introduce a cycle.
type Server struct {
	engine    *gin.Engine
	listener  *pplistener.Listener
	startedAt time.Time
}

// New builds a Server for listener. Call Run to start serving.
func New(listener *pplistener.Listener) *Server {
	s := &Server{
		engine:    gin.New(),
		listener:  listener,
		startedAt: time.Now(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/stats", s.handleStats)
	s.engine.GET("/sockets", s.handleSockets)
	return s
}

// Run starts the HTTP server on addr, blocking until it stops or errors.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleStats(c *gin.Context) {
	sockets := s.listener.Sockets()
	stats := Stats{
		ActiveSockets: len(sockets),
		StartedAt:     s.startedAt,
	}
	for _, sock := range sockets {
		stats.MessagesSent += sock.MessagesSent()
		stats.MessagesReceived += sock.MessagesReceived()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSockets(c *gin.Context) {
	sockets := s.listener.Sockets()
	rows := make([]SocketRow, 0, len(sockets))
	for _, sock := range sockets {
		rows = append(rows, SocketRow{
			Descriptor: sock.Descriptor(),
			RemoteAddr: sock.RemoteAddr(),
			SocketType: sock.SocketType().String(),
			State:      sock.State().String(),
		})
	}
	c.JSON(http.StatusOK, rows)
}
