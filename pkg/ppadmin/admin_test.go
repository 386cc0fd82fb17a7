package ppadmin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/pplistener"
	"github.com/zentalk/pproto/pkg/pptransport"
	"github.com/zentalk/pproto/pkg/pptype"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestListener(t *testing.T) *pplistener.Listener {
	t.Helper()
	reg := ppcommand.NewRegistry()
	props := pptransport.DefaultProperties()
	props.Registry = reg
	l, err := pplistener.Listen("tcp", "127.0.0.1:0", props)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(time.Second) })
	return l
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestStatsEndpointReportsActiveSocketCount(t *testing.T) {
	l := newTestListener(t)
	s := New(l)

	rec := doRequest(s, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 0, stats.ActiveSockets)
	require.Zero(t, stats.MessagesSent)
	require.Zero(t, stats.MessagesReceived)
	require.False(t, stats.StartedAt.IsZero())
}

func TestStatsEndpointReportsMessageCounters(t *testing.T) {
	cmd := pptype.NewMessageId()
	reg := ppcommand.NewRegistry()
	reg.Register(cmd, "Greet", false)

	serverProps := pptransport.DefaultProperties()
	serverProps.Registry = reg
	l, err := pplistener.Listen("tcp", "127.0.0.1:0", serverProps)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(time.Second) })
	s := New(l)

	received := make(chan struct{})
	l.OnMessage = func(_ *pptransport.Socket, _ *ppmsg.Message) { close(received) }

	clientProps := pptransport.DefaultProperties()
	clientProps.Registry = ppcommand.NewRegistry()
	clientProps.Registry.Register(cmd, "Greet", false)
	c, err := pptransport.Dial("tcp", l.Addr().String(), clientProps)
	require.NoError(t, err)
	c.Start()
	defer c.Disconnect(time.Second)

	require.True(t, c.Send(ppmsg.New(cmd)))

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("listener never observed the client's message")
	}

	rec := doRequest(s, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotZero(t, stats.MessagesReceived)
}

func TestSocketsEndpointReflectsConnectedSocket(t *testing.T) {
	l := newTestListener(t)
	s := New(l)

	connected := make(chan struct{})
	l.OnConnected = func(*pptransport.Socket) { close(connected) }

	props := pptransport.DefaultProperties()
	props.Registry = ppcommand.NewRegistry()
	c, err := pptransport.Dial("tcp", l.Addr().String(), props)
	require.NoError(t, err)
	c.Start()
	defer c.Disconnect(time.Second)

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("listener never reported a connected socket")
	}
	require.Eventually(t, func() bool { return l.Count() == 1 }, time.Second, 10*time.Millisecond)

	rec := doRequest(s, http.MethodGet, "/sockets")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []SocketRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "running", rows[0].State)
	require.Equal(t, "tcp", rows[0].SocketType)
}
