package llmws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/callrelay/runtime/prompt"
	"github.com/AltairaLabs/callrelay/runtime/providers/mock"
	"github.com/AltairaLabs/callrelay/runtime/responder"
	"github.com/AltairaLabs/callrelay/runtime/session"
	"github.com/AltairaLabs/callrelay/runtime/types"
)

type openerRecorder struct {
	mu       sync.Mutex
	callIDs  []string
	provider []*mock.Provider
}

func (o *openerRecorder) opener(scripts ...*mock.Script) Opener {
	return func(_ context.Context, callID string, sink session.FrameSink) (*session.Session, error) {
		p := mock.NewScriptedProvider(scripts...)
		o.mu.Lock()
		o.callIDs = append(o.callIDs, callID)
		o.provider = append(o.provider, p)
		o.mu.Unlock()

		ctrl := responder.New(p, prompt.DefaultPersona(), responder.WithTurnTimeout(2*time.Second))
		return session.New(session.Config{
			CallID:     callID,
			Sink:       sink,
			Controller: ctrl,
			Provider:   p,
		})
	}
}

func (o *openerRecorder) providers() []*mock.Provider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*mock.Provider(nil), o.provider...)
}

func startServer(t *testing.T, opener Opener, opts ...Option) (*Server, string) {
	t.Helper()
	srv := NewServer(opener, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) types.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var f types.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readTurn reads frames until the terminal frame for responseID.
func readTurn(t *testing.T, ws *websocket.Conn, responseID int) []types.Frame {
	t.Helper()
	var frames []types.Frame
	for {
		f := readFrame(t, ws)
		if f.ResponseID != responseID {
			continue
		}
		frames = append(frames, f)
		if f.ContentComplete {
			return frames
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func TestServer_GreetingIsFirstFrame(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"unused"}}))

	ws := dial(t, url+"/llm-websocket/call-abc")

	f := readFrame(t, ws)
	assert.Equal(t, types.GreetingResponseID, f.ResponseID)
	assert.Equal(t, prompt.DefaultPersona().Greeting, f.Content)
	assert.True(t, f.ContentComplete)
	assert.False(t, f.EndCall)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"call-abc"}, rec.callIDs)
}

func TestServer_StreamsResponse(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"I hear ", "you."}}))

	ws := dial(t, url+"/llm-websocket/call-1")
	readFrame(t, ws)

	send(t, ws, map[string]any{
		"interaction_type": "response_required",
		"response_id":      1,
		"transcript": []map[string]string{
			{"role": "agent", "content": "Hi"},
			{"role": "user", "content": "I feel stressed"},
		},
	})

	frames := readTurn(t, ws, 1)
	require.Len(t, frames, 3)
	assert.Equal(t, "I hear ", frames[0].Content)
	assert.Equal(t, "you.", frames[1].Content)
	assert.False(t, frames[0].ContentComplete)
	assert.True(t, frames[2].ContentComplete)
	assert.Empty(t, frames[2].Content)

	reqs := rec.providers()[0].Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 3)
	assert.Equal(t, types.RoleSystem, reqs[0].Messages[0].Role)
	assert.Equal(t, types.RoleAssistant, reqs[0].Messages[1].Role)
	assert.Equal(t, types.RoleUser, reqs[0].Messages[2].Role)
}

func TestServer_PingPongEcho(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"x"}}))

	ws := dial(t, url+"/llm-websocket/call-1")
	readFrame(t, ws)

	send(t, ws, map[string]any{"interaction_type": "ping_pong", "timestamp": 1700000000123})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var pong types.PingPong
	require.NoError(t, json.Unmarshal(data, &pong))
	assert.Equal(t, types.ResponseTypePingPong, pong.ResponseType)
	assert.Equal(t, int64(1700000000123), pong.Timestamp)
}

func TestServer_InvalidEventKeepsConnectionOpen(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"ok"}}))

	ws := dial(t, url+"/llm-websocket/call-1")
	readFrame(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, ws, map[string]any{"interaction_type": "response_required", "response_id": 2})
	send(t, ws, map[string]any{"interaction_type": "mystery"})

	send(t, ws, map[string]any{
		"interaction_type": "response_required",
		"response_id":      3,
		"transcript":       []map[string]string{{"role": "user", "content": "hello"}},
	})

	frames := readTurn(t, ws, 3)
	require.Len(t, frames, 2)
	assert.Equal(t, "ok", frames[0].Content)
}

func TestServer_UpdateOnlyProducesNoFrames(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"reply"}}))

	ws := dial(t, url+"/llm-websocket/call-1")
	readFrame(t, ws)

	send(t, ws, map[string]any{
		"interaction_type": "update_only",
		"transcript":       []map[string]string{{"role": "user", "content": "um"}},
	})
	send(t, ws, map[string]any{
		"interaction_type": "response_required",
		"response_id":      4,
		"transcript":       []map[string]string{{"role": "user", "content": "um, hi"}},
	})

	// The first frame after the greeting belongs to turn 4.
	f := readFrame(t, ws)
	assert.Equal(t, 4, f.ResponseID)
}

func TestServer_ClientDisconnectClosesSession(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(&mock.Script{Deltas: []string{"x"}, Hang: true}))

	ws := dial(t, url+"/llm-websocket/call-1")
	readFrame(t, ws)

	send(t, ws, map[string]any{
		"interaction_type": "response_required",
		"response_id":      1,
		"transcript":       []map[string]string{{"role": "user", "content": "hi"}},
	})
	f := readFrame(t, ws)
	assert.Equal(t, "x", f.Content)

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		ps := rec.providers()
		return len(ps) == 1 && ps[0].Closed()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_OpenerFailureClosesSocket(t *testing.T) {
	failing := func(context.Context, string, session.FrameSink) (*session.Session, error) {
		return nil, errors.New("no provider")
	}
	_, url := startServer(t, failing)

	ws := dial(t, url+"/llm-websocket/call-1")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestServer_AllowedOrigins(t *testing.T) {
	rec := &openerRecorder{}
	_, url := startServer(t, rec.opener(), WithCheckOrigin(AllowOrigins("https://dashboard.example.com")))
	url += "/llm-websocket/call-1"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"server-side client", "", true},
		{"allowed origin", "https://Dashboard.example.com", true},
		{"foreign origin", "https://evil.example.net", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(url, header)
			if resp != nil && resp.Body != nil {
				defer resp.Body.Close()
			}
			if !tt.ok {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			defer ws.Close()
			assert.Equal(t, 0, readFrame(t, ws).ResponseID)
		})
	}
}

func TestAllowOrigins_Wildcard(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/llm-websocket/call-1", nil)
	r.Header.Set("Origin", "https://anything.example.org")

	assert.True(t, AllowOrigins("*")(r))
	assert.False(t, AllowOrigins()(r))
}

func TestServer_Healthz(t *testing.T) {
	srv := NewServer((&openerRecorder{}).opener())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	srv := NewServer((&openerRecorder{}).opener())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/llm-websocket/call-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	rec := &openerRecorder{}
	srv := NewServer(rec.opener(&mock.Script{Deltas: []string{"x"}}), WithPingInterval(0))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	ws := dial(t, "ws://"+ln.Addr().String()+"/llm-websocket/call-1")
	readFrame(t, ws)
	assert.Eventually(t, func() bool { return srv.ActiveConnections() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))

	assert.Equal(t, 0, srv.ActiveConnections())
	assert.NoError(t, <-serveErr)
	assert.True(t, rec.providers()[0].Closed())
}
