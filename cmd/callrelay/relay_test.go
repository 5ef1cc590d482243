package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/callrelay/pkg/config"
	"github.com/AltairaLabs/callrelay/runtime/prompt"
	"github.com/AltairaLabs/callrelay/runtime/telemetry"
	"github.com/AltairaLabs/callrelay/runtime/types"
)

type sinkRecorder struct {
	mu     sync.Mutex
	frames []types.Frame
}

func (s *sinkRecorder) WriteFrame(f types.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *sinkRecorder) WritePingPong(types.PingPong) error { return nil }

func (s *sinkRecorder) Frames() []types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Frame(nil), s.frames...)
}

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CALLRELAY_PROVIDER_TYPE", "mock")
	cfg, err := config.Load(viper.New(), config.Options{})
	require.NoError(t, err)
	return cfg
}

func TestRelayOpen_MockProvider(t *testing.T) {
	cfg := mockConfig(t)
	r := newRelay(cfg, prompt.DefaultPersona(), telemetry.Tracer(nil))
	assert.Nil(t, r.limiter)

	sink := &sinkRecorder{}
	sess, err := r.open(context.Background(), "call-9", sink)
	require.NoError(t, err)
	assert.Equal(t, "call-9", sess.CallID())

	require.NoError(t, sess.OnConnect(context.Background()))
	require.NoError(t, sess.OnResponseRequired(&types.TurnRequest{
		InteractionType: types.InteractionResponseRequired,
		ResponseID:      1,
		Transcript:      []types.Utterance{{Role: types.SpeakerUser, Content: "hello"}},
	}))

	require.Eventually(t, func() bool {
		frames := sink.Frames()
		return len(frames) > 0 && frames[len(frames)-1].ContentComplete && frames[len(frames)-1].ResponseID == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, sess.OnClose())

	frames := sink.Frames()
	assert.Equal(t, types.GreetingResponseID, frames[0].ResponseID)
	assert.Equal(t, "Mock response from ", frames[1].Content)
}

func TestRelayOpen_UnsupportedProvider(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Provider.Type = "carrier-pigeon"
	r := newRelay(cfg, nil, telemetry.Tracer(nil))

	_, err := r.open(context.Background(), "call-1", &sinkRecorder{})
	require.Error(t, err)

	err = checkProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered: mock, openai, portkey")
}

func TestServerOptions_AllowedOrigins(t *testing.T) {
	cfg := mockConfig(t)
	assert.Len(t, serverOptions(cfg), 4)

	cfg.Server.AllowedOrigins = []string{"https://dashboard.example.com"}
	assert.Len(t, serverOptions(cfg), 5)
}

func TestNewRelay_SharedLimiter(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Provider.RequestsPerSecond = 5
	cfg.Provider.Burst = 0

	r := newRelay(cfg, prompt.DefaultPersona(), telemetry.Tracer(nil))
	require.NotNil(t, r.limiter)
	assert.InDelta(t, 5, float64(r.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, r.limiter.Burst())
}

func TestGetVersionInfo(t *testing.T) {
	assert.Contains(t, GetVersionInfo(), "callrelay version ")
}
