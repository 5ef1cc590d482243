package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/callrelay/runtime/providers"
)

func drain(t *testing.T, ch <-chan providers.StreamChunk) []providers.StreamChunk {
	t.Helper()
	var out []providers.StreamChunk
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not close")
		}
	}
}

func TestProvider_ReplaysDeltas(t *testing.T) {
	p := NewScriptedProvider(&Script{Deltas: []string{"I'm", " here"}})

	ch, err := p.ChatStream(context.Background(), providers.ChatRequest{MaxTokens: 200})
	require.NoError(t, err)
	chunks := drain(t, ch)

	require.Len(t, chunks, 3)
	assert.Equal(t, "I'm", chunks[0].Delta)
	assert.Equal(t, " here", chunks[1].Delta)
	assert.Equal(t, providers.FinishReasonStop, *chunks[2].FinishReason)
	assert.Equal(t, 200, p.Requests()[0].MaxTokens)
}

func TestProvider_ErrorAfterDeltas(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedProvider(&Script{Deltas: []string{"Okay"}, Err: boom})

	ch, err := p.ChatStream(context.Background(), providers.ChatRequest{})
	require.NoError(t, err)
	chunks := drain(t, ch)

	require.Len(t, chunks, 2)
	assert.ErrorIs(t, chunks[1].Error, boom)
}

func TestProvider_FailStart(t *testing.T) {
	p := NewScriptedProvider(&Script{FailStart: true, Error: "connection refused"})

	ch, err := p.ChatStream(context.Background(), providers.ChatRequest{})
	assert.Nil(t, ch)
	assert.ErrorContains(t, err, "connection refused")
}

func TestProvider_HangUntilCancelled(t *testing.T) {
	p := NewScriptedProvider(&Script{Deltas: []string{"a"}, Hang: true})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := p.ChatStream(ctx, providers.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "a", (<-ch).Delta)

	cancel()
	assert.Empty(t, drain(t, ch))
}

func TestProvider_ScriptsInCallOrder(t *testing.T) {
	p := NewScriptedProvider(&Script{Deltas: []string{"first"}}, &Script{Deltas: []string{"second"}})

	for _, want := range []string{"first", "second", "second"} {
		ch, err := p.ChatStream(context.Background(), providers.ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, drain(t, ch)[0].Delta)
	}
}

func TestProvider_Closed(t *testing.T) {
	p := NewScriptedProvider()
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())

	_, err := p.ChatStream(context.Background(), providers.ChatRequest{})
	assert.Error(t, err)
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	doc := `
default:
  deltas: ["Hello", " there"]
calls:
  2:
    deltas: ["Okay"]
    error: upstream reset
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	p, err := providers.CreateProviderFromSpec(providers.ProviderSpec{
		Type:             "mock",
		AdditionalConfig: map[string]any{"script_file": path},
	})
	require.NoError(t, err)

	ch, err := p.ChatStream(context.Background(), providers.ChatRequest{})
	require.NoError(t, err)
	first := drain(t, ch)
	assert.Equal(t, "Hello", first[0].Delta)

	ch, err = p.ChatStream(context.Background(), providers.ChatRequest{})
	require.NoError(t, err)
	second := drain(t, ch)
	require.Len(t, second, 2)
	assert.ErrorContains(t, second[1].Error, "upstream reset")
}

func TestFileRepository_Missing(t *testing.T) {
	_, err := NewFileRepository(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
