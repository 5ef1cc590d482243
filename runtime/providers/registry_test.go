package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	BaseProvider
	spec ProviderSpec
}

func (s *stubProvider) ChatStream(context.Context, ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}

func TestCreateProviderFromSpec(t *testing.T) {
	RegisterProviderFactory("portkey", func(spec ProviderSpec) (Provider, error) {
		return &stubProvider{BaseProvider: NewBaseProvider(spec.ID, spec.Model, nil), spec: spec}, nil
	})
	t.Cleanup(func() { delete(providerFactories, "portkey") })

	p, err := CreateProviderFromSpec(ProviderSpec{Type: "portkey", Model: "mistralai/mixtral-8x7b-instruct"})
	require.NoError(t, err)

	stub := p.(*stubProvider)
	assert.Equal(t, "portkey", p.ID())
	assert.Equal(t, "mistralai/mixtral-8x7b-instruct", p.Model())
	assert.Equal(t, DefaultPortkeyBaseURL, stub.spec.BaseURL)
	assert.Contains(t, RegisteredTypes(), "portkey")
	require.NoError(t, p.Close())
}

func TestCreateProviderFromSpec_KeepsExplicitBaseURL(t *testing.T) {
	var got ProviderSpec
	RegisterProviderFactory("openai", func(spec ProviderSpec) (Provider, error) {
		got = spec
		return &stubProvider{BaseProvider: NewBaseProvider(spec.ID, spec.Model, nil)}, nil
	})
	t.Cleanup(func() { delete(providerFactories, "openai") })

	_, err := CreateProviderFromSpec(ProviderSpec{ID: "gw", Type: "openai", BaseURL: "http://localhost:9999/v1"})
	require.NoError(t, err)
	assert.Equal(t, "gw", got.ID)
	assert.Equal(t, "http://localhost:9999/v1", got.BaseURL)
}

func TestCreateProviderFromSpec_Unsupported(t *testing.T) {
	_, err := CreateProviderFromSpec(ProviderSpec{Type: "carrier-pigeon"})

	var unsupported *UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "unsupported provider type: carrier-pigeon", err.Error())
}

func TestCreateProviderFromSpec_UnsupportedListsRegistered(t *testing.T) {
	for _, typ := range []string{"portkey", "mock"} {
		RegisterProviderFactory(typ, func(spec ProviderSpec) (Provider, error) {
			return &stubProvider{BaseProvider: NewBaseProvider(spec.ID, spec.Model, nil)}, nil
		})
	}
	t.Cleanup(func() {
		delete(providerFactories, "portkey")
		delete(providerFactories, "mock")
	})

	_, err := CreateProviderFromSpec(ProviderSpec{Type: "portky"})

	var unsupported *UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, []string{"mock", "portkey"}, unsupported.Registered)
	assert.Equal(t, "unsupported provider type: portky (registered: mock, portkey)", err.Error())
}

func TestProviderDefaults_Request(t *testing.T) {
	d := ProviderDefaults{Temperature: 0.9, TopP: 1, FrequencyPenalty: 0.7, PresencePenalty: 0.7, MaxTokens: 200}

	req := d.Request(nil)

	assert.InDelta(t, 0.9, req.Temperature, 1e-9)
	assert.InDelta(t, 1.0, req.TopP, 1e-9)
	assert.InDelta(t, 0.7, req.FrequencyPenalty, 1e-9)
	assert.InDelta(t, 0.7, req.PresencePenalty, 1e-9)
	assert.Equal(t, 200, req.MaxTokens)
}
