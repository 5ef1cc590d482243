// Package mock provides a scripted streaming provider for local runs and tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
	"github.com/AltairaLabs/callrelay/runtime/logger"
	"github.com/AltairaLabs/callrelay/runtime/providers"
)

// Provider streams scripted deltas without network access.
type Provider struct {
	id         string
	model      string
	repository ScriptRepository

	mu       sync.Mutex
	calls    int
	requests []providers.ChatRequest
	closed   bool
}

// NewProvider creates a mock provider replaying scripts from repo.
func NewProvider(id, model string, repo ScriptRepository) *Provider {
	return &Provider{
		id:         id,
		model:      model,
		repository: repo,
	}
}

// NewScriptedProvider is shorthand for a provider over in-memory scripts.
func NewScriptedProvider(scripts ...*Script) *Provider {
	return NewProvider("mock", "mock-model", NewInMemoryRepository(scripts...))
}

func init() {
	providers.RegisterProviderFactory("mock", func(spec providers.ProviderSpec) (providers.Provider, error) {
		if path, ok := spec.AdditionalConfig["script_file"].(string); ok && path != "" {
			repo, err := NewFileRepository(path)
			if err != nil {
				return nil, err
			}
			return NewProvider(spec.ID, spec.Model, repo), nil
		}
		script := &Script{Deltas: []string{"Mock response from ", spec.ID}}
		return NewProvider(spec.ID, spec.Model, NewInMemoryRepository(script)), nil
	})
}

// ID returns the provider ID.
func (m *Provider) ID() string {
	return m.id
}

// Model returns the model name.
func (m *Provider) Model() string {
	return m.model
}

// Close marks the provider closed. Later calls to ChatStream fail.
func (m *Provider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Provider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Requests returns a copy of every request received so far.
func (m *Provider) Requests() []providers.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.ChatRequest(nil), m.requests...)
}

// ChatStream replays the next script.
func (m *Provider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamChunk, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, pkgerrors.New("provider", "ChatStream", fmt.Errorf("mock provider %s is closed", m.id))
	}
	m.calls++
	call := m.calls
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	script, err := m.repository.GetScript(ctx, ScriptParams{ProviderID: m.id, ModelName: m.model, CallNumber: call})
	if err != nil {
		return nil, fmt.Errorf("failed to get mock script: %w", err)
	}

	logger.Debug("MockProvider ChatStream", "provider_id", m.id, "call", call, "deltas", len(script.Deltas))

	if script.FailStart {
		return nil, pkgerrors.New("provider", "ChatStream", script.err())
	}

	out := make(chan providers.StreamChunk)
	go m.replay(ctx, script, out)
	return out, nil
}

func (m *Provider) replay(ctx context.Context, script *Script, out chan<- providers.StreamChunk) {
	defer close(out)

	send := func(chunk providers.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	delay := time.Duration(script.DelayMS) * time.Millisecond
	for _, d := range script.Deltas {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		if !send(providers.StreamChunk{Delta: d}) {
			return
		}
	}

	if err := script.err(); err != nil {
		send(providers.StreamChunk{Error: err, FinishReason: providers.StringPtr(providers.FinishReasonError)})
		return
	}

	if script.Hang {
		<-ctx.Done()
		return
	}

	send(providers.StreamChunk{FinishReason: providers.StringPtr(providers.FinishReasonStop)})
}
