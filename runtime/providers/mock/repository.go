package mock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/callrelay/runtime/logger"
)

// Script describes one scripted completion stream.
type Script struct {
	// Deltas are emitted in order. Empty strings are emitted as-is.
	Deltas []string `yaml:"deltas"`

	// DelayMS pauses before each delta.
	DelayMS int `yaml:"delay_ms,omitempty"`

	// Error, when set, is sent as a stream error after the deltas.
	Error string `yaml:"error,omitempty"`

	// FailStart makes ChatStream itself fail with Error.
	FailStart bool `yaml:"fail_start,omitempty"`

	// Hang keeps the stream open after the deltas until the request is cancelled.
	Hang bool `yaml:"hang,omitempty"`

	// Err overrides Error for programmatic scripts.
	Err error `yaml:"-"`
}

func (s *Script) err() error {
	if s.Err != nil {
		return s.Err
	}
	if s.Error != "" {
		return errors.New(s.Error)
	}
	return nil
}

// ScriptParams identifies the request a script is looked up for.
type ScriptParams struct {
	ProviderID string
	ModelName  string
	// CallNumber counts ChatStream calls on the provider, starting at 1.
	CallNumber int
}

// ScriptRepository supplies scripts to the mock provider.
type ScriptRepository interface {
	GetScript(ctx context.Context, params ScriptParams) (*Script, error)
}

// InMemoryRepository replays scripts in call order and repeats the last one.
type InMemoryRepository struct {
	mu      sync.Mutex
	scripts []*Script
}

// NewInMemoryRepository creates a repository over scripts.
func NewInMemoryRepository(scripts ...*Script) *InMemoryRepository {
	return &InMemoryRepository{scripts: scripts}
}

// Add appends a script.
func (r *InMemoryRepository) Add(s *Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, s)
}

// GetScript returns the script for params.CallNumber.
func (r *InMemoryRepository) GetScript(_ context.Context, params ScriptParams) (*Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.scripts) == 0 {
		return &Script{}, nil
	}
	idx := params.CallNumber - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.scripts) {
		idx = len(r.scripts) - 1
	}
	return r.scripts[idx], nil
}

// FileConfig is the YAML layout read by FileRepository.
type FileConfig struct {
	// Default is used for calls without a specific entry.
	Default Script `yaml:"default"`

	// Calls holds scripts keyed by call number (1-indexed).
	Calls map[int]Script `yaml:"calls,omitempty"`
}

// FileRepository loads scripts from a YAML file.
type FileRepository struct {
	config *FileConfig
}

// NewFileRepository reads and parses a script file.
func NewFileRepository(path string) (*FileRepository, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read mock script file: %w", err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse mock script YAML: %w", err)
	}

	return &FileRepository{config: &config}, nil
}

// GetScript returns the call-specific script, falling back to the default.
func (r *FileRepository) GetScript(_ context.Context, params ScriptParams) (*Script, error) {
	if s, ok := r.config.Calls[params.CallNumber]; ok {
		logger.Debug("FileRepository using call-specific script", "call_number", params.CallNumber)
		return &s, nil
	}
	s := r.config.Default
	return &s, nil
}
