// Package openai streams chat completions from OpenAI-compatible endpoints,
// including gateways such as Portkey that front OpenRouter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
	"github.com/AltairaLabs/callrelay/runtime/logger"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/types"
)

// HTTP constants
const (
	chatCompletionsPath = "/chat/completions"
	contentTypeHeader   = "Content-Type"
	applicationJSON     = "application/json"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	portkeyAPIKeyHeader     = "x-portkey-api-key"
	portkeyVirtualKeyHeader = "x-portkey-virtual-key"
)

// Provider types registered by this package.
const (
	TypeOpenAI  = "openai"
	TypePortkey = "portkey"
)

func init() {
	providers.RegisterProviderFactory(TypeOpenAI, factory)
	providers.RegisterProviderFactory(TypePortkey, factory)
}

func factory(spec providers.ProviderSpec) (providers.Provider, error) {
	if spec.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL is required", spec.ID)
	}
	return NewProvider(spec, nil), nil
}

// Provider implements providers.Provider for OpenAI-compatible streaming APIs.
type Provider struct {
	providers.BaseProvider
	baseURL    string
	apiKey     string
	virtualKey string
	gateway    bool
}

// NewProvider creates a provider from spec. A nil client selects the
// instrumented default client.
func NewProvider(spec providers.ProviderSpec, client *http.Client) *Provider {
	return &Provider{
		BaseProvider: providers.NewBaseProvider(spec.ID, spec.Model, client),
		baseURL:      strings.TrimRight(spec.BaseURL, "/"),
		apiKey:       spec.APIKey,
		virtualKey:   spec.VirtualKey,
		gateway:      spec.Type == TypePortkey,
	}
}

type chatRequest struct {
	Model            string          `json:"model"`
	Messages         []types.Message `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	PresencePenalty  float64         `json:"presence_penalty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta struct {
		Content any `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

func (p *Provider) headers() providers.RequestHeaders {
	h := providers.RequestHeaders{
		contentTypeHeader: applicationJSON,
		"Accept":          "text/event-stream",
	}
	if p.gateway {
		h[portkeyAPIKeyHeader] = p.apiKey
		if p.virtualKey != "" {
			h[portkeyVirtualKeyHeader] = p.virtualKey
		}
	} else if p.apiKey != "" {
		h[authorizationHeader] = bearerPrefix + p.apiKey
	}
	return h
}

// ChatStream issues a streaming completion request and returns the delta channel.
func (p *Provider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamChunk, error) {
	body, err := json.Marshal(chatRequest{
		Model:            p.Model(),
		Messages:         req.Messages,
		Stream:           true,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		MaxTokens:        req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	headers := p.headers()
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	logger.APIRequest(p.ID(), http.MethodPost, url, headers.Masked(), json.RawMessage(body))

	//nolint:bodyclose // body is closed in streamResponse goroutine
	resp, err := p.GetHTTPClient().Do(httpReq)
	if err != nil {
		return nil, pkgerrors.New("provider", "ChatStream", fmt.Errorf("failed to send request: %w", err))
	}

	if err := providers.CheckHTTPError(p.ID(), resp); err != nil {
		return nil, err
	}
	logger.APIResponse(p.ID(), resp.StatusCode, "")

	outChan := make(chan providers.StreamChunk)

	go p.streamResponse(ctx, resp.Body, outChan)

	return outChan, nil
}

// streamResponse reads the SSE body and forwards deltas until [DONE], a
// finish reason, an error, or cancellation.
func (p *Provider) streamResponse(ctx context.Context, body io.ReadCloser, outChan chan<- providers.StreamChunk) {
	defer close(outChan)
	defer body.Close()

	send := func(chunk providers.StreamChunk) bool {
		select {
		case outChan <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := providers.NewSSEScanner(body)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		data := scanner.Data()
		if data == providers.DoneSentinel {
			send(providers.StreamChunk{FinishReason: providers.StringPtr(providers.FinishReasonStop)})
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(providers.StreamChunk{
				Error:        p.streamError(fmt.Errorf("malformed stream event: %w", err)),
				FinishReason: providers.StringPtr(providers.FinishReasonError),
			})
			return
		}

		if chunk.Error != nil {
			send(providers.StreamChunk{
				Error:        p.streamError(fmt.Errorf("stream error: %s", chunk.Error.Message)),
				FinishReason: providers.StringPtr(providers.FinishReasonError),
			})
			return
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if delta := extractContentString(choice.Delta.Content); delta != "" {
			if !send(providers.StreamChunk{Delta: delta}) {
				return
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			send(providers.StreamChunk{FinishReason: choice.FinishReason})
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	send(providers.StreamChunk{
		Error:        p.streamError(fmt.Errorf("stream ended before completion: %w", err)),
		FinishReason: providers.StringPtr(providers.FinishReasonError),
	})
}

func (p *Provider) streamError(cause error) error {
	return pkgerrors.New("provider", "ReadStream", cause).
		WithDetails(map[string]any{"provider": p.ID()})
}

// extractContentString extracts text from a delta's content, which may be a
// string, a list of strings, or a list of {type:"text", text} parts.
func extractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		return extractTextFromParts(v)
	default:
		return ""
	}
}

// extractTextFromParts concatenates the text of every string or text part.
func extractTextFromParts(parts []any) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(getTextFromPart(part))
	}
	return b.String()
}

// getTextFromPart extracts text from a single content part
func getTextFromPart(part any) string {
	if s, ok := part.(string); ok {
		return s
	}

	partMap, ok := part.(map[string]any)
	if !ok {
		return ""
	}

	if partType, ok := partMap["type"].(string); !ok || partType != "text" {
		return ""
	}

	textVal, _ := partMap["text"].(string)
	return textVal
}
