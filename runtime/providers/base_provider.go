package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
	"github.com/AltairaLabs/callrelay/runtime/logger"
)

// DefaultHTTPTimeout bounds connection setup and response headers for
// provider requests. Streaming bodies are bounded by the request context.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBodySize bounds how much of a failed response body is kept.
const maxErrorBodySize = 4096

// BaseProvider provides common functionality shared across all provider implementations.
// It should be embedded in concrete provider structs to avoid code duplication.
type BaseProvider struct {
	id     string
	model  string
	client *http.Client
}

// NewBaseProvider creates a new BaseProvider with common fields. A nil client
// selects NewHTTPClient(DefaultHTTPTimeout).
func NewBaseProvider(id, model string, client *http.Client) BaseProvider {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPTimeout)
	}
	return BaseProvider{
		id:     id,
		model:  model,
		client: client,
	}
}

// NewHTTPClient returns an HTTP client whose transport emits client spans and
// propagates trace context. headerTimeout bounds the wait for response
// headers; there is no overall timeout because completion bodies stream.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

// ID returns the provider ID
func (b *BaseProvider) ID() string {
	return b.id
}

// Model returns the model name sent with every request
func (b *BaseProvider) Model() string {
	return b.model
}

// Close closes the HTTP client's idle connections
func (b *BaseProvider) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// GetHTTPClient returns the underlying HTTP client for provider-specific use
func (b *BaseProvider) GetHTTPClient() *http.Client {
	return b.client
}

// RequestHeaders is a map of HTTP header key-value pairs
type RequestHeaders map[string]string

// sensitiveHeaders carry credentials and are never logged.
var sensitiveHeaders = map[string]bool{
	"authorization":         true,
	"x-api-key":             true,
	"x-portkey-api-key":     true,
	"x-portkey-virtual-key": true,
}

// Masked returns a copy safe for logging, with credential headers replaced by "***".
func (h RequestHeaders) Masked() map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = "***"
		} else {
			out[k] = v
		}
	}
	return out
}

// CheckHTTPError returns a ContextualError carrying the status code when resp
// is not 200 OK. The body is consumed and closed in that case.
func CheckHTTPError(providerID string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize)) // NOSONAR: read error leaves body empty
	msg := strings.TrimSpace(string(body))
	logger.APIResponse(providerID, resp.StatusCode, msg)

	return pkgerrors.New("provider", "ChatStream",
		fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, msg)).
		WithStatusCode(resp.StatusCode).
		WithDetails(map[string]any{"provider": providerID})
}
