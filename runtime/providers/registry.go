package providers

import (
	"sort"
	"strings"
)

// ProviderFactory is a function that creates a provider from a spec
type ProviderFactory func(spec ProviderSpec) (Provider, error)

var providerFactories = make(map[string]ProviderFactory)

// RegisterProviderFactory registers a factory function for a provider type.
// Implementations call it from init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// RegisteredTypes lists the registered provider types in sorted order.
func RegisteredTypes() []string {
	types := make([]string, 0, len(providerFactories))
	for t := range providerFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ProviderSpec holds the configuration needed to create a provider instance
type ProviderSpec struct {
	ID      string
	Type    string
	Model   string
	BaseURL string

	// APIKey authenticates against the gateway.
	APIKey string

	// VirtualKey selects the upstream provider credentials stored in the gateway.
	VirtualKey string

	Defaults         ProviderDefaults
	AdditionalConfig map[string]any
}

// Default base URLs per provider type.
const (
	DefaultPortkeyBaseURL = "https://api.portkey.ai/v1"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
)

// CreateProviderFromSpec creates a provider implementation from a spec.
// Returns an error if the provider type is unsupported.
func CreateProviderFromSpec(spec ProviderSpec) (Provider, error) {
	if spec.BaseURL == "" {
		switch spec.Type {
		case "portkey":
			spec.BaseURL = DefaultPortkeyBaseURL
		case "openai":
			spec.BaseURL = DefaultOpenAIBaseURL
		}
	}
	if spec.ID == "" {
		spec.ID = spec.Type
	}

	factory, exists := providerFactories[spec.Type]
	if !exists {
		return nil, &UnsupportedProviderError{ProviderType: spec.Type, Registered: RegisteredTypes()}
	}

	return factory(spec)
}

// UnsupportedProviderError is returned when a provider type is not recognized
type UnsupportedProviderError struct {
	ProviderType string
	Registered   []string
}

func (e *UnsupportedProviderError) Error() string {
	if len(e.Registered) == 0 {
		return "unsupported provider type: " + e.ProviderType
	}
	return "unsupported provider type: " + e.ProviderType + " (registered: " + strings.Join(e.Registered, ", ") + ")"
}
