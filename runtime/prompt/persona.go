package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_persona.yaml
var defaultPersonaYAML []byte

// Persona is the static text that shapes the agent: the system instructions,
// the opening greeting, and the re-prompt used when the caller goes silent.
type Persona struct {
	Name      string `yaml:"name"`
	Objective string `yaml:"objective"`
	Role      string `yaml:"role"`
	Greeting  string `yaml:"greeting"`
	Reminder  string `yaml:"reminder"`
}

// SystemPrompt renders the system message content.
func (p *Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("##Objective\n")
	b.WriteString(strings.TrimSpace(p.Objective))
	b.WriteString("\n\n##Role\n")
	b.WriteString(strings.TrimSpace(p.Role))
	return b.String()
}

// Validate checks that every text the relay sends is present.
func (p *Persona) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Role) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(p.Greeting) == "" {
		missing = append(missing, "greeting")
	}
	if strings.TrimSpace(p.Reminder) == "" {
		missing = append(missing, "reminder")
	}
	if len(missing) > 0 {
		return fmt.Errorf("persona %q missing fields: %s", p.Name, strings.Join(missing, ", "))
	}
	return nil
}

// DefaultPersona returns the built-in therapist persona.
func DefaultPersona() *Persona {
	p, err := ParsePersona(defaultPersonaYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded persona is invalid: %v", err))
	}
	return p
}

// ParsePersona decodes and validates a persona YAML document.
func ParsePersona(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse persona: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPersona reads a persona from a YAML file. An empty path yields the
// default persona. A file without an objective inherits the default one.
func LoadPersona(path string) (*Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	p, err := ParsePersona(data)
	if err != nil {
		return nil, err
	}
	if p.Objective == "" {
		p.Objective = DefaultPersona().Objective
	}
	return p, nil
}
