package agent

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
)

// BackendType selects which conversational backend serves an agent.
type BackendType string

const (
	BackendHosted BackendType = "hosted"
	BackendLocal  BackendType = "local"
)

// BackendSettings is a tagged variant over the supported backends.
type BackendSettings interface {
	Type() BackendType
	Validate() error
}

// BaseBackendSettings contains the discriminator shared by all variants
type BaseBackendSettings struct {
	BackendType BackendType `json:"type"`
}

func (b *BaseBackendSettings) Type() BackendType {
	return b.BackendType
}

// HostedSettings selects the hosted multimodal service. The endpoint is
// implicit; Model and APIKey override the process-wide defaults.
type HostedSettings struct {
	BaseBackendSettings
	Model  string  `json:"model,omitempty"`
	APIKey *string `json:"api_key,omitempty"`
}

func (h *HostedSettings) Validate() error {
	return nil
}

// LocalSettings selects a self-hosted model reachable by URL.
type LocalSettings struct {
	BaseBackendSettings
	BaseURL string  `json:"base_url"`
	Model   string  `json:"model"`
	APIKey  *string `json:"api_key,omitempty"`
}

func (l *LocalSettings) Validate() error {
	if l.BaseURL == "" {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "local backend base_url is required", nil)
	}
	if l.Model == "" {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "local backend model is required", nil)
	}
	return nil
}

// NewHostedSettings returns hosted settings for model ("" keeps the default).
func NewHostedSettings(model string) *HostedSettings {
	return &HostedSettings{
		BaseBackendSettings: BaseBackendSettings{BackendType: BackendHosted},
		Model:               model,
	}
}

// NewLocalSettings returns local settings; an empty apiKey is left unset.
func NewLocalSettings(baseURL, model, apiKey string) *LocalSettings {
	s := &LocalSettings{
		BaseBackendSettings: BaseBackendSettings{BackendType: BackendLocal},
		BaseURL:             baseURL,
		Model:               model,
	}
	if apiKey != "" {
		s.APIKey = &apiKey
	}
	return s
}

// DefaultLocalSettings points at an Ollama install on the same host.
func DefaultLocalSettings() *LocalSettings {
	return NewLocalSettings("http://localhost:11434", "gemma", "")
}

// UnmarshalBackendSettings decodes a backend object by its "type" field.
func UnmarshalBackendSettings(data []byte) (BackendSettings, error) {
	var discriminator struct {
		Type BackendType `json:"type"`
	}
	if err := json.Unmarshal(data, &discriminator); err != nil {
		return nil, fmt.Errorf("failed to parse backend type: %w", err)
	}

	switch discriminator.Type {
	case BackendHosted:
		var hosted HostedSettings
		if err := json.Unmarshal(data, &hosted); err != nil {
			return nil, err
		}
		return &hosted, nil
	case BackendLocal:
		var local LocalSettings
		if err := json.Unmarshal(data, &local); err != nil {
			return nil, err
		}
		return &local, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %q", discriminator.Type)
	}
}

func cloneBackend(b BackendSettings) BackendSettings {
	switch s := b.(type) {
	case *HostedSettings:
		out := *s
		if s.APIKey != nil {
			key := *s.APIKey
			out.APIKey = &key
		}
		return &out
	case *LocalSettings:
		out := *s
		if s.APIKey != nil {
			key := *s.APIKey
			out.APIKey = &key
		}
		return &out
	default:
		return b
	}
}
