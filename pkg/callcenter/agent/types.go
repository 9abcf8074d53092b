package agent

import (
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"gopkg.in/yaml.v3"
)

// Agent is a persona the dialer can place or receive calls with. Agents are
// read-only for the duration of a call.
type Agent struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Voice           string            `json:"voice,omitempty"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
	FirstSentence   string            `json:"first_sentence,omitempty"`
	ThinkingMode    bool              `json:"thinking_mode,omitempty"`
	AvatarURL       string            `json:"avatar_url,omitempty"`
	Tools           []ToolDeclaration `json:"tools,omitempty"`
	Backend         BackendSettings   `json:"backend"`
	ActiveForDialer bool              `json:"active_for_dialer,omitempty"`
}

// Validate checks everything a call needs before it may leave Idle.
func (a *Agent) Validate() error {
	if a == nil {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "agent is required", nil)
	}
	if a.ID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "agent id is required", nil)
	}
	if a.Backend == nil {
		return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig, "agent %s has no backend configured", a.ID)
	}
	if err := a.Backend.Validate(); err != nil {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig,
			fmt.Sprintf("agent %s has an invalid %s backend", a.ID, a.Backend.Type()), err)
	}

	seen := make(map[string]bool, len(a.Tools))
	for i := range a.Tools {
		decl := &a.Tools[i]
		if seen[decl.Name] {
			return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig, "agent %s declares tool %q twice", a.ID, decl.Name)
		}
		seen[decl.Name] = true
		if err := decl.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Tool looks up a declared tool by name.
func (a *Agent) Tool(name string) (*ToolDeclaration, bool) {
	for i := range a.Tools {
		if a.Tools[i].Name == name {
			return &a.Tools[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so catalog entries are never shared with a call.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	if a.Tools != nil {
		out.Tools = make([]ToolDeclaration, len(a.Tools))
		for i, t := range a.Tools {
			out.Tools[i] = t.clone()
		}
	}
	out.Backend = cloneBackend(a.Backend)
	return &out
}

// UnmarshalJSON implements custom unmarshaling for Agent to handle the backend discriminator
func (a *Agent) UnmarshalJSON(data []byte) error {
	type Alias Agent
	aux := &struct {
		Backend json.RawMessage `json:"backend"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Backend) == 0 || string(aux.Backend) == "null" {
		a.Backend = nil
		return nil
	}

	backend, err := UnmarshalBackendSettings(aux.Backend)
	if err != nil {
		return err
	}
	a.Backend = backend
	return nil
}

// UnmarshalYAML decodes through the JSON shape so both formats share one schema.
func (a *Agent) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to re-encode agent: %w", err)
	}
	return a.UnmarshalJSON(data)
}

// ParameterType is the JSON-schema type of a tool parameter.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamInteger ParameterType = "integer"
	ParamBoolean ParameterType = "boolean"
)

// Parameter describes one tool argument.
type Parameter struct {
	Type        ParameterType `json:"type"`
	Enum        []string      `json:"enum,omitempty"`
	Description string        `json:"description,omitempty"`
}

// ToolDeclaration is a function the conversational model may call.
type ToolDeclaration struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Properties  map[string]Parameter `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// Validate checks the declaration is well formed. Required parameters must
// be a subset of the declared properties.
func (d *ToolDeclaration) Validate() error {
	if d.Name == "" {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "tool name is required", nil)
	}
	for name, p := range d.Properties {
		switch p.Type {
		case ParamString, ParamNumber, ParamInteger, ParamBoolean:
		default:
			return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig,
				"tool %s parameter %s has unsupported type %q", d.Name, name, p.Type)
		}
		if len(p.Enum) > 0 && p.Type != ParamString {
			return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig,
				"tool %s parameter %s: enum is only supported on strings", d.Name, name)
		}
	}
	for _, req := range d.Required {
		if _, ok := d.Properties[req]; !ok {
			return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig,
				"tool %s requires undeclared parameter %s", d.Name, req)
		}
	}
	return nil
}

// IsRequired reports whether name is a required parameter.
func (d *ToolDeclaration) IsRequired(name string) bool {
	for _, r := range d.Required {
		if r == name {
			return true
		}
	}
	return false
}

// PropertyNames returns the declared parameter names in sorted order.
func (d *ToolDeclaration) PropertyNames() []string {
	names := make([]string, 0, len(d.Properties))
	for name := range d.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JSONSchema renders the parameters as a JSON Schema object.
func (d *ToolDeclaration) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(d.Properties))
	for name, p := range d.Properties {
		prop := map[string]interface{}{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		props[name] = prop
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(d.Required) > 0 {
		schema["required"] = append([]string(nil), d.Required...)
	}
	return schema
}

func (d ToolDeclaration) clone() ToolDeclaration {
	out := d
	if d.Properties != nil {
		out.Properties = make(map[string]Parameter, len(d.Properties))
		for k, v := range d.Properties {
			v.Enum = append([]string(nil), v.Enum...)
			out.Properties[k] = v
		}
	}
	out.Required = append([]string(nil), d.Required...)
	return out
}
