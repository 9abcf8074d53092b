package agent

import (
	"encoding/json"
	"testing"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAgentValidate(t *testing.T) {
	tests := []struct {
		name    string
		agent   *Agent
		wantErr bool
	}{
		{
			name:  "hosted agent",
			agent: &Agent{ID: "a", Backend: NewHostedSettings("")},
		},
		{
			name:  "local agent",
			agent: &Agent{ID: "a", Backend: DefaultLocalSettings(), Tools: CRMTools()},
		},
		{
			name:    "nil agent",
			wantErr: true,
		},
		{
			name:    "missing id",
			agent:   &Agent{Backend: NewHostedSettings("")},
			wantErr: true,
		},
		{
			name:    "missing backend",
			agent:   &Agent{ID: "a"},
			wantErr: true,
		},
		{
			name:    "local without base url",
			agent:   &Agent{ID: "a", Backend: NewLocalSettings("", "gemma", "")},
			wantErr: true,
		},
		{
			name:    "local without model",
			agent:   &Agent{ID: "a", Backend: NewLocalSettings("http://localhost:11434", "", "")},
			wantErr: true,
		},
		{
			name: "duplicate tool",
			agent: &Agent{ID: "a", Backend: NewHostedSettings(""), Tools: []ToolDeclaration{
				{Name: "x"}, {Name: "x"},
			}},
			wantErr: true,
		},
		{
			name: "required parameter not declared",
			agent: &Agent{ID: "a", Backend: NewHostedSettings(""), Tools: []ToolDeclaration{
				{Name: "x", Required: []string{"missing"}},
			}},
			wantErr: true,
		},
		{
			name: "enum on a number",
			agent: &Agent{ID: "a", Backend: NewHostedSettings(""), Tools: []ToolDeclaration{
				{Name: "x", Properties: map[string]Parameter{"n": {Type: ParamNumber, Enum: []string{"1"}}}},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.agent.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidAgentConfig, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAgentUnmarshalJSON(t *testing.T) {
	data := []byte(`{
		"id": "ayla",
		"name": "Ayla",
		"voice": "Kore",
		"backend": {"type": "local", "base_url": "http://localhost:11434", "model": "gemma", "api_key": "secret"},
		"tools": [{"name": "lookup", "description": "d", "properties": {"q": {"type": "string"}}, "required": ["q"]}]
	}`)

	var a Agent
	require.NoError(t, json.Unmarshal(data, &a))

	local, ok := a.Backend.(*LocalSettings)
	require.True(t, ok, "expected *LocalSettings, got %T", a.Backend)
	assert.Equal(t, BackendLocal, local.Type())
	assert.Equal(t, "gemma", local.Model)
	require.NotNil(t, local.APIKey)
	assert.Equal(t, "secret", *local.APIKey)
	require.Len(t, a.Tools, 1)
	assert.True(t, a.Tools[0].IsRequired("q"))
	require.NoError(t, a.Validate())
}

func TestAgentUnmarshalJSONErrors(t *testing.T) {
	var a Agent
	err := json.Unmarshal([]byte(`{"id":"a","backend":{"type":"cloud"}}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported backend type")

	var b Agent
	require.NoError(t, json.Unmarshal([]byte(`{"id":"b"}`), &b))
	assert.Nil(t, b.Backend)
}

func TestAgentRoundTripJSON(t *testing.T) {
	in := DefaultAgents()[0]
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Agent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, &out)
}

func TestAgentUnmarshalYAML(t *testing.T) {
	data := []byte(`
id: stephen
name: Stephen
active_for_dialer: true
backend:
  type: hosted
  model: gemini-live
`)
	var a Agent
	require.NoError(t, yaml.Unmarshal(data, &a))

	hosted, ok := a.Backend.(*HostedSettings)
	require.True(t, ok)
	assert.Equal(t, "gemini-live", hosted.Model)
	assert.True(t, a.ActiveForDialer)
}

func TestAgentClone(t *testing.T) {
	orig := DefaultAgents()[2]
	key := "k"
	orig.Backend.(*LocalSettings).APIKey = &key

	cp := orig.Clone()
	cp.Tools[0].Properties["location"] = Parameter{Type: ParamNumber}
	cp.Tools[1].Required[0] = "changed"
	*cp.Backend.(*LocalSettings).APIKey = "other"

	assert.Equal(t, ParamString, orig.Tools[0].Properties["location"].Type)
	assert.Equal(t, "property_id", orig.Tools[1].Required[0])
	assert.Equal(t, "k", *orig.Backend.(*LocalSettings).APIKey)
}

func TestToolDeclarationJSONSchema(t *testing.T) {
	tools := CRMTools()
	require.Len(t, tools, 2)

	search := tools[0].JSONSchema()
	assert.Equal(t, "object", search["type"])
	_, hasRequired := search["required"]
	assert.False(t, hasRequired)
	props := search["properties"].(map[string]interface{})
	assert.Equal(t, []string{"house", "apartment", "commercial", "land"}, props["type"].(map[string]interface{})["enum"])
	assert.Equal(t, "integer", props["bedrooms"].(map[string]interface{})["type"])

	schedule := tools[1].JSONSchema()
	assert.Equal(t, []string{"property_id", "date", "client_name"}, schedule["required"])
	assert.Equal(t, []string{"client_name", "date", "property_id"}, tools[1].PropertyNames())
}

func TestDefaultAgents(t *testing.T) {
	agents := DefaultAgents()
	require.Len(t, agents, 3)
	for _, a := range agents {
		assert.NoError(t, a.Validate(), a.ID)
	}
	assert.True(t, agents[0].ActiveForDialer)
	assert.Equal(t, "Kore", agents[0].Voice)
	assert.Equal(t, "Puck", agents[1].Voice)
	assert.Equal(t, BackendLocal, agents[2].Backend.Type())
	assert.Len(t, PromptLibrary(), 3)
}
