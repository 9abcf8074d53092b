package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// LocalConfig tunes the OpenAI-compatible client used for local models.
type LocalConfig struct {
	MaxRetries int
	HTTPClient *http.Client
}

// LocalConnector talks to a self-hosted model (Ollama or any server with an
// OpenAI-compatible /v1 API) at the agent's base URL.
type LocalConnector struct {
	cfg LocalConfig
}

func NewLocalConnector(cfg LocalConfig) *LocalConnector {
	return &LocalConnector{cfg: cfg}
}

func (c *LocalConnector) Type() agent.BackendType {
	return agent.BackendLocal
}

func (c *LocalConnector) Connect(ctx context.Context, a *agent.Agent) (Session, error) {
	settings, ok := a.Backend.(*agent.LocalSettings)
	if !ok {
		return nil, fmt.Errorf("expected local settings, got %T", a.Backend)
	}

	apiKey := ""
	if settings.APIKey != nil {
		apiKey = *settings.APIKey
	}
	opts := []option.RequestOption{
		option.WithBaseURL(apiBase(settings.BaseURL)),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(c.cfg.MaxRetries),
	}
	if c.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	if _, err := client.Models.List(ctx); err != nil {
		return nil, fmt.Errorf("local backend at %s did not answer: %w", settings.BaseURL, err)
	}

	var history []openai.ChatCompletionMessageParamUnion
	if a.SystemPrompt != "" {
		history = append(history, openai.SystemMessage(a.SystemPrompt))
	}
	if a.FirstSentence != "" {
		history = append(history, openai.AssistantMessage(a.FirstSentence))
	}

	return &localSession{
		client:  client,
		model:   settings.Model,
		tools:   chatTools(a.Tools),
		history: history,
	}, nil
}

// apiBase maps "http://host:11434" to "http://host:11434/v1/".
func apiBase(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func chatTools(decls []agent.ToolDeclaration) []openai.ChatCompletionToolParam {
	if len(decls) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(decls))
	for i := range decls {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        decls[i].Name,
				Description: openai.String(decls[i].Description),
				Parameters:  openai.FunctionParameters(decls[i].JSONSchema()),
			},
		})
	}
	return tools
}

type localSession struct {
	client openai.Client
	model  string
	tools  []openai.ChatCompletionToolParam

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
	closed  bool
}

func (s *localSession) Send(ctx context.Context, in Input) (<-chan Event, error) {
	if in.AudioOnly() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "local backend accepts text input only", nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session is closed")
	}
	for _, r := range in.ToolResults {
		s.history = append(s.history, openai.ToolMessage(toolContent(r), r.CallID))
	}
	if in.Text != "" {
		s.history = append(s.history, openai.UserMessage(in.Text))
	}
	params := openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: append([]openai.ChatCompletionMessageParamUnion(nil), s.history...),
		Tools:    s.tools,
	}
	s.mu.Unlock()

	events := make(chan Event, 16)
	go s.stream(ctx, params, events)
	return events, nil
}

// stream emits text as it arrives and tool calls once the reply is whole,
// so no text follows a tool call.
func (s *localSession) stream(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- Event) {
	defer close(events)

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !emit(ctx, events, Event{Type: EventPartialText, Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, events, Event{Type: EventError, Err: err})
		return
	}
	if len(acc.Choices) == 0 {
		emit(ctx, events, Event{Type: EventError, Err: errors.New("local backend returned no choices")})
		return
	}

	msg := acc.Choices[0].Message
	s.mu.Lock()
	s.history = append(s.history, msg.ToParam())
	s.mu.Unlock()

	for i, tc := range msg.ToolCalls {
		call := &ToolCall{ID: tc.ID, Index: i, Name: tc.Function.Name, Arguments: map[string]interface{}{}}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				call.Arguments = map[string]interface{}{}
				call.ArgumentsError = err.Error()
			}
		}
		if !emit(ctx, events, Event{Type: EventToolCall, ToolCall: call}) {
			return
		}
	}
	emit(ctx, events, Event{Type: EventCompleted, Text: msg.Content})
}

func toolContent(r ToolResult) string {
	body := map[string]interface{}{"ok": r.OK}
	if r.OK {
		body["result"] = r.Payload
	} else {
		body["error"] = r.Error
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error":%q}`, err.Error())
	}
	return string(data)
}

func (s *localSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
