package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"google.golang.org/genai"
)

const DefaultHostedModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// liveConn is the part of a genai live session the connector uses.
type liveConn interface {
	SendClientContent(input genai.LiveClientContentInput) error
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type liveDialer func(ctx context.Context, apiKey, model string, config *genai.LiveConnectConfig) (liveConn, error)

// HostedConfig holds process-wide defaults for the hosted backend.
type HostedConfig struct {
	Model  string
	APIKey string
}

// HostedConnector opens live multimodal sessions with the agent's voice,
// system prompt and tools.
type HostedConnector struct {
	model  string
	apiKey string
	dial   liveDialer
}

func NewHostedConnector(cfg HostedConfig) *HostedConnector {
	if cfg.Model == "" {
		cfg.Model = DefaultHostedModel
	}
	return &HostedConnector{model: cfg.Model, apiKey: cfg.APIKey, dial: dialLive}
}

func dialLive(ctx context.Context, apiKey, model string, config *genai.LiveConnectConfig) (liveConn, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	session, err := client.Live.Connect(ctx, model, config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *HostedConnector) Type() agent.BackendType {
	return agent.BackendHosted
}

func (c *HostedConnector) Connect(ctx context.Context, a *agent.Agent) (Session, error) {
	settings, ok := a.Backend.(*agent.HostedSettings)
	if !ok {
		return nil, fmt.Errorf("expected hosted settings, got %T", a.Backend)
	}

	model := c.model
	if settings.Model != "" {
		model = settings.Model
	}
	apiKey := c.apiKey
	if settings.APIKey != nil && *settings.APIKey != "" {
		apiKey = *settings.APIKey
	}
	if apiKey == "" {
		return nil, errors.New("no API key configured for the hosted backend")
	}

	conn, err := c.dial(ctx, apiKey, model, liveConfig(a))
	if err != nil {
		return nil, err
	}

	if a.FirstSentence != "" {
		// seed the greeting so the model continues from it
		err := conn.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{{Role: "model", Parts: []*genai.Part{{Text: a.FirstSentence}}}},
			TurnComplete: genai.Ptr(false),
		})
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to seed greeting: %w", err)
		}
	}

	s := &hostedSession{
		conn:   conn,
		msgs:   make(chan received, 16),
		closed: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func liveConfig(a *agent.Agent) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if a.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: a.SystemPrompt}}}
	}
	if a.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: a.Voice},
			},
		}
	}
	if a.ThinkingMode {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(-1))}
	}
	if len(a.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(a.Tools))
		for i := range a.Tools {
			decls = append(decls, functionDeclaration(&a.Tools[i]))
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func functionDeclaration(d *agent.ToolDeclaration) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(d.Properties))
	for name, p := range d.Properties {
		props[name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
			Enum:        append([]string(nil), p.Enum...),
		}
	}
	return &genai.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   append([]string(nil), d.Required...),
		},
	}
}

func schemaType(t agent.ParameterType) genai.Type {
	switch t {
	case agent.ParamNumber:
		return genai.TypeNumber
	case agent.ParamInteger:
		return genai.TypeInteger
	case agent.ParamBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

type received struct {
	msg *genai.LiveServerMessage
	err error
}

type hostedSession struct {
	conn liveConn
	msgs chan received

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *hostedSession) readLoop() {
	defer close(s.msgs)
	for {
		msg, err := s.conn.Receive()
		select {
		case s.msgs <- received{msg: msg, err: err}:
		case <-s.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *hostedSession) Send(ctx context.Context, in Input) (<-chan Event, error) {
	if err := s.send(in); err != nil {
		return nil, err
	}
	events := make(chan Event, 16)
	go s.turn(ctx, events)
	return events, nil
}

func (s *hostedSession) send(in Input) error {
	if len(in.ToolResults) > 0 {
		responses := make([]*genai.FunctionResponse, 0, len(in.ToolResults))
		for _, r := range in.ToolResults {
			responses = append(responses, functionResponse(r))
		}
		return s.conn.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
	}
	if len(in.Audio) > 0 {
		mime := in.AudioMIME
		if mime == "" {
			mime = "audio/pcm;rate=16000"
		}
		if err := s.conn.SendRealtimeInput(genai.LiveRealtimeInput{Audio: &genai.Blob{Data: in.Audio, MIMEType: mime}}); err != nil {
			return err
		}
		return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
	}
	return s.conn.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: in.Text}}}},
		TurnComplete: genai.Ptr(true),
	})
}

func functionResponse(r ToolResult) *genai.FunctionResponse {
	response := map[string]any{}
	if r.OK {
		response["result"] = r.Payload
	} else {
		response["error"] = r.Error
	}
	return &genai.FunctionResponse{ID: r.CallID, Name: r.Name, Response: response}
}

// turn reads server messages until the model finishes speaking or asks for
// tools. A tool call ends the turn; the tool response starts the next one.
func (s *hostedSession) turn(ctx context.Context, events chan<- Event) {
	defer close(events)
	var text strings.Builder

	for {
		var r received
		var ok bool
		select {
		case <-ctx.Done():
			return
		case r, ok = <-s.msgs:
		}
		if !ok {
			emit(ctx, events, Event{Type: EventError, Err: errors.New("live session closed")})
			return
		}
		if r.err != nil {
			emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("live session receive: %w", r.err)})
			return
		}
		msg := r.msg

		if content := msg.ServerContent; content != nil {
			if content.ModelTurn != nil {
				for _, part := range content.ModelTurn.Parts {
					switch {
					case part.InlineData != nil && len(part.InlineData.Data) > 0:
						if !emit(ctx, events, Event{Type: EventAudio, Audio: part.InlineData.Data}) {
							return
						}
					case part.Text != "" && !part.Thought:
						text.WriteString(part.Text)
						if !emit(ctx, events, Event{Type: EventPartialText, Text: part.Text}) {
							return
						}
					}
				}
			}
			if tr := content.OutputTranscription; tr != nil && tr.Text != "" {
				text.WriteString(tr.Text)
				if !emit(ctx, events, Event{Type: EventPartialText, Text: tr.Text}) {
					return
				}
			}
			if content.TurnComplete {
				emit(ctx, events, Event{Type: EventCompleted, Text: text.String()})
				return
			}
		}

		if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
			for i, fc := range msg.ToolCall.FunctionCalls {
				call := &ToolCall{ID: fc.ID, Index: i, Name: fc.Name, Arguments: fc.Args}
				if !emit(ctx, events, Event{Type: EventToolCall, ToolCall: call}) {
					return
				}
			}
			emit(ctx, events, Event{Type: EventCompleted, Text: text.String()})
			return
		}
	}
}

func (s *hostedSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
