package callcenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eburon/callerpro/internal/config"
	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/audio"
	"github.com/eburon/callerpro/pkg/callcenter/audio/audiotest"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/backend/backendtest"
	"github.com/eburon/callerpro/pkg/callcenter/call"
	"github.com/eburon/callerpro/pkg/callcenter/crm"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	"github.com/eburon/callerpro/pkg/callcenter/tools"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond

	greeting = "Hello, thank you for calling Eburon Estates."
	reply    = "We have two apartments in Antwerp."
)

type testApp struct {
	app    *App
	hosted *backendtest.Connector
	device *audiotest.Device
	server *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	ayla := &agent.Agent{
		ID:              "ayla",
		Name:            "Ayla",
		Voice:           "Kore",
		SystemPrompt:    "You are Ayla.",
		FirstSentence:   greeting,
		Tools:           agent.CRMTools(),
		Backend:         agent.NewHostedSettings(""),
		ActiveForDialer: true,
	}
	broken := &agent.Agent{
		ID:      "broken",
		Name:    "Broken",
		Backend: agent.NewLocalSettings("", "", "secret"),
	}
	catalog, err := agent.NewStaticCatalog(broken, ayla)
	require.NoError(t, err)

	m := metrics.New("test")
	device := audiotest.NewDevice()
	hosted := backendtest.NewConnector(agent.BackendHosted, backendtest.Reply(reply))
	registry, err := backend.NewRegistry(hosted, backendtest.NewConnector(agent.BackendLocal, backendtest.Reply(reply)))
	require.NoError(t, err)

	db, err := crm.OpenDB("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	store, err := crm.NewStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Seed(context.Background(), crm.DefaultListings()))

	dispatcher, err := tools.NewDispatcher(m, tools.CRMTools(store)...)
	require.NoError(t, err)

	app := &App{
		Config:   config.DefaultConfig(),
		Catalog:  catalog,
		Metrics:  m,
		Director: audio.NewDirector(device, audio.DirectorConfig{Metrics: m}),
		Router: backend.NewRouter(registry, backend.RouterConfig{
			OpenTimeout: time.Second,
			Metrics:     m,
		}),
		Dispatcher: dispatcher,
		CRM:        store,
		db:         db,
	}
	app.Orchestrator = call.NewOrchestrator(app.Catalog, app.Director, app.Router, app.Dispatcher, call.Config{
		BusyDuration: 50 * time.Millisecond,
		Metrics:      m,
	})

	server := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = app.Close(context.Background())
	})

	return &testApp{app: app, hosted: hosted, device: device, server: server}
}

func (ta *testApp) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ta *testApp) snapshot(t *testing.T) call.Snapshot {
	t.Helper()
	resp, data := ta.do(t, http.MethodGet, "/api/call", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap call.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func (ta *testApp) waitState(t *testing.T, want call.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ta.app.Orchestrator.State() == want
	}, waitFor, tick, "state never reached %s", want)
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t)

	resp, data := ta.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy","state":"idle"}`, string(data))
}

func TestListAgents(t *testing.T) {
	ta := newTestApp(t)

	resp, data := ta.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agents []AgentSummary
	require.NoError(t, json.Unmarshal(data, &agents))
	require.Len(t, agents, 2)
	assert.Equal(t, "ayla", agents[0].ID, "dialer-active agents come first")
	assert.Equal(t, "hosted", agents[0].Backend)
	assert.Equal(t, []string{agent.ToolSearchListings, agent.ToolScheduleViewing}, agents[0].Tools)
	assert.Equal(t, "broken", agents[1].ID)
	assert.Equal(t, "local", agents[1].Backend)
	assert.NotContains(t, string(data), "secret")
}

func TestGetAgent(t *testing.T) {
	ta := newTestApp(t)

	t.Run("found", func(t *testing.T) {
		resp, data := ta.do(t, http.MethodGet, "/api/agents/ayla", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary AgentSummary
		require.NoError(t, json.Unmarshal(data, &summary))
		assert.Equal(t, "Ayla", summary.Name)
		assert.Equal(t, greeting, summary.FirstSentence)
		assert.True(t, summary.ActiveForDialer)
	})

	t.Run("not found", func(t *testing.T) {
		resp, data := ta.do(t, http.MethodGet, "/api/agents/nobody", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, apperrors.ErrCodeAgentNotFound, decodeError(t, data).Code)
	})
}

func TestDialRejections(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeInvalidInput,
		},
		{
			name:       "missing agent id",
			body:       DialRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeInvalidInput,
		},
		{
			name:       "unknown agent",
			body:       DialRequest{AgentID: "nobody"},
			wantStatus: http.StatusNotFound,
			wantCode:   apperrors.ErrCodeAgentNotFound,
		},
		{
			name:       "invalid agent config",
			body:       DialRequest{AgentID: "broken"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeInvalidAgentConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)

			resp, data := ta.do(t, http.MethodPost, "/api/call/dial", tt.body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, data).Code)
			assert.Equal(t, call.StateIdle, ta.app.Orchestrator.State())
			assert.Empty(t, ta.device.Plays())
		})
	}
}

func TestCallRequestsInIdle(t *testing.T) {
	ta := newTestApp(t)

	for _, path := range []string{"/api/call/hold", "/api/call/resume", "/api/call/hangup"} {
		t.Run(path, func(t *testing.T) {
			resp, data := ta.do(t, http.MethodPost, path, nil)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
			assert.Equal(t, apperrors.ErrCodeInvalidState, decodeError(t, data).Code)
		})
	}

	resp, data := ta.do(t, http.MethodPost, "/api/call/utterance", UtteranceRequest{Text: "hello"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperrors.ErrCodeInvalidState, decodeError(t, data).Code)
}

func TestCallFlow(t *testing.T) {
	ta := newTestApp(t)

	resp, data := ta.do(t, http.MethodPost, "/api/call/dial", DialRequest{AgentID: "ayla"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var dial DialResponse
	require.NoError(t, json.Unmarshal(data, &dial))
	assert.NotEmpty(t, dial.CallID)

	ta.waitState(t, call.StateConnected)

	resp, data = ta.do(t, http.MethodPost, "/api/call/dial", DialRequest{AgentID: "ayla"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "only one call at a time")
	assert.Equal(t, apperrors.ErrCodeInvalidState, decodeError(t, data).Code)

	resp, data = ta.do(t, http.MethodPost, "/api/call/utterance", UtteranceRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, decodeError(t, data).Code)

	resp, _ = ta.do(t, http.MethodPost, "/api/call/utterance", UtteranceRequest{Text: "Anything in Antwerp?"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(ta.snapshot(t).Transcript) == 3
	}, waitFor, tick)

	snap := ta.snapshot(t)
	assert.Equal(t, dial.CallID, snap.CallID)
	assert.Equal(t, "ayla", snap.AgentID)
	assert.Equal(t, call.StateConnected, snap.State)
	assert.Equal(t, greeting, snap.Transcript[0].Text)
	assert.Equal(t, call.RoleCaller, snap.Transcript[1].Role)
	assert.Equal(t, reply, snap.Transcript[2].Text)

	resp, data = ta.do(t, http.MethodPost, "/api/call/hold", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var held call.Snapshot
	require.NoError(t, json.Unmarshal(data, &held))
	assert.Equal(t, call.StateHolding, held.State)

	resp, _ = ta.do(t, http.MethodPost, "/api/call/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, call.StateConnected, ta.app.Orchestrator.State())

	resp, data = ta.do(t, http.MethodPost, "/api/call/hangup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ended call.Snapshot
	require.NoError(t, json.Unmarshal(data, &ended))
	assert.Equal(t, call.StateIdle, ended.State)
	assert.Len(t, ended.Transcript, 3, "the last transcript stays readable after hang-up")

	_, data = ta.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, string(data), `test_calls_total{outcome="completed"} 1`)
}

func TestUtteranceAudio(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodPost, "/api/call/dial", DialRequest{AgentID: "ayla"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ta.waitState(t, call.StateConnected)

	// audio is base64 on the wire
	resp, _ = ta.do(t, http.MethodPost, "/api/call/utterance", `{"audio":"AAECAw==","mime_type":"audio/pcm;rate=16000"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		sessions := ta.hosted.Sessions()
		return len(sessions) == 1 && len(sessions[0].Inputs()) == 1
	}, waitFor, tick)

	in := ta.hosted.Sessions()[0].Inputs()[0]
	assert.Equal(t, []byte{0, 1, 2, 3}, in.Audio)
	assert.Equal(t, "audio/pcm;rate=16000", in.AudioMIME)
}

func dialEvents(t *testing.T, ta *testApp) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ta.server.URL, "http") + "/api/call/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) call.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	var ev call.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestEventStream(t *testing.T) {
	ta := newTestApp(t)
	conn := dialEvents(t, ta)

	first := readEvent(t, conn)
	require.Equal(t, EventKeepAlive, first.Type, "the stream opens with a keep-alive")

	resp, _ := ta.do(t, http.MethodPost, "/api/call/dial", DialRequest{AgentID: "ayla"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var states []call.State
	var greeted bool
	for len(states) < 3 || !greeted {
		ev := readEvent(t, conn)
		switch ev.Type {
		case call.EventStateChanged:
			states = append(states, ev.To)
		case call.EventTranscriptAppended:
			require.NotNil(t, ev.Turn)
			assert.Equal(t, greeting, ev.Turn.Text)
			greeted = true
		}
	}
	assert.Equal(t, []call.State{call.StateDialing, call.StateRinging, call.StateConnected}, states)
}

func TestEventStreamKeepAlive(t *testing.T) {
	ta := newTestApp(t)
	ta.app.KeepAliveInterval = 20 * time.Millisecond
	conn := dialEvents(t, ta)

	for i := 0; i < 3; i++ {
		assert.Equal(t, EventKeepAlive, readEvent(t, conn).Type)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "bad", nil), http.StatusBadRequest},
		{apperrors.New(apperrors.ErrCodeInvalidInput, "bad", nil), http.StatusBadRequest},
		{apperrors.New(apperrors.ErrCodeAgentNotFound, "missing", nil), http.StatusNotFound},
		{apperrors.New(apperrors.ErrCodeInvalidState, "busy", nil), http.StatusConflict},
		{apperrors.New(apperrors.ErrCodeAudioBusy, "busy", nil), http.StatusConflict},
		{apperrors.New(apperrors.ErrCodeBackendUnavailable, "down", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestNewApp(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = 18080
	cfg.Audio.Device = "silent"
	cfg.CRM.DSN = "file:TestNewApp?mode=memory&cache=shared"

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close(context.Background())) })

	agents, err := app.Catalog.ListAgents(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, agents)
	assert.True(t, agents[0].ActiveForDialer)

	assert.Equal(t, []string{agent.ToolScheduleViewing, agent.ToolSearchListings}, app.Dispatcher.Names())

	listings, err := app.CRM.SearchListings(context.Background(), crm.SearchCriteria{Location: "Antwerp"})
	require.NoError(t, err)
	assert.NotEmpty(t, listings, "the sqlite store is seeded")

	server, err := app.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:18080", server.Addr)

	// no cache dir configured
	app.Preload(context.Background())
}

func TestNewAppInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CRM.Driver = "mongo"

	_, err := NewApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLoadCatalogAppliesLocalDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - id: offline
    name: Offline Ayla
    backend:
      type: local
  - id: pinned
    name: Pinned
    backend:
      type: local
      base_url: http://gpu-box:11434
      model: llama3
`), 0o644))

	cfg := config.DefaultConfig()
	cfg.Catalog.Path = path
	cfg.Local.APIKey = "local-key"

	catalog, err := LoadCatalog(cfg)
	require.NoError(t, err)

	offline, err := catalog.GetAgent(context.Background(), "offline")
	require.NoError(t, err)
	settings := offline.Backend.(*agent.LocalSettings)
	assert.Equal(t, "http://localhost:11434", settings.BaseURL)
	assert.Equal(t, "gemma", settings.Model)
	require.NotNil(t, settings.APIKey)
	assert.Equal(t, "local-key", *settings.APIKey)
	assert.NoError(t, offline.Validate())

	pinned, err := catalog.GetAgent(context.Background(), "pinned")
	require.NoError(t, err)
	settings = pinned.Backend.(*agent.LocalSettings)
	assert.Equal(t, "http://gpu-box:11434", settings.BaseURL)
	assert.Equal(t, "llama3", settings.Model)
}
