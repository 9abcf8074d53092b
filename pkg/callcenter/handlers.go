package callcenter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/eburon/callerpro/internal/stream"
	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/call"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
)

// EventKeepAlive is written on idle event streams, and once when a stream
// opens.
const EventKeepAlive call.EventType = "keepAlive"

const writeWait = 10 * time.Second

func (a *App) setupRoutes() {
	a.router.HandleFunc("/health", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", a.Metrics.Handler()).Methods("GET")

	api := a.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/agents", a.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{id}", a.handleGetAgent).Methods("GET")

	api.HandleFunc("/call", a.handleGetCall).Methods("GET")
	api.HandleFunc("/call/events", a.handleEvents).Methods("GET")
	api.HandleFunc("/call/dial", a.handleDial).Methods("POST")
	api.HandleFunc("/call/utterance", a.handleUtterance).Methods("POST")
	api.HandleFunc("/call/hold", a.handleHold).Methods("POST")
	api.HandleFunc("/call/resume", a.handleResume).Methods("POST")
	api.HandleFunc("/call/hangup", a.handleHangUp).Methods("POST")
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"state":  a.Orchestrator.State().String(),
	})
}

// AgentSummary is the public view of a catalog entry. Credentials are
// never included.
type AgentSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Voice           string   `json:"voice,omitempty"`
	AvatarURL       string   `json:"avatar_url,omitempty"`
	Backend         string   `json:"backend"`
	Model           string   `json:"model,omitempty"`
	ThinkingMode    bool     `json:"thinking_mode"`
	ActiveForDialer bool     `json:"active_for_dialer"`
	FirstSentence   string   `json:"first_sentence,omitempty"`
	Tools           []string `json:"tools"`
}

// Summarize builds the public view of a.
func Summarize(a *agent.Agent) AgentSummary {
	s := AgentSummary{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		Voice:           a.Voice,
		AvatarURL:       a.AvatarURL,
		ThinkingMode:    a.ThinkingMode,
		ActiveForDialer: a.ActiveForDialer,
		FirstSentence:   a.FirstSentence,
		Tools:           make([]string, 0, len(a.Tools)),
	}
	switch b := a.Backend.(type) {
	case *agent.HostedSettings:
		s.Backend = string(agent.BackendHosted)
		s.Model = b.Model
	case *agent.LocalSettings:
		s.Backend = string(agent.BackendLocal)
		s.Model = b.Model
	}
	for _, t := range a.Tools {
		s.Tools = append(s.Tools, t.Name)
	}
	return s
}

func (a *App) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.Catalog.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]AgentSummary, 0, len(agents))
	for _, ag := range agents {
		summaries = append(summaries, Summarize(ag))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *App) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := a.Catalog.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Summarize(ag))
}

func (a *App) handleGetCall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Orchestrator.Snapshot())
}

// DialRequest starts a call with a catalog agent.
type DialRequest struct {
	AgentID string `json:"agent_id"`
}

// DialResponse identifies the call that was started.
type DialResponse struct {
	CallID string     `json:"call_id"`
	State  call.State `json:"state"`
}

func (a *App) handleDial(w http.ResponseWriter, r *http.Request) {
	var req DialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "agent_id is required", nil))
		return
	}

	callID, err := a.Orchestrator.Dial(r.Context(), req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, DialResponse{CallID: callID, State: a.Orchestrator.State()})
}

// UtteranceRequest carries caller text or base64 encoded audio.
type UtteranceRequest struct {
	Text     string `json:"text,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

func (a *App) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req UtteranceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := backend.Input{Text: req.Text, Audio: req.Audio, AudioMIME: req.MIMEType}
	if err := a.Orchestrator.SendUtterance(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a.Orchestrator.Snapshot())
}

func (a *App) handleHold(w http.ResponseWriter, r *http.Request) {
	a.respondAfter(w, a.Orchestrator.RequestHold(r.Context()))
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	a.respondAfter(w, a.Orchestrator.Resume(r.Context()))
}

func (a *App) handleHangUp(w http.ResponseWriter, r *http.Request) {
	a.respondAfter(w, a.Orchestrator.HangUp(r.Context()))
}

func (a *App) respondAfter(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Orchestrator.Snapshot())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams caller events as JSON text frames until the client
// goes away.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := ctrllog.FromContext(r.Context()).WithName("event-stream")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(err, "Failed to upgrade event stream")
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(ctrllog.IntoContext(context.Background(), log))
	defer cancel()

	sub := a.Orchestrator.Subscribe()
	defer a.Orchestrator.Unsubscribe(sub)

	// Clients never send; reading surfaces the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepAlive := func() call.Event {
		return call.Event{Type: EventKeepAlive, At: time.Now()}
	}
	write := func(ev call.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.V(1).Info("Event stream closed", "error", err.Error())
			return false
		}
		return true
	}

	if !write(keepAlive()) {
		return
	}
	for ev := range stream.WithKeepAlive(ctx, sub, a.KeepAliveInterval, keepAlive) {
		if !write(ev) {
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body", err))
		return false
	}
	return true
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusFor maps an error's code to an HTTP status.
func StatusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidAgentConfig, apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeAgentNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidState, apperrors.ErrCodeAudioBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Code = appErr.Code
	}
	writeJSON(w, StatusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
