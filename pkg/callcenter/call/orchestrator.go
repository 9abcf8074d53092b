package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/audio"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	"github.com/eburon/callerpro/pkg/callcenter/tools"
)

const DefaultBusyDuration = 3 * time.Second

const (
	outcomeCompleted = "completed"
	outcomeAbandoned = "abandoned"
	outcomeFailed    = "failed"
)

// Config configures an Orchestrator.
type Config struct {
	// BusyDuration bounds the busy tone played after a failed call.
	BusyDuration time.Duration
	Metrics      *metrics.Metrics
	// Sink receives agent speech audio. Nil drops it.
	Sink audio.Sink
}

// Snapshot is the caller-visible view of the call slot.
type Snapshot struct {
	CallID     string `json:"call_id,omitempty"`
	State      State  `json:"state"`
	AgentID    string `json:"agent_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Transcript []Turn `json:"transcript"`
}

// Orchestrator runs one call at a time. Every state change happens under
// mu; background work for a call re-checks that its session is still the
// current one before touching state, so results that arrive after hang-up
// are dropped.
type Orchestrator struct {
	catalog    agent.Catalog
	director   *audio.Director
	router     *backend.Router
	dispatcher *tools.Dispatcher
	events     *Broadcaster
	cfg        Config
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state State
	call  *session
	last  *session
}

type session struct {
	id         string
	agent      *agent.Agent
	ctx        context.Context
	cancel     context.CancelFunc
	output     *audio.Output
	handle     *backend.Handle
	transcript *Transcript

	pending []backend.Input
	inTurn  bool
	outcome string
	err     error
}

func NewOrchestrator(catalog agent.Catalog, director *audio.Director, router *backend.Router, dispatcher *tools.Dispatcher, cfg Config) *Orchestrator {
	if cfg.BusyDuration <= 0 {
		cfg.BusyDuration = DefaultBusyDuration
	}
	if dispatcher == nil {
		dispatcher, _ = tools.NewDispatcher(cfg.Metrics)
	}
	return &Orchestrator{
		catalog:    catalog,
		director:   director,
		router:     router,
		dispatcher: dispatcher,
		events:     NewBroadcaster(),
		cfg:        cfg,
		metrics:    cfg.Metrics,
		state:      StateIdle,
	}
}

// Dial looks up agentID in the catalog and places a call to it.
func (o *Orchestrator) Dial(ctx context.Context, agentID string) (string, error) {
	a, err := o.catalog.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	return o.DialAgent(ctx, a)
}

// DialAgent starts a call: the ring tone plays while the backend session
// opens in the background. It returns the call id. An agent without a
// usable backend is rejected before any audio plays.
func (o *Orchestrator) DialAgent(ctx context.Context, a *agent.Agent) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return "", apperrors.Newf(apperrors.ErrCodeInvalidState, "cannot dial while %s", o.state)
	}

	id := uuid.NewString()
	output, err := o.director.Acquire(id)
	if err != nil {
		return "", err
	}

	log := ctrllog.FromContext(ctx).WithName("call").WithValues("callID", id, "agent", a.ID)
	callCtx, cancel := context.WithCancel(ctrllog.IntoContext(context.WithoutCancel(ctx), log))
	s := &session{
		id:         id,
		agent:      a,
		ctx:        callCtx,
		cancel:     cancel,
		output:     output,
		transcript: NewTranscript(),
	}
	o.call = s
	o.last = s

	log.Info("Dialing agent", "backend", a.Backend.Type())
	o.transition(s, StateDialing)
	s.output.PlayProgress(s.ctx, audio.KindRing)
	s.handle = o.router.OpenSession(s.ctx, a)
	o.transition(s, StateRinging)

	go o.awaitOpen(s)
	return id, nil
}

func (o *Orchestrator) awaitOpen(s *session) {
	select {
	case <-s.handle.Ready():
	case <-s.ctx.Done():
		return
	}
	openErr := s.handle.Err()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s || o.state != StateRinging {
		return
	}
	if openErr != nil {
		o.failLocked(s, openErr)
		return
	}

	s.output.StopProgress()
	s.output.PlayAmbient(s.ctx)
	o.transition(s, StateConnected)
	o.appendLocked(s, Turn{Role: RoleAgent, Text: s.agent.FirstSentence})
	o.pumpLocked(s)
}

// SendUtterance relays caller text or audio to the agent. Utterances sent
// while a reply is still streaming are queued in order.
func (o *Orchestrator) SendUtterance(ctx context.Context, in backend.Input) error {
	if in.Empty() {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "utterance is empty", nil)
	}
	if len(in.ToolResults) > 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "callers cannot send tool results", nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.call
	if s == nil || o.state != StateConnected {
		return apperrors.Newf(apperrors.ErrCodeInvalidState, "cannot send an utterance while %s", o.state)
	}
	if in.AudioOnly() && s.handle.Backend == agent.BackendLocal {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "local agents accept text utterances only", nil)
	}
	o.appendLocked(s, Turn{Role: RoleCaller, Text: in.Text, AudioBytes: len(in.Audio)})
	s.pending = append(s.pending, in)
	o.pumpLocked(s)
	return nil
}

// RequestHold suspends the conversation and plays the hold tone.
func (o *Orchestrator) RequestHold(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.call
	if s == nil || o.state != StateConnected {
		return apperrors.Newf(apperrors.ErrCodeInvalidState, "cannot hold while %s", o.state)
	}
	o.transition(s, StateHolding)
	s.output.StopAmbient()
	s.output.PlayProgress(s.ctx, audio.KindHold)
	return nil
}

// Resume returns a held call to the conversation.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.call
	if s == nil || o.state != StateHolding {
		return apperrors.Newf(apperrors.ErrCodeInvalidState, "cannot resume while %s", o.state)
	}
	s.output.StopProgress()
	s.output.PlayAmbient(s.ctx)
	o.transition(s, StateConnected)
	o.pumpLocked(s)
	return nil
}

// HangUp ends the call from any active state without waiting for pending
// audio or backend work. It is a no-op while the call is already ending.
func (o *Orchestrator) HangUp(ctx context.Context) error {
	o.mu.Lock()
	s, state := o.call, o.state
	o.mu.Unlock()

	switch state {
	case StateIdle:
		return apperrors.New(apperrors.ErrCodeInvalidState, "no call in progress", nil)
	case StateTerminating:
		return nil
	}
	o.terminate(s)
	return nil
}

// Close hangs up any active call.
func (o *Orchestrator) Close(ctx context.Context) {
	if err := o.HangUp(ctx); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeInvalidState) {
		ctrllog.FromContext(ctx).Error(err, "Failed to hang up on shutdown")
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transcript returns the turns of the current call, or of the last call
// once it has ended.
func (o *Orchestrator) Transcript() []Turn {
	o.mu.Lock()
	s := o.last
	o.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.transcript.Turns()
}

// Snapshot returns the state of the slot with the current or last call.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{State: o.state, Transcript: []Turn{}}
	if s := o.last; s != nil {
		snap.CallID = s.id
		snap.AgentID = s.agent.ID
		snap.Transcript = s.transcript.Turns()
		if s.err != nil {
			snap.Error = s.err.Error()
		}
	}
	return snap
}

// Subscribe streams caller events until Unsubscribe.
func (o *Orchestrator) Subscribe() <-chan Event {
	return o.events.Subscribe()
}

func (o *Orchestrator) Unsubscribe(ch <-chan Event) {
	o.events.Unsubscribe(ch)
}

// pumpLocked starts the next queued input unless a turn is in flight or the
// call is not connected.
func (o *Orchestrator) pumpLocked(s *session) {
	if s.inTurn || o.state != StateConnected || len(s.pending) == 0 {
		return
	}
	in := s.pending[0]
	s.pending = s.pending[1:]
	s.inTurn = true
	go o.runTurn(s, in)
}

func (o *Orchestrator) runTurn(s *session, in backend.Input) {
	log := ctrllog.FromContext(s.ctx)

	events, err := o.router.SendCallerUtterance(s.ctx, s.handle, in)
	if apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		log.Info("Backend rejected input", "error", err.Error())
		o.turnRejected(s)
		return
	}
	if err != nil {
		o.turnFailed(s, err)
		return
	}

	var (
		text       strings.Builder
		sawPartial bool
		results    []backend.ToolResult
	)
	for ev := range events {
		switch ev.Type {
		case backend.EventPartialText:
			sawPartial = true
			text.WriteString(ev.Text)
			if !o.publishIfCurrent(s, Event{Type: EventPartialText, Text: ev.Text}) {
				return
			}
		case backend.EventAudio:
			o.playAgentAudio(s, ev.Audio)
		case backend.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			call := *ev.ToolCall
			if !o.record(s, flushText(&text), Turn{Role: RoleAgent, ToolCall: &call}) {
				return
			}
			result, err := o.dispatcher.Dispatch(s.ctx, s.agent.Tools, call)
			if err != nil {
				log.V(1).Info("Tool call returned an error to the model", "tool", call.Name, "code", apperrors.CodeOf(err))
			}
			if !o.record(s, Turn{Role: RoleTool, ToolResult: &result}) {
				return
			}
			results = append(results, result)
		case backend.EventCompleted:
			if !sawPartial {
				text.WriteString(ev.Text)
			}
			o.completeTurn(s, flushText(&text), results)
			return
		case backend.EventError:
			o.turnFailed(s, ev.Err)
			return
		}
	}
	// the turn was cut off by hang-up
}

func (o *Orchestrator) completeTurn(s *session, reply Turn, results []backend.ToolResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s || !o.live() {
		return
	}
	o.appendLocked(s, reply)
	s.inTurn = false
	if len(results) > 0 {
		s.pending = append([]backend.Input{{ToolResults: results}}, s.pending...)
	}
	o.pumpLocked(s)
}

// turnRejected ends a turn whose input the backend refused. The call goes
// on with the next queued input.
func (o *Orchestrator) turnRejected(s *session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s {
		return
	}
	s.inTurn = false
	o.pumpLocked(s)
}

func (o *Orchestrator) turnFailed(s *session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s {
		return
	}
	s.inTurn = false
	if o.state == StateConnected || o.state == StateHolding {
		o.failLocked(s, err)
	}
}

// failLocked moves the call to Failed, plays the busy tone and schedules
// termination.
func (o *Orchestrator) failLocked(s *session, err error) {
	log := ctrllog.FromContext(s.ctx)
	log.Info("Call failed", "error", err.Error())

	s.err = err
	s.outcome = outcomeFailed
	o.transition(s, StateFailed)

	callErr := apperrors.New(apperrors.ErrCodeCallFailed, "call failed", err)
	o.events.Publish(Event{
		Type:   EventCallFailed,
		CallID: s.id,
		Error:  callErr.Error(),
		Code:   apperrors.CodeOf(err),
		At:     time.Now(),
	})

	s.output.StopAmbient()
	busy := s.output.PlayProgress(s.ctx, audio.KindBusy)
	go o.finishFailed(s, busy)
}

func (o *Orchestrator) finishFailed(s *session, busy *audio.Layer) {
	timer := time.NewTimer(o.cfg.BusyDuration)
	defer timer.Stop()

	var done <-chan struct{}
	if busy != nil {
		done = busy.Done()
	}
	select {
	case <-timer.C:
	case <-done:
	case <-s.ctx.Done():
		return
	}
	o.terminate(s)
}

// terminate runs the Terminating state for s: the call context is
// cancelled, then audio and the backend session are released outside the
// lock so a slow close cannot stall other callers.
func (o *Orchestrator) terminate(s *session) {
	o.mu.Lock()
	if o.call != s || o.state == StateTerminating || o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	if s.outcome == "" {
		s.outcome = outcomeFor(o.state)
	}
	o.transition(s, StateTerminating)
	s.cancel()
	o.mu.Unlock()

	if err := o.cleanup(s); err != nil {
		ctrllog.FromContext(s.ctx).Error(err, "Call cleanup was incomplete")
	}

	o.mu.Lock()
	o.transition(s, StateIdle)
	o.call = nil
	o.mu.Unlock()

	o.metrics.RecordCall(s.outcome)
	ctrllog.FromContext(s.ctx).Info("Call ended", "outcome", s.outcome, "turns", s.transcript.Len())
}

// cleanup releases everything the call holds. Every step runs even when an
// earlier one fails.
func (o *Orchestrator) cleanup(s *session) error {
	var result *multierror.Error

	s.output.Release()
	if err := o.router.CloseSession(s.handle); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close backend session: %w", err))
	}
	if o.cfg.Sink != nil {
		if err := o.cfg.Sink.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close audio sink: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (o *Orchestrator) playAgentAudio(s *session, data []byte) {
	if o.cfg.Sink == nil || len(data) == 0 {
		return
	}
	if err := o.cfg.Sink.Write(data); err != nil {
		o.metrics.RecordPlaybackError("agent")
		ctrllog.FromContext(s.ctx).V(1).Info("Dropped agent audio", "error", err.Error())
	}
}

// transition must be called with mu held.
func (o *Orchestrator) transition(s *session, to State) {
	from := o.state
	if !CanTransition(from, to) {
		ctrllog.FromContext(s.ctx).Error(fmt.Errorf("illegal transition %s -> %s", from, to), "Ignoring state change")
		return
	}
	o.state = to
	o.metrics.RecordTransition(string(from), string(to), string(StateIdle))
	ctrllog.FromContext(s.ctx).V(1).Info("Call state changed", "from", from, "to", to)
	o.events.Publish(Event{Type: EventStateChanged, CallID: s.id, From: from, To: to, At: time.Now()})
}

// appendLocked adds a non-empty turn to the transcript and announces it.
func (o *Orchestrator) appendLocked(s *session, turn Turn) {
	if turn.Text == "" && turn.AudioBytes == 0 && turn.ToolCall == nil && turn.ToolResult == nil {
		return
	}
	stored := s.transcript.Append(turn)
	o.events.Publish(Event{Type: EventTranscriptAppended, CallID: s.id, Turn: &stored, At: stored.At})
}

// record appends turns if s is still the live call.
func (o *Orchestrator) record(s *session, turns ...Turn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s || !o.live() {
		return false
	}
	for _, t := range turns {
		o.appendLocked(s, t)
	}
	return true
}

func (o *Orchestrator) publishIfCurrent(s *session, ev Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.call != s || !o.live() {
		return false
	}
	ev.CallID = s.id
	ev.At = time.Now()
	o.events.Publish(ev)
	return true
}

// live reports whether the conversation may still change. Must hold mu.
func (o *Orchestrator) live() bool {
	return o.state == StateConnected || o.state == StateHolding
}

func flushText(b *strings.Builder) Turn {
	t := Turn{Role: RoleAgent, Text: strings.TrimSpace(b.String())}
	b.Reset()
	return t
}

func outcomeFor(state State) string {
	switch state {
	case StateConnected, StateHolding:
		return outcomeCompleted
	case StateFailed:
		return outcomeFailed
	default:
		return outcomeAbandoned
	}
}
