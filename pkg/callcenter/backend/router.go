package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	"github.com/google/uuid"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

const DefaultOpenTimeout = 15 * time.Second

// RouterConfig configures a Router.
type RouterConfig struct {
	OpenTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Router picks the connector for an agent's backend type and gives both
// backend kinds one session contract.
type Router struct {
	registry *Registry
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewRouter(registry *Registry, cfg RouterConfig) *Router {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &Router{registry: registry, timeout: cfg.OpenTimeout, metrics: cfg.Metrics}
}

// Handle is a backend session that may still be connecting. It belongs to
// exactly one call.
type Handle struct {
	ID      string
	Backend agent.BackendType

	ready  chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	session Session
	err     error
	closed  bool
}

// Ready is closed once the open attempt has resolved either way.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

// Err is the open failure, valid after Ready.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the session is open or the attempt failed.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ready:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenSession starts connecting in the background and returns at once.
// Cancelling ctx or closing the handle aborts a pending connect.
func (r *Router) OpenSession(ctx context.Context, a *agent.Agent) *Handle {
	sessionCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:     uuid.NewString(),
		ready:  make(chan struct{}),
		cancel: cancel,
	}
	if a != nil && a.Backend != nil {
		h.Backend = a.Backend.Type()
	}

	go r.open(sessionCtx, h, a)
	return h
}

func (r *Router) open(ctx context.Context, h *Handle, a *agent.Agent) {
	log := ctrllog.FromContext(ctx).WithName("backend-router").WithValues("handle", h.ID, "backend", h.Backend)
	defer close(h.ready)

	sess, err := r.connect(ctx, a)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.err = err
		r.metrics.RecordBackendSession(string(h.Backend), "unavailable")
		log.Info("Backend session failed to open", "error", err.Error())
		return
	}
	if h.closed {
		// closed while connecting; the late session is not wanted
		_ = sess.Close()
		h.err = apperrors.New(apperrors.ErrCodeSessionClosed, "session closed before it opened", nil)
		r.metrics.RecordBackendSession(string(h.Backend), "abandoned")
		log.V(1).Info("Discarded backend session that opened after close")
		return
	}
	h.session = sess
	r.metrics.RecordBackendSession(string(h.Backend), "opened")
	log.V(1).Info("Backend session opened")
}

func (r *Router) connect(ctx context.Context, a *agent.Agent) (Session, error) {
	if err := a.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable, "agent backend is not usable", err)
	}
	conn, err := r.registry.Get(a.Backend.Type())
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable, "backend is not available", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sess, err := conn.Connect(dialCtx, a)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable,
				fmt.Sprintf("%s backend did not answer within %s", a.Backend.Type(), r.timeout), err)
		}
		return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to connect to %s backend", a.Backend.Type()), err)
	}
	return sess, nil
}

// SendCallerUtterance relays in on an open session. The returned channel
// yields the turn's events and closes after the terminal one; if ctx is
// cancelled first the channel closes without a terminal event.
func (r *Router) SendCallerUtterance(ctx context.Context, h *Handle, in Input) (<-chan Event, error) {
	if in.Empty() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "utterance is empty", nil)
	}

	select {
	case <-h.ready:
	default:
		return nil, apperrors.New(apperrors.ErrCodeSessionClosed, "session is not open yet", nil)
	}

	h.mu.Lock()
	sess, openErr, closed := h.session, h.err, h.closed
	h.mu.Unlock()

	switch {
	case closed:
		return nil, apperrors.New(apperrors.ErrCodeSessionClosed, "session is closed", nil)
	case openErr != nil:
		return nil, openErr
	}

	upstream, err := sess.Send(ctx, in)
	if err != nil {
		// the session stays usable after rejecting an input it cannot take
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ErrCodeBackendTurn, "failed to send to backend", err)
	}

	out := make(chan Event, 16)
	go r.relay(ctx, h.Backend, upstream, out)
	return out, nil
}

func (r *Router) relay(ctx context.Context, backend agent.BackendType, upstream <-chan Event, out chan<- Event) {
	defer close(out)
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-upstream:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				emit(ctx, out, Event{Type: EventError, Err: apperrors.New(apperrors.ErrCodeBackendTurn,
					"backend ended the turn without a reply", nil)})
				return
			}
			if ev.Type == EventError {
				var appErr *apperrors.AppError
				if !errors.As(ev.Err, &appErr) {
					ev.Err = apperrors.New(apperrors.ErrCodeBackendTurn, "backend turn failed", ev.Err)
				}
			}
			if !emit(ctx, out, ev) {
				return
			}
			if ev.Terminal() {
				r.metrics.ObserveTurn(string(backend), time.Since(start))
				return
			}
		}
	}
}

// CloseSession releases the session. It is idempotent and also aborts an
// open that has not resolved; a session arriving afterwards is closed.
func (r *Router) CloseSession(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sess := h.session
	h.session = nil
	h.mu.Unlock()

	h.cancel()
	if sess != nil {
		return sess.Close()
	}
	return nil
}
