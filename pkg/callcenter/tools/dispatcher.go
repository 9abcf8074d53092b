package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// Dispatcher validates tool calls against an agent's declarations and runs
// the registered tool. Every outcome, including failures, becomes a
// ToolResult so the conversation can continue.
type Dispatcher struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher with the given tools registered.
func NewDispatcher(m *metrics.Metrics, tools ...Tool) (*Dispatcher, error) {
	d := &Dispatcher{
		tools:   make(map[string]Tool),
		metrics: m,
	}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a tool implementation.
func (d *Dispatcher) Register(t Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[t.Name()]; exists {
		return fmt.Errorf("tool %s already registered", t.Name())
	}
	d.tools[t.Name()] = t
	return nil
}

// Names returns the registered tool names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs call if it is declared in decls and its arguments validate.
// The returned result is always usable as model input; the error carries
// the failure code for the caller's bookkeeping.
func (d *Dispatcher) Dispatch(ctx context.Context, decls []agent.ToolDeclaration, call backend.ToolCall) (backend.ToolResult, error) {
	log := ctrllog.FromContext(ctx).WithName("tool-dispatcher").WithValues("tool", call.Name, "callID", call.ID)

	result := backend.ToolResult{CallID: call.ID, Name: call.Name}

	decl := findDeclaration(decls, call.Name)
	d.mu.RLock()
	tool, registered := d.tools[call.Name]
	d.mu.RUnlock()
	if decl == nil || !registered {
		err := apperrors.Newf(apperrors.ErrCodeToolNotFound, "tool %s is not available", call.Name)
		d.metrics.RecordToolCall(call.Name, "not_found")
		log.Info("Model called an unknown tool", "declared", decl != nil, "registered", registered)
		result.Error = err.Error()
		return result, err
	}

	if call.ArgumentsError != "" {
		err := apperrors.Newf(apperrors.ErrCodeToolValidation,
			"%s: arguments are not valid JSON: %s", call.Name, call.ArgumentsError)
		d.metrics.RecordToolCall(call.Name, "validation_error")
		log.Info("Rejected tool call", "error", err.Error())
		result.Error = err.Error()
		return result, err
	}

	args, err := Validate(decl, call.Arguments)
	if err != nil {
		d.metrics.RecordToolCall(call.Name, "validation_error")
		log.Info("Rejected tool call", "error", err.Error())
		result.Error = err.Error()
		return result, err
	}

	log.V(1).Info("Running tool", "args", args)
	payload, err := tool.Run(ctx, args)
	if err != nil {
		err = apperrors.New(apperrors.ErrCodeToolExecution, fmt.Sprintf("%s failed", call.Name), err)
		d.metrics.RecordToolCall(call.Name, "execution_error")
		log.Error(err, "Tool execution failed")
		result.Error = err.Error()
		return result, err
	}

	d.metrics.RecordToolCall(call.Name, "ok")
	result.OK = true
	result.Payload = payload
	return result, nil
}

func findDeclaration(decls []agent.ToolDeclaration, name string) *agent.ToolDeclaration {
	for i := range decls {
		if decls[i].Name == name {
			return &decls[i]
		}
	}
	return nil
}
