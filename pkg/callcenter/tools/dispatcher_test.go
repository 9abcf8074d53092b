package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/crm"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
)

// MockCRM is a mock implementation of crm.Service
type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) SearchListings(ctx context.Context, criteria crm.SearchCriteria) ([]crm.Listing, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]crm.Listing), args.Error(1)
}

func (m *MockCRM) ScheduleViewing(ctx context.Context, propertyID, dateISO, clientName string) (*crm.Confirmation, error) {
	args := m.Called(ctx, propertyID, dateISO, clientName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.Confirmation), args.Error(1)
}

func newDispatcher(t *testing.T, svc crm.Service) (*Dispatcher, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test")
	d, err := NewDispatcher(m, CRMTools(svc)...)
	require.NoError(t, err)
	return d, m
}

func TestDispatchScheduleViewingMissingClientName(t *testing.T) {
	svc := new(MockCRM)
	d, m := newDispatcher(t, svc)

	result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{
		ID:   "call-1",
		Name: agent.ToolScheduleViewing,
		Arguments: map[string]interface{}{
			"property_id": "EB-1001",
			"date":        "2026-02-12T14:00",
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolValidation, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "client_name")
	assert.False(t, result.OK)
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, agent.ToolScheduleViewing, result.Name)
	assert.Contains(t, result.Error, "client_name")
	svc.AssertNotCalled(t, "ScheduleViewing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(agent.ToolScheduleViewing, "validation_error")))
}

func TestDispatchScheduleViewing(t *testing.T) {
	svc := new(MockCRM)
	conf := &crm.Confirmation{ConfirmationID: "c-1", PropertyID: "EB-1001", ClientName: "Ann",
		ScheduledAt: time.Date(2026, 2, 12, 14, 0, 0, 0, time.UTC)}
	svc.On("ScheduleViewing", mock.Anything, "EB-1001", "2026-02-12T14:00", "Ann").Return(conf, nil)
	d, m := newDispatcher(t, svc)

	result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{
		ID:   "call-2",
		Name: agent.ToolScheduleViewing,
		Arguments: map[string]interface{}{
			"property_id": "EB-1001",
			"date":        "2026-02-12T14:00",
			"client_name": "Ann",
			"mood":        "excited",
		},
	})

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, conf, result.Payload)
	svc.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(agent.ToolScheduleViewing, "ok")))
}

func TestDispatchSearchListingsCoercesArguments(t *testing.T) {
	svc := new(MockCRM)
	svc.On("SearchListings", mock.Anything, mock.MatchedBy(func(c crm.SearchCriteria) bool {
		return c.Location == "Antwerp" && c.Bedrooms != nil && *c.Bedrooms == 2 &&
			c.PriceMax != nil && *c.PriceMax == 900000 && c.PriceMin == nil && c.Type == "apartment"
	})).Return([]crm.Listing{{ID: "EB-1003"}}, nil)
	d, _ := newDispatcher(t, svc)

	result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{
		Name: agent.ToolSearchListings,
		Arguments: map[string]interface{}{
			"location":  "Antwerp",
			"bedrooms":  2.0,
			"price_max": "900000",
			"type":      "apartment",
		},
	})

	require.NoError(t, err)
	require.True(t, result.OK)
	payload := result.Payload.(map[string]interface{})
	assert.Equal(t, 1, payload["count"])
	svc.AssertExpectations(t)
}

func TestDispatchValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		tool      string
		args      map[string]interface{}
		wantField string
	}{
		{
			name:      "empty required string",
			tool:      agent.ToolScheduleViewing,
			args:      map[string]interface{}{"property_id": "  ", "date": "2026-02-12", "client_name": "Ann"},
			wantField: "property_id",
		},
		{
			name:      "wrong type",
			tool:      agent.ToolSearchListings,
			args:      map[string]interface{}{"location": 42.0},
			wantField: "location",
		},
		{
			name:      "fractional integer",
			tool:      agent.ToolSearchListings,
			args:      map[string]interface{}{"bedrooms": 2.5},
			wantField: "bedrooms",
		},
		{
			name:      "integer out of range",
			tool:      agent.ToolSearchListings,
			args:      map[string]interface{}{"bedrooms": 1e300},
			wantField: "bedrooms",
		},
		{
			name:      "negative integer out of range",
			tool:      agent.ToolSearchListings,
			args:      map[string]interface{}{"bedrooms": -1e300},
			wantField: "bedrooms",
		},
		{
			name:      "value outside enum",
			tool:      agent.ToolSearchListings,
			args:      map[string]interface{}{"type": "castle"},
			wantField: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockCRM)
			d, _ := newDispatcher(t, svc)

			result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{Name: tt.tool, Arguments: tt.args})

			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeToolValidation))
			assert.Contains(t, err.Error(), tt.wantField)
			assert.False(t, result.OK)
			svc.AssertNotCalled(t, "SearchListings", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "ScheduleViewing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	svc := new(MockCRM)
	d, m := newDispatcher(t, svc)

	result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{
		ID:             "call-1",
		Name:           agent.ToolSearchListings,
		Arguments:      map[string]interface{}{},
		ArgumentsError: "unexpected end of JSON input",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolValidation, apperrors.CodeOf(err))
	assert.Contains(t, result.Error, "not valid JSON")
	assert.NotContains(t, result.Error, "missing required argument")
	assert.False(t, result.OK)
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(agent.ToolSearchListings, "validation_error")))
	svc.AssertNotCalled(t, "SearchListings", mock.Anything, mock.Anything)
}

func TestDispatchToolNotFound(t *testing.T) {
	svc := new(MockCRM)
	d, m := newDispatcher(t, svc)

	t.Run("undeclared", func(t *testing.T) {
		result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{Name: "transfer_call"})
		assert.Equal(t, apperrors.ErrCodeToolNotFound, apperrors.CodeOf(err))
		assert.False(t, result.OK)
		assert.Contains(t, result.Error, "transfer_call")
	})

	t.Run("declared but not registered", func(t *testing.T) {
		decls := []agent.ToolDeclaration{{Name: "transfer_call", Description: "Transfer to a human."}}
		_, err := d.Dispatch(context.Background(), decls, backend.ToolCall{Name: "transfer_call"})
		assert.Equal(t, apperrors.ErrCodeToolNotFound, apperrors.CodeOf(err))
	})

	t.Run("registered but not declared by the agent", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), nil, backend.ToolCall{Name: agent.ToolSearchListings})
		assert.Equal(t, apperrors.ErrCodeToolNotFound, apperrors.CodeOf(err))
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("transfer_call", "not_found")))
}

func TestDispatchExecutionFailure(t *testing.T) {
	svc := new(MockCRM)
	rejected := apperrors.Newf(apperrors.ErrCodeScheduleRejected, "date 2020-01-01 is in the past")
	svc.On("ScheduleViewing", mock.Anything, "EB-1001", "2020-01-01", "Ann").Return(nil, rejected)
	d, m := newDispatcher(t, svc)

	result, err := d.Dispatch(context.Background(), agent.CRMTools(), backend.ToolCall{
		Name:      agent.ToolScheduleViewing,
		Arguments: map[string]interface{}{"property_id": "EB-1001", "date": "2020-01-01", "client_name": "Ann"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolExecution, apperrors.CodeOf(err))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeScheduleRejected))
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "in the past")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(agent.ToolScheduleViewing, "execution_error")))
}

func TestRegisterDuplicate(t *testing.T) {
	d, err := NewDispatcher(nil, NewSearchListingsTool(new(MockCRM)))
	require.NoError(t, err)
	assert.Error(t, d.Register(NewSearchListingsTool(new(MockCRM))))
	assert.Equal(t, []string{agent.ToolSearchListings}, d.Names())

	_, err = NewDispatcher(nil, NewSearchListingsTool(nil), NewSearchListingsTool(nil))
	assert.Error(t, err)
}

func TestValidateBoolean(t *testing.T) {
	decl := &agent.ToolDeclaration{
		Name:       "notify",
		Properties: map[string]agent.Parameter{"urgent": {Type: agent.ParamBoolean}},
	}
	args, err := Validate(decl, map[string]interface{}{"urgent": "true"})
	require.NoError(t, err)
	assert.Equal(t, true, args["urgent"])

	_, err = Validate(decl, map[string]interface{}{"urgent": 1.0})
	assert.Error(t, err)
}

func TestSearchListingsToolError(t *testing.T) {
	svc := new(MockCRM)
	svc.On("SearchListings", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := NewSearchListingsTool(svc).Run(context.Background(), map[string]interface{}{})
	assert.EqualError(t, err, "db down")
}
