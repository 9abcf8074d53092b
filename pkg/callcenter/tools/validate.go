package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
)

// Validate checks args against decl and returns the normalized arguments.
// Undeclared arguments are dropped, numbers are coerced to float64, and
// integers to int. The first offending field is named in the error.
func Validate(decl *agent.ToolDeclaration, args map[string]interface{}) (map[string]interface{}, error) {
	for _, name := range decl.Required {
		v, ok := args[name]
		if !ok || v == nil {
			return nil, apperrors.Newf(apperrors.ErrCodeToolValidation,
				"%s: missing required argument %s", decl.Name, name)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return nil, apperrors.Newf(apperrors.ErrCodeToolValidation,
				"%s: required argument %s is empty", decl.Name, name)
		}
	}

	out := make(map[string]interface{}, len(args))
	for _, name := range decl.PropertyNames() {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		param := decl.Properties[name]
		coerced, ok := coerce(param.Type, v)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrCodeToolValidation,
				"%s: argument %s must be a %s", decl.Name, name, param.Type)
		}
		if len(param.Enum) > 0 && !contains(param.Enum, coerced.(string)) {
			return nil, apperrors.Newf(apperrors.ErrCodeToolValidation,
				"%s: argument %s must be one of %s", decl.Name, name, strings.Join(param.Enum, ", "))
		}
		out[name] = coerced
	}
	return out, nil
}

func coerce(t agent.ParameterType, v interface{}) (interface{}, bool) {
	switch t {
	case agent.ParamString:
		s, ok := v.(string)
		return s, ok
	case agent.ParamNumber:
		f, ok := toFloat(v)
		return f, ok
	case agent.ParamInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || f < math.MinInt || f >= -math.MinInt {
			return nil, false
		}
		return int(f), true
	case agent.ParamBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(b)
			return parsed, err == nil
		}
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// local models sometimes quote numbers
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
