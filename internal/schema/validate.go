// Package schema validates produced values against declared result types.
// Validation never mutates flow state; errors are feedback for the acting
// agent, not fatal failures.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thomascherickal/agentflow/pkg/models"
)

// ValidationError describes why a value did not satisfy a result type.
// It is recoverable: the executor surfaces it to the agent as feedback.
type ValidationError struct {
	// Path locates the failing value inside a record, empty at top level.
	Path string
	// Reason is the human-readable cause.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: field %q: %s", e.Path, e.Reason)
}

func fail(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks value against the declared result type and returns the
// coerced value. Agent payloads arrive as JSON-decoded values, so numbers
// may be float64 even for integer fields; integral floats are coerced.
// Record types require an exact field-set match: missing or extra fields
// are validation errors.
func Validate(value any, rt models.ResultType) (any, error) {
	return validate(value, rt, "")
}

func validate(value any, rt models.ResultType, path string) (any, error) {
	switch rt.Kind {
	case models.KindNone:
		if value != nil {
			return nil, fail(path, "result type is none, but a value was provided")
		}
		return nil, nil

	case models.KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fail(path, "expected a string, got %T", value)
		}
		return s, nil

	case models.KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fail(path, "expected an integer, got %v", v)
			}
			return int(v), nil
		default:
			return nil, fail(path, "expected an integer, got %T", value)
		}

	case models.KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fail(path, "expected a number, got %T", value)
		}

	case models.KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fail(path, "expected a boolean, got %T", value)
		}
		return b, nil

	case models.KindEnum:
		s, ok := value.(string)
		if !ok {
			return nil, fail(path, "expected one of [%s], got %T", strings.Join(rt.Members, ", "), value)
		}
		for _, m := range rt.Members {
			if s == m {
				return s, nil
			}
		}
		return nil, fail(path, "value %q is not one of [%s]", s, strings.Join(rt.Members, ", "))

	case models.KindRecord:
		rec, ok := value.(map[string]any)
		if !ok {
			return nil, fail(path, "expected an object with fields [%s], got %T", strings.Join(rt.FieldNames(), ", "), value)
		}
		out := make(map[string]any, len(rt.Fields))
		declared := make(map[string]bool, len(rt.Fields))
		for _, f := range rt.Fields {
			declared[f.Name] = true
			raw, present := rec[f.Name]
			if !present {
				return nil, fail(path, "missing required field %q", f.Name)
			}
			coerced, err := validate(raw, f.Type, joinPath(path, f.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = coerced
		}
		var extras []string
		for name := range rec {
			if !declared[name] {
				extras = append(extras, name)
			}
		}
		if len(extras) > 0 {
			sort.Strings(extras)
			return nil, fail(path, "unexpected fields [%s]", strings.Join(extras, ", "))
		}
		return out, nil

	default:
		// Unknown kinds are rejected at graph construction by
		// ResultType.Check; reaching here means a task bypassed it.
		return nil, fail(path, "unknown result kind %q", rt.Kind)
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
