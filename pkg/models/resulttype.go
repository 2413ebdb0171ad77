package models

import (
	"fmt"
	"sort"
	"strings"
)

// ResultKind identifies the shape of a declared result type.
type ResultKind string

const (
	// KindNone declares that the task produces no result value.
	KindNone ResultKind = "none"
	// KindString declares a string result.
	KindString ResultKind = "string"
	// KindInt declares an integer result.
	KindInt ResultKind = "int"
	// KindFloat declares a floating-point result.
	KindFloat ResultKind = "float"
	// KindBool declares a boolean result.
	KindBool ResultKind = "bool"
	// KindEnum declares a result restricted to a fixed set of string members.
	KindEnum ResultKind = "enum"
	// KindRecord declares a structured result with named, typed fields.
	KindRecord ResultKind = "record"
)

// Field is a single named member of a record result type.
type Field struct {
	// Name is the field name. Required and unique within the record.
	Name string `json:"name"`
	// Type is the field's declared type.
	Type ResultType `json:"type"`
}

// ResultType describes the schema a task result must satisfy. The zero
// value is not valid; use the constructors or set Kind explicitly.
type ResultType struct {
	Kind ResultKind `json:"kind"`
	// Members holds the allowed values for enum types.
	Members []string `json:"members,omitempty"`
	// Fields holds the member declarations for record types.
	Fields []Field `json:"fields,omitempty"`
}

// NoneType returns the result type for tasks that produce no value.
func NoneType() ResultType { return ResultType{Kind: KindNone} }

// StringType returns the string result type.
func StringType() ResultType { return ResultType{Kind: KindString} }

// IntType returns the integer result type.
func IntType() ResultType { return ResultType{Kind: KindInt} }

// FloatType returns the float result type.
func FloatType() ResultType { return ResultType{Kind: KindFloat} }

// BoolType returns the boolean result type.
func BoolType() ResultType { return ResultType{Kind: KindBool} }

// EnumType returns an enum result type with the given members.
func EnumType(members ...string) ResultType {
	return ResultType{Kind: KindEnum, Members: members}
}

// RecordType returns a record result type with the given fields.
func RecordType(fields ...Field) ResultType {
	return ResultType{Kind: KindRecord, Fields: fields}
}

// Check validates the declaration itself. A malformed declaration is a
// configuration error detected at graph construction, never at runtime.
func (rt ResultType) Check() error {
	switch rt.Kind {
	case KindNone, KindString, KindInt, KindFloat, KindBool:
		if len(rt.Members) > 0 || len(rt.Fields) > 0 {
			return fmt.Errorf("result type %q must not declare members or fields", rt.Kind)
		}
		return nil
	case KindEnum:
		if len(rt.Members) == 0 {
			return fmt.Errorf("enum result type requires at least one member")
		}
		seen := make(map[string]bool, len(rt.Members))
		for _, m := range rt.Members {
			if seen[m] {
				return fmt.Errorf("enum result type has duplicate member %q", m)
			}
			seen[m] = true
		}
		return nil
	case KindRecord:
		if len(rt.Fields) == 0 {
			return fmt.Errorf("record result type requires at least one field")
		}
		seen := make(map[string]bool, len(rt.Fields))
		for _, f := range rt.Fields {
			if f.Name == "" {
				return fmt.Errorf("record field requires a name")
			}
			if seen[f.Name] {
				return fmt.Errorf("record result type has duplicate field %q", f.Name)
			}
			seen[f.Name] = true
			if f.Type.Kind == KindNone {
				return fmt.Errorf("record field %q may not have type none", f.Name)
			}
			if err := f.Type.Check(); err != nil {
				return fmt.Errorf("record field %q: %w", f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown result kind %q", rt.Kind)
	}
}

// FieldNames returns the sorted field names of a record type.
func (rt ResultType) FieldNames() []string {
	names := make([]string, 0, len(rt.Fields))
	for _, f := range rt.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// String renders a compact human-readable description of the type, used
// in agent views and validation feedback.
func (rt ResultType) String() string {
	switch rt.Kind {
	case KindEnum:
		return fmt.Sprintf("enum[%s]", strings.Join(rt.Members, ", "))
	case KindRecord:
		parts := make([]string, 0, len(rt.Fields))
		for _, f := range rt.Fields {
			parts = append(parts, f.Name+": "+f.Type.String())
		}
		return fmt.Sprintf("record{%s}", strings.Join(parts, ", "))
	default:
		return string(rt.Kind)
	}
}
