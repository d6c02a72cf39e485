package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind    = errors.New("schema: unknown field kind")
	ErrDuplicateOrder = errors.New("schema: duplicate field order")
	ErrDuplicateName  = errors.New("schema: duplicate field name")
	ErrInvalidSpec    = errors.New("schema: invalid field spec")
)

// FieldSpec describes one top-level field of a message type.
// Length is 0 for Object and Array fields, whose width comes from their children.
type FieldSpec struct {
	TypeCode string    `json:"type_code" yaml:"type_code"`
	Order    int       `json:"order" yaml:"order"`
	Name     string    `json:"name" yaml:"name"`
	Length   int       `json:"length,omitempty" yaml:"length,omitempty"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Group    string    `json:"group,omitempty" yaml:"group,omitempty"`
}

// Field returns the spec itself; ChildFieldSpec promotes it so decoders can
// walk either list.
func (f FieldSpec) Field() FieldSpec {
	return f
}

// ChildFieldSpec is a field scoped under an Object or Array field named Parent.
type ChildFieldSpec struct {
	FieldSpec
	Parent string `json:"parent" yaml:"parent"`
}

// Spec is implemented by FieldSpec and ChildFieldSpec.
type Spec interface {
	Field() FieldSpec
}

// ValidationError reports a spec rejected while building an index.
type ValidationError struct {
	TypeCode string
	Parent   string
	Field    string
	Err      error
}

func (e ValidationError) Error() string {
	scope := e.TypeCode
	if e.Parent != "" {
		scope += "/" + e.Parent
	}
	if e.Field == "" {
		return fmt.Sprintf("%v: type_code=%q", e.Err, scope)
	}
	return fmt.Sprintf("%v: type_code=%q field=%q", e.Err, scope, e.Field)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

func validateSpec(f FieldSpec, parent string) error {
	if f.TypeCode == "" {
		return ValidationError{Parent: parent, Field: f.Name, Err: fmt.Errorf("%w: empty type code", ErrInvalidSpec)}
	}
	if f.Name == "" {
		return ValidationError{TypeCode: f.TypeCode, Parent: parent, Err: fmt.Errorf("%w: empty field name", ErrInvalidSpec)}
	}
	if !f.Kind.Valid() {
		return ValidationError{TypeCode: f.TypeCode, Parent: parent, Field: f.Name, Err: fmt.Errorf("%w: %s", ErrUnknownKind, f.Kind)}
	}
	if f.Length < 0 {
		return ValidationError{TypeCode: f.TypeCode, Parent: parent, Field: f.Name, Err: fmt.Errorf("%w: negative length %d", ErrInvalidSpec, f.Length)}
	}
	return nil
}
