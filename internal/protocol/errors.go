package protocol

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by Parse. All four are client failures.
var (
	ErrEnvelope        = errors.New("protocol: invalid envelope")
	ErrTypeCode        = errors.New("protocol: invalid type code")
	ErrUnknownSchema   = errors.New("protocol: unknown schema")
	ErrSchemaAuthoring = errors.New("protocol: invalid schema")
)

// DecodeError carries one error kind and a human-readable reason.
type DecodeError struct {
	Kind     error
	TypeCode string
	Reason   string
}

func (e DecodeError) Error() string {
	if e.TypeCode == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: type_code=%q: %s", e.Kind, e.TypeCode, e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Kind
}

// IsBadRequest reports whether err is one of the decode error kinds.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrEnvelope) ||
		errors.Is(err, ErrTypeCode) ||
		errors.Is(err, ErrUnknownSchema) ||
		errors.Is(err, ErrSchemaAuthoring)
}

// Reason returns the reason text of a DecodeError, or err.Error() otherwise.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var de DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}

func errorf(kind error, typeCode, format string, args ...any) error {
	return DecodeError{Kind: kind, TypeCode: typeCode, Reason: fmt.Sprintf(format, args...)}
}
