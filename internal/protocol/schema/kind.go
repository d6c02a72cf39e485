package schema

import "fmt"

// FieldKind is the closed set of field interpretations.
type FieldKind uint8

const (
	KindObject FieldKind = iota + 1
	KindArray
	KindNumber
	KindText
)

// Wire codes as stored in the schema tables.
const (
	CodeObject = "O"
	CodeArray  = "A"
	CodeNumber = "N"
	CodeText   = "C"
)

// ParseKind maps a wire code to its FieldKind.
func ParseKind(code string) (FieldKind, error) {
	switch code {
	case CodeObject:
		return KindObject, nil
	case CodeArray:
		return KindArray, nil
	case CodeNumber:
		return KindNumber, nil
	case CodeText:
		return KindText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, code)
	}
}

// Code returns the wire code, or "" for a kind outside the closed set.
func (k FieldKind) Code() string {
	switch k {
	case KindObject:
		return CodeObject
	case KindArray:
		return CodeArray
	case KindNumber:
		return CodeNumber
	case KindText:
		return CodeText
	default:
		return ""
	}
}

// Valid reports whether k is one of the four declared kinds.
func (k FieldKind) Valid() bool {
	return k.Code() != ""
}

// Scalar reports whether fields of this kind are extracted and coerced
// rather than recursed into.
func (k FieldKind) Scalar() bool {
	return k == KindNumber || k == KindText
}

func (k FieldKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k FieldKind) MarshalText() ([]byte, error) {
	code := k.Code()
	if code == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return []byte(code), nil
}

func (k *FieldKind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
