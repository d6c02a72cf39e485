package protocol

import "strconv"

// Fixed message layout, in characters.
const (
	LengthStart   = 0
	LengthEnd     = 6
	TypeCodeStart = 135
	TypeCodeEnd   = 155
)

// ValidateLength checks the declared total length in [0,6) against the
// buffer's actual length.
func ValidateLength(buf Buffer) error {
	if buf.Len() < LengthEnd {
		return errorf(ErrEnvelope, "", "message too short: min=%d actual=%d", LengthEnd, buf.Len())
	}
	field := buf.Slice(LengthStart, LengthEnd)
	declared, err := strconv.Atoi(field)
	if err != nil {
		return errorf(ErrEnvelope, "", "length field is not numeric: %q", field)
	}
	if declared != buf.Len() {
		return errorf(ErrEnvelope, "", "length mismatch: header=%d actual=%d", declared, buf.Len())
	}
	return nil
}

// TypeCode extracts the trimmed message-type code from [135,155).
func TypeCode(buf Buffer) (string, error) {
	if buf.Len() <= TypeCodeStart {
		return "", errorf(ErrTypeCode, "", "message too short for type code: min=%d actual=%d", TypeCodeStart+1, buf.Len())
	}
	code := trim(buf.Slice(TypeCodeStart, TypeCodeEnd))
	if code == "" {
		return "", errorf(ErrTypeCode, "", "type code is empty")
	}
	return code, nil
}
