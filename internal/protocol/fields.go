package protocol

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/danmuck/wireconv/internal/protocol/schema"
)

// CountSuffix names the sibling that carries an array's repetition count.
const CountSuffix = "CNT"

// Buffer is a message addressed by character offset.
type Buffer []rune

func NewBuffer(msg string) Buffer {
	return Buffer(msg)
}

func (b Buffer) Len() int {
	return len(b)
}

// Slice returns [start, end) clamped to the buffer.
func (b Buffer) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(b) {
		end = len(b)
	}
	if start >= end {
		return ""
	}
	return string(b[start:end])
}

// Extract reads length characters at *cursor, trimmed, and advances the
// cursor by length even when the buffer ends first.
func Extract(buf Buffer, cursor *int, length int) string {
	start := *cursor
	*cursor += length
	return trim(buf.Slice(start, start+length))
}

// Coerce converts extracted text to its declared kind. Numbers that fail to
// parse become 0. Non-scalar kinds return text unchanged.
func Coerce(text string, kind schema.FieldKind) any {
	if kind == schema.KindNumber {
		return parseInt(text)
	}
	return text
}

// ResolveArrayCount returns how many elements array field name holds. A
// "<name>CNT" value already in result is reused; otherwise the CNT sibling is
// read at the cursor and cached in result. Without a CNT sibling the count is 0.
func ResolveArrayCount[S schema.Spec](name string, result *Record, siblings []S, buf Buffer, cursor *int) int {
	countName := name + CountSuffix
	if count, ok := cachedCount(result, countName); ok {
		return count
	}
	for _, s := range siblings {
		f := s.Field()
		if f.Name != countName {
			continue
		}
		count := parseInt(Extract(buf, cursor, f.Length))
		result.Set(countName, count)
		return count
	}
	return 0
}

func cachedCount(result *Record, countName string) (int, bool) {
	v, ok := result.Get(countName)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case string:
		return parseInt(val), true
	default:
		return 0, false
	}
}

func parseInt(text string) int {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0
	}
	return n
}

// trim strips spaces, control characters and NUL padding.
func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r <= ' ' || unicode.IsSpace(r)
	})
}
