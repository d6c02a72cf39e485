package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// HeaderLen is the width of the ASCII decimal length prefix. The declared
// value counts every character of the frame, the prefix included.
const HeaderLen = 6

// MaxDeclared is the largest total a six-digit prefix can carry.
const MaxDeclared = 999999

var (
	ErrShortHeader      = errors.New("frame: short length header")
	ErrHeaderNotNumeric = errors.New("frame: length header is not numeric")
	ErrDeclaredTooSmall = errors.New("frame: declared length smaller than header")
	ErrMessageTooLarge  = errors.New("frame: message too large")
	ErrTruncatedMessage = errors.New("frame: truncated message")
)

// Frame is one complete message as received, header included.
type Frame struct {
	Declared int
	Message  string
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMessageChars int
}

func DefaultLimits() Limits {
	return Limits{MaxMessageChars: MaxDeclared}
}

func (l Limits) max() int {
	if l.MaxMessageChars <= 0 || l.MaxMessageChars > MaxDeclared {
		return MaxDeclared
	}
	return l.MaxMessageChars
}

// ReadFrame reads one length-prefixed message. Lengths count characters, so
// the body is read rune by rune.
func ReadFrame(r *bufio.Reader, limits Limits) (Frame, error) {
	head, err := readRunes(r, HeaderLen)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			if head == "" {
				return Frame{}, io.EOF
			}
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	declared, err := DecodeHeader(head)
	if err != nil {
		return Frame{Message: head}, err
	}
	if declared > limits.max() {
		return Frame{Declared: declared, Message: head}, ErrMessageTooLarge
	}

	body, err := readRunes(r, declared-HeaderLen)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{Declared: declared, Message: head + body}, ErrTruncatedMessage
		}
		return Frame{}, err
	}
	return Frame{Declared: declared, Message: head + body}, nil
}

// WriteFrame prefixes payload with its total character length.
func WriteFrame(w io.Writer, payload string, limits Limits) error {
	total := HeaderLen + utf8.RuneCountInString(payload)
	if total > limits.max() {
		return ErrMessageTooLarge
	}
	head, err := EncodeHeader(total)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, head+payload)
	return err
}

func EncodeHeader(total int) (string, error) {
	if total < HeaderLen {
		return "", ErrDeclaredTooSmall
	}
	if total > MaxDeclared {
		return "", ErrMessageTooLarge
	}
	return fmt.Sprintf("%0*d", HeaderLen, total), nil
}

func DecodeHeader(head string) (int, error) {
	if utf8.RuneCountInString(head) != HeaderLen {
		return 0, ErrShortHeader
	}
	declared, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrHeaderNotNumeric, head)
	}
	if declared < HeaderLen {
		return declared, ErrDeclaredTooSmall
	}
	return declared, nil
}

func readRunes(r *bufio.Reader, n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		ch, _, err := r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) && i > 0 {
				return sb.String(), io.ErrUnexpectedEOF
			}
			return sb.String(), err
		}
		sb.WriteRune(ch)
	}
	return sb.String(), nil
}
