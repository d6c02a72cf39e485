package protocol

import (
	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// IndexSource yields the schema generation to decode against.
// *schema.Registry satisfies it.
type IndexSource interface {
	Index() *schema.Index
}

// Result is one successful decode.
type Result struct {
	TypeCode string
	Record   *Record
	// Consumed is the cursor position after the walk. It can exceed the
	// message length when trailing fields were clamped.
	Consumed int
}

// Parser validates the message envelope and decodes the body.
type Parser struct {
	schemas IndexSource
}

func NewParser(schemas IndexSource) *Parser {
	return &Parser{schemas: schemas}
}

// Parse decodes one complete message.
func (p *Parser) Parse(msg string) (*Record, error) {
	res, err := p.ParseResult(msg)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// ParseResult is Parse with the type code and cursor position attached.
func (p *Parser) ParseResult(msg string) (Result, error) {
	buf := NewBuffer(msg)
	log.Debug().Int("length", buf.Len()).Msg("protocol.Parse start")

	if err := ValidateLength(buf); err != nil {
		return Result{}, err
	}
	code, err := TypeCode(buf)
	if err != nil {
		return Result{}, err
	}
	log.Debug().Str("type_code", code).Msg("protocol.Parse type code")

	ix := p.schemas.Index()
	specs := ix.SpecsFor(code)
	if len(specs) == 0 {
		return Result{}, errorf(ErrUnknownSchema, code, "no field specs registered")
	}
	log.Debug().Str("type_code", code).Int("specs", len(specs)).Msg("protocol.Parse schema")

	cursor := 0
	rec, err := NewDecoder(ix).DecodeFields(code, specs, buf, &cursor)
	if err != nil {
		return Result{}, err
	}
	log.Debug().
		Str("type_code", code).
		Int("fields", rec.Len()).
		Int("cursor", cursor).
		Msg("protocol.Parse done")
	return Result{TypeCode: code, Record: rec, Consumed: cursor}, nil
}
