package protocol

import (
	"github.com/danmuck/wireconv/internal/protocol/schema"
)

// Decoder walks field specs against a message buffer. It holds no per-call
// state and may be shared across goroutines.
type Decoder struct {
	index *schema.Index
}

func NewDecoder(ix *schema.Index) *Decoder {
	return &Decoder{index: ix}
}

// DecodeFields decodes specs in order starting at *cursor, leaving the cursor
// just past the last consumed character.
func (d *Decoder) DecodeFields(typeCode string, specs []schema.FieldSpec, buf Buffer, cursor *int) (*Record, error) {
	w := &walk{index: d.index, typeCode: typeCode, buf: buf, cursor: cursor}
	return decodeFields(w, specs)
}

// walk is the state of one decode: the message, its schema generation and
// the shared cursor.
type walk struct {
	index    *schema.Index
	typeCode string
	buf      Buffer
	cursor   *int
}

func decodeFields[S schema.Spec](w *walk, specs []S) (*Record, error) {
	result := NewRecord()
	for _, s := range specs {
		if err := decodeField(w, s.Field(), specs, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeField[S schema.Spec](w *walk, spec schema.FieldSpec, siblings []S, result *Record) error {
	switch spec.Kind {
	case schema.KindNumber, schema.KindText:
		text := Extract(w.buf, w.cursor, spec.Length)
		result.Set(spec.Name, Coerce(text, spec.Kind))
	case schema.KindObject:
		obj, err := decodeFields(w, w.index.ChildrenOf(w.typeCode, spec.Name))
		if err != nil {
			return err
		}
		result.Set(spec.Name, obj)
	case schema.KindArray:
		count := ResolveArrayCount(spec.Name, result, siblings, w.buf, w.cursor)
		elems, err := decodeElements(w, spec.Name, count)
		if err != nil {
			return err
		}
		result.Set(spec.Name, elems)
	default:
		return errorf(ErrSchemaAuthoring, w.typeCode, "field %q has unknown kind %s", spec.Name, spec.Kind)
	}
	return nil
}

// decodeElements reads count contiguous elements of array field name.
func decodeElements(w *walk, name string, count int) ([]*Record, error) {
	children := w.index.ChildrenOf(w.typeCode, name)
	elems := make([]*Record, 0, min(max(count, 0), w.buf.Len()+1))
	for i := 0; i < count; i++ {
		elem, err := decodeFields(w, children)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return elems, nil
}
