package protocol

import (
	"bytes"

	"github.com/elliotchance/orderedmap/v2"
	json "github.com/goccy/go-json"
)

// Record is one decoded object: field names in schema order mapped to an
// int, a string, a nested *Record or a []*Record.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

func NewRecord() *Record {
	return &Record{fields: orderedmap.NewOrderedMap[string, any]()}
}

// Set stores v under name. Re-setting a name keeps its original position.
func (r *Record) Set(name string, v any) {
	r.fields.Set(name, v)
}

func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.fields.Get(name)
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for el := r.fields.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}

// Map converts the record tree into plain maps and slices. Field order is lost.
func (r *Record) Map() map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, r.fields.Len())
	for el := r.fields.Front(); el != nil; el = el.Next() {
		out[el.Key] = plain(el.Value)
	}
	return out
}

func plain(v any) any {
	switch val := v.(type) {
	case *Record:
		return val.Map()
	case []*Record:
		list := make([]any, len(val))
		for i, rec := range val {
			list[i] = rec.Map()
		}
		return list
	default:
		return v
	}
}

// MarshalJSON writes fields in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for el := r.fields.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(el.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(el.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
