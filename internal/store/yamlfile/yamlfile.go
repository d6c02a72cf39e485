// Package yamlfile reads field schemas from YAML documents.
//
// A file holds one or more documents of the form
//
//	schemas:
//	  - type_code: SDL_101
//	    fields:
//	      - {order: 1, name: MsgLen, length: 6, kind: N}
//	      - {order: 2, name: LoansCNT, length: 2, kind: N}
//	      - order: 3
//	        name: Loans
//	        kind: A
//	        children:
//	          - {order: 1, name: Amt, length: 4, kind: C}
//
// Nested children are flattened into child specs keyed by their enclosing
// field name.
package yamlfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/store"
	"gopkg.in/yaml.v3"
)

var ErrChildrenOnScalar = errors.New("yamlfile: children declared on a scalar field")

// Document is one YAML document.
type Document struct {
	Schemas []MessageSchema `yaml:"schemas"`
}

type MessageSchema struct {
	TypeCode string  `yaml:"type_code"`
	Fields   []Field `yaml:"fields"`
}

type Field struct {
	Order    int              `yaml:"order"`
	Name     string           `yaml:"name"`
	Length   int              `yaml:"length,omitempty"`
	Kind     schema.FieldKind `yaml:"kind"`
	Group    string           `yaml:"group,omitempty"`
	Children []Field          `yaml:"children,omitempty"`
}

// Source reads a YAML file on every load, so edits are picked up on reload.
type Source struct {
	path string
}

var (
	_ store.Source      = (*Source)(nil)
	_ store.Snapshotter = (*Source)(nil)
)

func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Path() string {
	return s.path
}

func (s *Source) Snapshot(context.Context) (store.Static, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return store.Static{}, fmt.Errorf("yamlfile read (%s): %w", s.path, err)
	}
	out, err := Parse(data)
	if err != nil {
		return store.Static{}, fmt.Errorf("yamlfile (%s): %w", s.path, err)
	}
	return out, nil
}

func (s *Source) TopLevelSpecs(ctx context.Context) ([]schema.FieldSpec, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Specs, nil
}

func (s *Source) ChildSpecs(ctx context.Context) ([]schema.ChildFieldSpec, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Children, nil
}

// Parse decodes every document in data and flattens them into spec lists.
// Unknown keys are rejected.
func Parse(data []byte) (store.Static, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out store.Static
	for {
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return store.Static{}, fmt.Errorf("yamlfile decode: %w", err)
		}
		for _, ms := range doc.Schemas {
			if err := flatten(&out, ms); err != nil {
				return store.Static{}, err
			}
		}
	}
	return out, nil
}

func flatten(out *store.Static, ms MessageSchema) error {
	for _, f := range ms.Fields {
		out.Specs = append(out.Specs, schema.FieldSpec{
			TypeCode: ms.TypeCode,
			Order:    f.Order,
			Name:     f.Name,
			Length:   f.Length,
			Kind:     f.Kind,
			Group:    f.Group,
		})
		if err := flattenChildren(out, ms.TypeCode, f); err != nil {
			return err
		}
	}
	return nil
}

func flattenChildren(out *store.Static, typeCode string, parent Field) error {
	if len(parent.Children) == 0 {
		return nil
	}
	if parent.Kind.Scalar() {
		return fmt.Errorf("%w: %s.%s", ErrChildrenOnScalar, typeCode, parent.Name)
	}
	for _, c := range parent.Children {
		out.Children = append(out.Children, schema.ChildFieldSpec{
			FieldSpec: schema.FieldSpec{
				TypeCode: typeCode,
				Order:    c.Order,
				Name:     c.Name,
				Length:   c.Length,
				Kind:     c.Kind,
				Group:    c.Group,
			},
			Parent: parent.Name,
		})
		if err := flattenChildren(out, typeCode, c); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders specs back into a single document, nesting children under
// their parents. Used by the CLI export path.
func Marshal(src store.Static) ([]byte, error) {
	byParent := make(map[string]map[string][]schema.ChildFieldSpec)
	for _, c := range src.Children {
		if byParent[c.TypeCode] == nil {
			byParent[c.TypeCode] = make(map[string][]schema.ChildFieldSpec)
		}
		byParent[c.TypeCode][c.Parent] = append(byParent[c.TypeCode][c.Parent], c)
	}

	var doc Document
	pos := make(map[string]int)
	for _, spec := range src.Specs {
		i, ok := pos[spec.TypeCode]
		if !ok {
			i = len(doc.Schemas)
			pos[spec.TypeCode] = i
			doc.Schemas = append(doc.Schemas, MessageSchema{TypeCode: spec.TypeCode})
		}
		f := Field{Order: spec.Order, Name: spec.Name, Length: spec.Length, Kind: spec.Kind, Group: spec.Group}
		f.Children = nest(byParent[spec.TypeCode], spec.Name, map[string]bool{})
		doc.Schemas[i].Fields = append(doc.Schemas[i].Fields, f)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("yamlfile encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yamlfile encode: %w", err)
	}
	return buf.Bytes(), nil
}

// nest guards against parent cycles, which the flat tables can express.
func nest(byParent map[string][]schema.ChildFieldSpec, parent string, seen map[string]bool) []Field {
	if seen[parent] {
		return nil
	}
	seen[parent] = true
	defer delete(seen, parent)

	var out []Field
	for _, c := range byParent[parent] {
		f := Field{Order: c.Order, Name: c.Name, Length: c.Length, Kind: c.Kind, Group: c.Group}
		if !c.Kind.Scalar() {
			f.Children = nest(byParent, c.Name, seen)
		}
		out = append(out, f)
	}
	return out
}
