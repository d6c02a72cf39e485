package schema

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Index is the read-only lookup from type code (and parent field name) to
// ordered field lists. It is never mutated once NewIndex returns.
type Index struct {
	top      map[string][]FieldSpec
	children map[string]map[string][]ChildFieldSpec
}

// Stats summarizes an index for logs and listings.
type Stats struct {
	TypeCodes  int `json:"type_codes"`
	Fields     int `json:"fields"`
	ChildLists int `json:"child_lists"`
	Children   int `json:"children"`
}

// NewIndex groups and sorts specs by field order. It rejects unknown kinds,
// duplicate orders and duplicate sibling names.
func NewIndex(specs []FieldSpec, children []ChildFieldSpec) (*Index, error) {
	ix := &Index{
		top:      make(map[string][]FieldSpec),
		children: make(map[string]map[string][]ChildFieldSpec),
	}
	for _, spec := range specs {
		if err := validateSpec(spec, ""); err != nil {
			return nil, err
		}
		ix.top[spec.TypeCode] = append(ix.top[spec.TypeCode], spec)
	}
	for _, child := range children {
		if err := validateSpec(child.FieldSpec, child.Parent); err != nil {
			return nil, err
		}
		if child.Parent == "" {
			return nil, ValidationError{
				TypeCode: child.TypeCode,
				Field:    child.Name,
				Err:      fmt.Errorf("%w: empty parent field name", ErrInvalidSpec),
			}
		}
		byParent, ok := ix.children[child.TypeCode]
		if !ok {
			byParent = make(map[string][]ChildFieldSpec)
			ix.children[child.TypeCode] = byParent
		}
		byParent[child.Parent] = append(byParent[child.Parent], child)
	}

	for code, list := range ix.top {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
		if err := checkSiblings(list, code, ""); err != nil {
			return nil, err
		}
	}
	for code, byParent := range ix.children {
		for parent, list := range byParent {
			sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
			if err := checkSiblings(list, code, parent); err != nil {
				return nil, err
			}
		}
	}
	return ix, nil
}

// checkSiblings expects list sorted by order.
func checkSiblings[S Spec](list []S, code, parent string) error {
	names := make(map[string]struct{}, len(list))
	for i, s := range list {
		f := s.Field()
		if i > 0 && list[i-1].Field().Order == f.Order {
			return ValidationError{
				TypeCode: code,
				Parent:   parent,
				Field:    f.Name,
				Err:      fmt.Errorf("%w: order %d", ErrDuplicateOrder, f.Order),
			}
		}
		if _, dup := names[f.Name]; dup {
			return ValidationError{TypeCode: code, Parent: parent, Field: f.Name, Err: ErrDuplicateName}
		}
		names[f.Name] = struct{}{}
	}
	return nil
}

// SpecsFor returns the ordered top-level fields of typeCode, or nil.
func (ix *Index) SpecsFor(typeCode string) []FieldSpec {
	if ix == nil {
		return nil
	}
	return ix.top[typeCode]
}

// ChildrenOf returns the ordered fields declared under parent, or nil.
func (ix *Index) ChildrenOf(typeCode, parent string) []ChildFieldSpec {
	if ix == nil {
		return nil
	}
	return ix.children[typeCode][parent]
}

// TypeCodes returns the registered type codes in lexical order.
func (ix *Index) TypeCodes() []string {
	if ix == nil {
		return []string{}
	}
	codes := make([]string, 0, len(ix.top))
	for code := range ix.top {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (ix *Index) Stats() Stats {
	var st Stats
	if ix == nil {
		return st
	}
	st.TypeCodes = len(ix.top)
	for _, list := range ix.top {
		st.Fields += len(list)
	}
	for _, byParent := range ix.children {
		st.ChildLists += len(byParent)
		for _, list := range byParent {
			st.Children += len(list)
		}
	}
	return st
}

// Registry publishes the current Index. Readers never observe a partially
// built index: Load builds off to the side and swaps the pointer.
type Registry struct {
	current atomic.Pointer[Index]
}

// NewRegistry returns a registry holding an empty index.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&Index{
		top:      map[string][]FieldSpec{},
		children: map[string]map[string][]ChildFieldSpec{},
	})
	return r
}

// Load rebuilds the index from scratch. On error the previous index stays live.
func (r *Registry) Load(specs []FieldSpec, children []ChildFieldSpec) error {
	ix, err := NewIndex(specs, children)
	if err != nil {
		log.Error().Err(err).Msg("schema.Registry.Load rejected")
		return err
	}
	r.Publish(ix)
	st := ix.Stats()
	log.Info().
		Int("type_codes", st.TypeCodes).
		Int("fields", st.Fields).
		Int("children", st.Children).
		Msg("schema.Registry.Load ok")
	return nil
}

// Publish swaps in an already built index.
func (r *Registry) Publish(ix *Index) {
	if ix == nil {
		return
	}
	r.current.Store(ix)
}

// Index returns the current snapshot. Callers should hold on to it for the
// length of one decode.
func (r *Registry) Index() *Index {
	return r.current.Load()
}
