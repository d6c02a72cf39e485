// Package store supplies field schemas to the registry.
package store

import (
	"context"
	"fmt"

	"github.com/danmuck/wireconv/internal/protocol/schema"
)

// Source is a durable schema store.
type Source interface {
	TopLevelSpecs(ctx context.Context) ([]schema.FieldSpec, error)
	ChildSpecs(ctx context.Context) ([]schema.ChildFieldSpec, error)
}

// Static is an in-memory Source.
type Static struct {
	Specs    []schema.FieldSpec
	Children []schema.ChildFieldSpec
}

func (s Static) TopLevelSpecs(context.Context) ([]schema.FieldSpec, error) {
	return s.Specs, nil
}

func (s Static) ChildSpecs(context.Context) ([]schema.ChildFieldSpec, error) {
	return s.Children, nil
}

// Snapshotter is implemented by sources that read both lists in one pass.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Static, error)
}

// Load reads every spec from src and publishes a fresh index into reg.
func Load(ctx context.Context, src Source, reg *schema.Registry) error {
	if snap, ok := src.(Snapshotter); ok {
		st, err := snap.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("store load snapshot: %w", err)
		}
		src = st
	}
	specs, err := src.TopLevelSpecs(ctx)
	if err != nil {
		return fmt.Errorf("store load top-level specs: %w", err)
	}
	children, err := src.ChildSpecs(ctx)
	if err != nil {
		return fmt.Errorf("store load child specs: %w", err)
	}
	if err := reg.Load(specs, children); err != nil {
		return fmt.Errorf("store load index: %w", err)
	}
	return nil
}
