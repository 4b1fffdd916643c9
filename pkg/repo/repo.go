// Package repo provides keyed upsert stores over graph databases.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the id.
var ErrNotFound = errors.New("repo: not found")

// Store is an idempotent keyed store: writing the same entity twice leaves
// one copy.
type Store[T any] interface {
	Upsert(ctx context.Context, entity T) error
	Get(ctx context.Context, id string) (T, error)
	ListBy(ctx context.Context, prop string, value any) ([]T, error)
}

// Ref points at a node by label and id.
type Ref struct {
	Label string
	ID    string
}
