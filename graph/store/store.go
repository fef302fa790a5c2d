// Package store provides keyed in-process storage for graphs and runs.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested identifier does not exist.
var ErrNotFound = errors.New("not found")

// Store is a concurrency-safe mapping from generated identifier to a
// stored value. The engine uses one Store for immutable Graph
// definitions and one for RunRecord instances.
//
// Both stores are in-memory only: all contents are lost on process
// restart. The context parameter keeps the contract uniform with
// blocking backends even though the in-memory implementation never
// blocks.
//
// Type parameter V is the stored value type.
type Store[V any] interface {
	// Put stores v under id, overwriting any previous value.
	Put(ctx context.Context, id string, v V) error

	// Get returns the value stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (V, error)

	// Len returns the number of stored values.
	Len(ctx context.Context) (int, error)
}
