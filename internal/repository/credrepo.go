// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/cookiepool/internal/model"
)

// CredentialRepository persists the bounded, ordered credential pool.
// Entries are addressed by identity; order is kept separately so that
// updating one entry never depends on a position read earlier.
type CredentialRepository interface {
	// Add inserts c at the head of the pool, or moves an existing entry with
	// the same identity to the head without touching its validation state.
	// Entries beyond capacity are evicted from the tail. It returns the
	// stored entry and whether it was newly inserted.
	Add(ctx context.Context, c model.Credential, capacity int) (model.Credential, bool, error)

	// List returns a snapshot of the pool, most recent first. Records that
	// cannot be decoded are skipped.
	List(ctx context.Context) ([]model.Credential, error)

	// Update rewrites the validation state of the entry with c.Identity.
	// Returns errs.ErrNotFound if the identity is no longer pooled.
	Update(ctx context.Context, c model.Credential) error

	// RemoveWhere deletes every readable entry matching pred and returns
	// how many were removed.
	RemoveWhere(ctx context.Context, pred func(model.Credential) bool) (int, error)
}
