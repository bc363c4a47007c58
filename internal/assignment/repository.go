package assignment

import "context"

// Repository persists assignments. It is the only writer of assignment
// records; every write goes through a conditional update.
type Repository interface {
	// Create stores a new assignment and claims the service order's active
	// slot. It fails with ErrDuplicateActiveAssignment when another
	// non-terminal assignment holds the slot. Terminal assignments (auto
	// accept) release the slot before returning.
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id string) (*Assignment, error)
	List(ctx context.Context, filter ListFilter) ([]*Assignment, int, error)
	// Update replaces the stored record only if its version still equals
	// expectedVersion; otherwise it fails with ErrConcurrentModification.
	// Reaching a terminal status releases the active slot.
	Update(ctx context.Context, a *Assignment, expectedVersion int64) error
}
