package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/assignment"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

const (
	assignmentsPrefix = "assignments"
	activePrefix      = "assignments-active"

	// A slot whose assignment record is missing is only treated as abandoned
	// once it is this old; younger slots belong to a Create still in flight.
	abandonedSlotAge = time.Minute
)

// activeSlot marks the single non-terminal assignment of a service order.
type activeSlot struct {
	AssignmentID   string    `yaml:"assignment_id"`
	ServiceOrderID string    `yaml:"service_order_id"`
	ClaimedAt      time.Time `yaml:"claimed_at"`
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", assignmentsPrefix, id)
}

func activePath(serviceOrderID string) string {
	return fmt.Sprintf("%s/%s.yaml", activePrefix, serviceOrderID)
}

func (r *YAMLRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	if err := r.claimSlot(ctx, a); err != nil {
		return err
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		r.releaseSlot(ctx, a)
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal assignment: %w", err))
	}
	if _, err := r.storage.WriteIfRevision(ctx, path(a.ID), data, ""); err != nil {
		r.releaseSlot(ctx, a)
		if errors.Is(err, storage.ErrConflict) {
			return cerr.NewError(cerr.AlreadyExists, "assignment already exists", err)
		}
		return cerr.WrapStorageWriteError("assignment", err)
	}
	if a.IsTerminal() {
		r.releaseSlot(ctx, a)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*assignment.Assignment, error) {
	a, _, err := r.read(ctx, id)
	return a, err
}

func (r *YAMLRepository) List(ctx context.Context, filter assignment.ListFilter) ([]*assignment.Assignment, int, error) {
	paths, err := r.storage.List(ctx, assignmentsPrefix)
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("assignments", err)
	}

	sort.Strings(paths)

	var all []*assignment.Assignment
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var a assignment.Assignment
		if err := yaml.Unmarshal(data, &a); err != nil {
			slog.WarnContext(ctx, "skipping unreadable assignment", "path", p, "error", err)
			continue
		}
		if filter.ServiceOrderID != "" && a.ServiceOrderID != filter.ServiceOrderID {
			continue
		}
		if filter.ProviderID != "" && a.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		all = append(all, &a)
	}

	total := len(all)
	if filter.Offset >= total {
		return nil, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, a *assignment.Assignment, expectedVersion int64) error {
	current, revision, err := r.read(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return assignment.ConflictError(a.ID)
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal assignment: %w", err))
	}
	if _, err := r.storage.WriteIfRevision(ctx, path(a.ID), data, revision); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return assignment.ConflictError(a.ID)
		}
		return cerr.WrapStorageWriteError("assignment", err)
	}
	if a.IsTerminal() && !current.IsTerminal() {
		r.releaseSlot(ctx, a)
	}
	return nil
}

func (r *YAMLRepository) read(ctx context.Context, id string) (*assignment.Assignment, string, error) {
	data, revision, err := r.storage.ReadRevision(ctx, path(id))
	if err != nil {
		return nil, "", cerr.WrapStorageReadError("assignment", err)
	}
	var a assignment.Assignment
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal assignment: %w", err))
	}
	return &a, revision, nil
}

// claimSlot takes the service order's active slot with a create-only write.
// A slot left behind by a terminal assignment, or by a Create that never
// wrote its record, is taken over with a conditional write.
func (r *YAMLRepository) claimSlot(ctx context.Context, a *assignment.Assignment) error {
	slot, err := yaml.Marshal(&activeSlot{
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ClaimedAt:      a.CreatedAt,
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal active slot: %w", err))
	}

	_, err = r.storage.WriteIfRevision(ctx, activePath(a.ServiceOrderID), slot, "")
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return cerr.WrapStorageWriteError("active assignment slot", err)
	}

	data, revision, err := r.storage.ReadRevision(ctx, activePath(a.ServiceOrderID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Released between our write and read; let the caller retry.
			return assignment.ConflictError(a.ID)
		}
		return cerr.WrapStorageReadError("active assignment slot", err)
	}
	var holder activeSlot
	if err := yaml.Unmarshal(data, &holder); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal active slot: %w", err))
	}
	existing, err := r.Get(ctx, holder.AssignmentID)
	switch {
	case err == nil && !existing.IsTerminal():
		return assignment.DuplicateActiveAssignmentError(a.ServiceOrderID, holder.AssignmentID)
	case err != nil && !cerr.IsCode(err, cerr.NotFound):
		return err
	case err != nil && a.CreatedAt.Sub(holder.ClaimedAt) < abandonedSlotAge:
		return assignment.DuplicateActiveAssignmentError(a.ServiceOrderID, holder.AssignmentID)
	}

	slog.WarnContext(ctx, "taking over stale active slot",
		"service_order_id", a.ServiceOrderID,
		"stale_assignment_id", holder.AssignmentID,
		"assignment_id", a.ID,
	)
	if _, err := r.storage.WriteIfRevision(ctx, activePath(a.ServiceOrderID), slot, revision); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return assignment.DuplicateActiveAssignmentError(a.ServiceOrderID, holder.AssignmentID)
		}
		return cerr.WrapStorageWriteError("active assignment slot", err)
	}
	return nil
}

// releaseSlot is best effort: a leftover slot is reclaimed by claimSlot.
// The delete is conditional on the revision read here, so a slot taken
// over by another create in between is left alone.
func (r *YAMLRepository) releaseSlot(ctx context.Context, a *assignment.Assignment) {
	data, revision, err := r.storage.ReadRevision(ctx, activePath(a.ServiceOrderID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read active slot", "service_order_id", a.ServiceOrderID, "error", err)
		}
		return
	}
	var holder activeSlot
	if err := yaml.Unmarshal(data, &holder); err != nil || holder.AssignmentID != a.ID {
		return
	}
	err = r.storage.DeleteIfRevision(ctx, activePath(a.ServiceOrderID), revision)
	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrConflict):
		slog.DebugContext(ctx, "active slot changed hands before release", "service_order_id", a.ServiceOrderID, "assignment_id", a.ID)
	default:
		slog.WarnContext(ctx, "failed to release active slot", "service_order_id", a.ServiceOrderID, "error", err)
	}
}
