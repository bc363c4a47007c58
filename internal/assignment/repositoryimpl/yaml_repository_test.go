package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/assignment"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

var now = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*YAMLRepository, storage.Storage) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s), s
}

func newAssignment(id, serviceOrderID string) *assignment.Assignment {
	expires := now.Add(24 * time.Hour)
	return &assignment.Assignment{
		ID:             id,
		ServiceOrderID: serviceOrderID,
		ProviderID:     "p1",
		Status:         assignment.StatusPending,
		Mode:           assignment.ModeOffer,
		OriginalDate:   now.AddDate(0, 0, 7),
		ProposedDate:   now.AddDate(0, 0, 7),
		OfferExpiresAt: &expires,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestYAMLRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	a := newAssignment("a1", "so1")
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	exists, err := s.Exists(ctx, activePath("so1"))
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_CreateDuplicateActive(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.Create(ctx, newAssignment("a1", "so1")))
	err := repo.Create(ctx, newAssignment("a2", "so1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assignment.ErrDuplicateActiveAssignment)

	_, err = repo.Get(ctx, "a2")
	assert.True(t, cerr.IsCode(err, cerr.NotFound), "losing create must not leave a record")

	require.NoError(t, repo.Create(ctx, newAssignment("a3", "so2")))
}

func TestYAMLRepository_TerminalCreateReleasesSlot(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	a := newAssignment("a1", "so1")
	a.Mode = assignment.ModeAutoAccept
	a.Status = assignment.StatusAccepted
	a.OfferExpiresAt = nil
	require.NoError(t, repo.Create(ctx, a))

	exists, err := s.Exists(ctx, activePath("so1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestYAMLRepository_UpdateReleasesSlotOnTerminal(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	a := newAssignment("a1", "so1")
	require.NoError(t, repo.Create(ctx, a))

	next := a.Clone()
	require.NoError(t, next.Accept(now.Add(time.Hour), ""))
	require.NoError(t, repo.Update(ctx, next, a.Version))

	exists, err := s.Exists(ctx, activePath("so1"))
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusAccepted, got.Status)
	assert.Equal(t, int64(2), got.Version)

	require.NoError(t, repo.Create(ctx, newAssignment("a2", "so1")))
}

// racingStorage runs beforeDelete once, ahead of the first delete of the
// active slot, to interleave a concurrent create with a release.
type racingStorage struct {
	storage.Storage
	beforeDelete func()
}

func (s *racingStorage) hook(p string) {
	if p == activePath("so1") && s.beforeDelete != nil {
		fn := s.beforeDelete
		s.beforeDelete = nil
		fn()
	}
}

func (s *racingStorage) Delete(ctx context.Context, p string) error {
	s.hook(p)
	return s.Storage.Delete(ctx, p)
}

func (s *racingStorage) DeleteIfRevision(ctx context.Context, p string, revision string) error {
	s.hook(p)
	return s.Storage.DeleteIfRevision(ctx, p, revision)
}

func TestYAMLRepository_ReleaseKeepsSlotTakenOverConcurrently(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	s := &racingStorage{Storage: local}
	repo := NewYAMLRepository(s)

	x := newAssignment("x", "so1")
	require.NoError(t, repo.Create(ctx, x))

	// x is already terminal on disk when its slot is released, so y may
	// take the slot over right before the delete.
	var createErr error
	s.beforeDelete = func() { createErr = repo.Create(ctx, newAssignment("y", "so1")) }

	next := x.Clone()
	require.NoError(t, next.Accept(now.Add(time.Hour), ""))
	require.NoError(t, repo.Update(ctx, next, x.Version))
	require.NoError(t, createErr)

	raw, err := local.Read(ctx, activePath("so1"))
	require.NoError(t, err, "the slot claimed by y must survive the release of x")
	var holder activeSlot
	require.NoError(t, yaml.Unmarshal(raw, &holder))
	assert.Equal(t, "y", holder.AssignmentID)

	err = repo.Create(ctx, newAssignment("z", "so1"))
	assert.ErrorIs(t, err, assignment.ErrDuplicateActiveAssignment)

	pending, total, err := repo.List(ctx, assignment.ListFilter{ServiceOrderID: "so1", Status: assignment.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, "y", pending[0].ID)
}

func TestYAMLRepository_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	a := newAssignment("a1", "so1")
	require.NoError(t, repo.Create(ctx, a))

	first := a.Clone()
	require.NoError(t, first.Accept(now, ""))
	require.NoError(t, repo.Update(ctx, first, a.Version))

	second := a.Clone()
	_, err := second.Refuse(now, "late", nil, assignment.NegotiationRules{})
	require.NoError(t, err)
	err = repo.Update(ctx, second, a.Version)
	require.Error(t, err)
	assert.ErrorIs(t, err, assignment.ErrConcurrentModification)
	assert.ErrorIs(t, err, assignment.ErrInvalidStateTransition)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusAccepted, got.Status)

	err = repo.Update(ctx, newAssignment("ghost", "so9"), 1)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_StaleSlotIsTakenOver(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	// A terminal assignment whose slot release never happened.
	done := newAssignment("a1", "so1")
	done.Status = assignment.StatusTimeout
	data, err := yaml.Marshal(done)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, path("a1"), data))
	slot, err := yaml.Marshal(&activeSlot{AssignmentID: "a1", ServiceOrderID: "so1", ClaimedAt: now})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, activePath("so1"), slot))

	require.NoError(t, repo.Create(ctx, newAssignment("a2", "so1")))

	raw, err := s.Read(ctx, activePath("so1"))
	require.NoError(t, err)
	var holder activeSlot
	require.NoError(t, yaml.Unmarshal(raw, &holder))
	assert.Equal(t, "a2", holder.AssignmentID)
}

func TestYAMLRepository_AbandonedSlot(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	slot, err := yaml.Marshal(&activeSlot{AssignmentID: "never-written", ServiceOrderID: "so1", ClaimedAt: now})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, activePath("so1"), slot))

	// a claim this recent may belong to a create still in flight
	err = repo.Create(ctx, newAssignment("a1", "so1"))
	assert.ErrorIs(t, err, assignment.ErrDuplicateActiveAssignment)

	later := newAssignment("a2", "so1")
	later.CreatedAt = now.Add(2 * abandonedSlotAge)
	require.NoError(t, repo.Create(ctx, later))
}

func TestYAMLRepository_List(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	for i, so := range []string{"so1", "so2", "so3"} {
		a := newAssignment("a"+string(rune('1'+i)), so)
		if so == "so2" {
			a.ProviderID = "p2"
		}
		require.NoError(t, repo.Create(ctx, a))
	}

	all, total, err := repo.List(ctx, assignment.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].ID)

	byProvider, total, err := repo.List(ctx, assignment.ListFilter{ProviderID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "a2", byProvider[0].ID)

	page, total, err := repo.List(ctx, assignment.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "a2", page[0].ID)

	none, _, err := repo.List(ctx, assignment.ListFilter{Status: assignment.StatusRefused})
	require.NoError(t, err)
	assert.Empty(t, none)
}
