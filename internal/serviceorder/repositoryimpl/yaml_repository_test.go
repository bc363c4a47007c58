package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/serviceorder"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	scheduled := time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Put(ctx, &serviceorder.ServiceOrder{
		ID:            "so-2",
		CountryCode:   "IT",
		ScheduledDate: scheduled,
		Status:        serviceorder.StatusScheduled,
	}))
	require.NoError(t, repo.Put(ctx, &serviceorder.ServiceOrder{
		ID:          "so-1",
		CountryCode: "ES",
		Status:      serviceorder.StatusCreated,
	}))

	got, err := repo.Get(ctx, "so-2")
	require.NoError(t, err)
	assert.Equal(t, "IT", got.CountryCode)
	assert.True(t, got.ScheduledDate.Equal(scheduled))
	assert.True(t, got.Assignable())

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "so-1", all[0].ID)

	_, err = repo.Get(ctx, "so-404")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestServiceOrder_Assignable(t *testing.T) {
	for status, want := range map[serviceorder.Status]bool{
		serviceorder.StatusCreated:    true,
		serviceorder.StatusScheduled:  true,
		serviceorder.StatusAssigned:   false,
		serviceorder.StatusCompleted:  false,
		serviceorder.StatusCancelled:  false,
		serviceorder.StatusInProgress: false,
	} {
		o := &serviceorder.ServiceOrder{Status: status}
		assert.Equal(t, want, o.Assignable(), status)
	}
}
