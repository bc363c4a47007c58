package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/provider"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func TestYAMLRepository_ListByCountry(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	for _, p := range []*provider.Provider{
		{ID: "p2", CountryCode: "ES", Tier: 1, RiskStatus: provider.RiskOK},
		{ID: "p1", CountryCode: "es", Tier: 2, RiskStatus: provider.RiskOnWatch},
		{ID: "p3", CountryCode: "FR", Tier: 1, RiskStatus: provider.RiskOK},
	} {
		require.NoError(t, repo.Put(ctx, p))
	}

	got, err := repo.ListByCountry(ctx, "ES")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)

	none, err := repo.ListByCountry(ctx, "IT")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestYAMLRepository_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	in := &provider.Provider{
		ID:          "p1",
		Name:        "Instalaciones Norte",
		CountryCode: "ES",
		Tier:        1,
		RiskStatus:  provider.RiskOK,
		WorkTeams:   []provider.WorkTeam{{ID: "t1", Name: "Team 1", Available: true}},
	}
	require.NoError(t, repo.Put(ctx, in))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.WorkTeams, got.WorkTeams)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	err = repo.Put(ctx, &provider.Provider{})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}
