package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/provider"
	providerrepo "github.com/fieldops/fieldops/internal/provider/repositoryimpl"
	"github.com/fieldops/fieldops/internal/serviceorder"
	serviceorderrepo "github.com/fieldops/fieldops/internal/serviceorder/repositoryimpl"
	"github.com/fieldops/fieldops/pkg/storage"
)

const fixtureYAML = `
service_orders:
  - id: so-1
    country_code: FR
    scheduled_date: 2026-11-02T09:00:00Z
    required_certifications: [gas]
  - id: so-2
    country_code: ES
    scheduled_date: 2026-11-03T09:00:00Z
    status: SCHEDULED
providers:
  - id: p-1
    name: Alpha
    country_code: FR
    tier: 1
    certifications: [gas]
    work_teams:
      - id: t-1
        available: true
  - id: p-2
    country_code: FR
    tier: 3
    risk_status: ON_WATCH
`

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	orders := serviceorderrepo.NewYAMLRepository(s)
	providers := providerrepo.NewYAMLRepository(s)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	nOrders, nProviders, err := seed(ctx, strings.NewReader(fixtureYAML), orders, providers, now)
	require.NoError(t, err)
	assert.Equal(t, 2, nOrders)
	assert.Equal(t, 2, nProviders)

	so, err := orders.Get(ctx, "so-1")
	require.NoError(t, err)
	assert.Equal(t, serviceorder.StatusCreated, so.Status)
	assert.Equal(t, []string{"gas"}, so.RequiredCertifications)
	assert.Equal(t, now, so.CreatedAt)

	pool, err := providers.ListByCountry(ctx, "fr")
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, provider.RiskOK, pool[0].RiskStatus)
	assert.Equal(t, provider.RiskOnWatch, pool[1].RiskStatus)
	require.Len(t, pool[0].WorkTeams, 1)
	assert.True(t, pool[0].WorkTeams[0].Available)
}

func TestSeed_Invalid(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	orders := serviceorderrepo.NewYAMLRepository(s)
	providers := providerrepo.NewYAMLRepository(s)

	_, _, err = seed(ctx, strings.NewReader("service_orders: [{country_code: FR}]"), orders, providers, time.Now())
	assert.ErrorContains(t, err, "without id")

	_, _, err = seed(ctx, strings.NewReader("providers: {"), orders, providers, time.Now())
	assert.ErrorContains(t, err, "decode fixture")
}
