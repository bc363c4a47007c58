package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/assignment"
	"github.com/fieldops/fieldops/internal/provider"
	"github.com/fieldops/fieldops/internal/serviceorder"
	"github.com/fieldops/fieldops/pkg/cerr"
)

type fakeOrders map[string]*serviceorder.ServiceOrder

func (f fakeOrders) Get(_ context.Context, id string) (*serviceorder.ServiceOrder, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, cerr.NewError(cerr.NotFound, "service order not found", nil)
}

func (f fakeOrders) List(context.Context) ([]*serviceorder.ServiceOrder, error) { return nil, nil }

func (f fakeOrders) Put(_ context.Context, o *serviceorder.ServiceOrder) error {
	f[o.ID] = o
	return nil
}

type fakeProviders []*provider.Provider

func (f fakeProviders) Get(context.Context, string) (*provider.Provider, error) { return nil, nil }

func (f fakeProviders) ListByCountry(_ context.Context, cc string) ([]*provider.Provider, error) {
	var out []*provider.Provider
	for _, p := range f {
		if p.CountryCode == cc {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f fakeProviders) Put(context.Context, *provider.Provider) error { return nil }

var scheduled = time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)

func order(id, country string) *serviceorder.ServiceOrder {
	return &serviceorder.ServiceOrder{
		ID:            id,
		CountryCode:   country,
		ScheduledDate: scheduled,
		Status:        serviceorder.StatusScheduled,
	}
}

func TestEvaluate(t *testing.T) {
	pool := []*provider.Provider{
		{ID: "p-susp", Tier: 1, RiskStatus: provider.RiskSuspended},
		{ID: "p-watch", Tier: 1, RiskStatus: provider.RiskOnWatch, Certifications: []string{"gas"}},
		{ID: "p-b", Tier: 2, RiskStatus: provider.RiskOK, Certifications: []string{"gas"},
			WorkTeams: []provider.WorkTeam{{ID: "t2", Available: false}, {ID: "t1", Available: true}}},
		{ID: "p-a", Tier: 2, RiskStatus: provider.RiskOK, Certifications: []string{"gas"},
			WorkTeams: []provider.WorkTeam{{ID: "t1", Available: true}}},
		{ID: "p-nocert", Tier: 1, RiskStatus: provider.RiskOK},
		{ID: "p-weird", Tier: 1, RiskStatus: "UNRATED", Certifications: []string{"gas"}},
		{ID: "p-low", Tier: 7, RiskStatus: provider.RiskOK, Certifications: []string{"gas"}},
	}

	excluded, ranked := Evaluate(pool, []string{"gas"})

	assert.Equal(t, []assignment.Exclusion{
		{ProviderID: "p-susp", Reason: "suspended"},
		{ProviderID: "p-nocert", Reason: "missing certification: gas"},
		{ProviderID: "p-weird", Reason: "unknown risk status"},
	}, excluded)

	ids := make([]string, 0, len(ranked))
	for _, c := range ranked {
		ids = append(ids, c.ProviderID)
	}
	// p-a and p-b tie at 200+50+30; p-watch is 300+0; p-low scores only risk.
	assert.Equal(t, []string{"p-watch", "p-a", "p-b", "p-low"}, ids)
	assert.Equal(t, 300, ranked[0].Score)
	assert.Equal(t, 280, ranked[1].Score)
	assert.Equal(t, "t1", ranked[2].WorkTeamID)
	assert.True(t, ranked[2].Available)
	assert.Equal(t, 50, ranked[3].Score)
}

func TestScore_TierClamped(t *testing.T) {
	c := Score(&provider.Provider{ID: "p", Tier: 0, RiskStatus: provider.RiskOK}, nil)
	assert.Equal(t, 350, c.Score)
	assert.False(t, c.Available)
	assert.Empty(t, c.WorkTeamID)
}

func TestStrategy_Plan(t *testing.T) {
	ctx := context.Background()
	orders := fakeOrders{
		"so-es":     order("so-es", "ES"),
		"so-fr":     order("so-fr", "FR"),
		"so-pt":     order("so-pt", "PT"),
		"so-closed": {ID: "so-closed", CountryCode: "FR", ScheduledDate: scheduled, Status: serviceorder.StatusCompleted},
		"so-nodate": {ID: "so-nodate", CountryCode: "FR", Status: serviceorder.StatusCreated},
	}
	broadcast := order("so-bc", "FR")
	broadcast.RequestedMode = "BROADCAST"
	orders[broadcast.ID] = broadcast

	providers := fakeProviders{
		{ID: "es-1", CountryCode: "ES", Tier: 2, RiskStatus: provider.RiskOK,
			WorkTeams: []provider.WorkTeam{{ID: "es-1-t1", Available: true}}},
		{ID: "es-2", CountryCode: "ES", Tier: 1, RiskStatus: provider.RiskSuspended},
		{ID: "fr-1", CountryCode: "FR", Tier: 1, RiskStatus: provider.RiskOK},
		{ID: "fr-2", CountryCode: "FR", Tier: 2, RiskStatus: provider.RiskOK},
		{ID: "fr-3", CountryCode: "FR", Tier: 3, RiskStatus: provider.RiskOK},
		{ID: "pt-1", CountryCode: "PT", Tier: 1, RiskStatus: provider.RiskSuspended},
	}
	policy := DefaultPolicy()
	policy.BroadcastFanout = 2
	s := NewStrategy(orders, providers, NewStaticPolicyStore(policy))

	t.Run("auto accept", func(t *testing.T) {
		plan, err := s.Plan(ctx, "so-es")
		require.NoError(t, err)
		assert.Equal(t, assignment.ModeAutoAccept, plan.Mode)
		assert.Equal(t, "es-1", plan.ProviderID)
		assert.Equal(t, "es-1-t1", plan.WorkTeamID)
		assert.Zero(t, plan.OfferWindow)
		assert.Equal(t, 2, plan.Funnel.Evaluated)
		assert.Len(t, plan.Funnel.Excluded, 1)
		assert.Equal(t, "es-1", plan.Funnel.Selected)
		assert.Contains(t, plan.Funnel.Rationale, "auto-accepted")
		assert.True(t, plan.OriginalDate.Equal(scheduled))
	})

	t.Run("offer", func(t *testing.T) {
		plan, err := s.Plan(ctx, "so-fr")
		require.NoError(t, err)
		assert.Equal(t, assignment.ModeOffer, plan.Mode)
		assert.Equal(t, "fr-1", plan.ProviderID)
		assert.Equal(t, DefaultOfferTimeout, plan.OfferWindow)
		assert.Empty(t, plan.BroadcastProviderIDs)
	})

	t.Run("broadcast fanout", func(t *testing.T) {
		plan, err := s.Plan(ctx, "so-bc")
		require.NoError(t, err)
		assert.Equal(t, assignment.ModeBroadcast, plan.Mode)
		assert.Equal(t, []string{"fr-1", "fr-2"}, plan.BroadcastProviderIDs)
		assert.Equal(t, "fr-1", plan.ProviderID)
	})

	t.Run("no qualified provider", func(t *testing.T) {
		_, err := s.Plan(ctx, "so-pt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, assignment.ErrNoQualifiedProvider))
		assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	})

	t.Run("order not assignable", func(t *testing.T) {
		_, err := s.Plan(ctx, "so-closed")
		assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

		_, err = s.Plan(ctx, "so-nodate")
		assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	})

	t.Run("order not found", func(t *testing.T) {
		_, err := s.Plan(ctx, "so-missing")
		assert.True(t, cerr.IsCode(err, cerr.NotFound))
	})
}
