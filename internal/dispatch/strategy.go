package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldops/fieldops/internal/assignment"
	"github.com/fieldops/fieldops/internal/provider"
	"github.com/fieldops/fieldops/internal/serviceorder"
	"github.com/fieldops/fieldops/pkg/cerr"
)

// Strategy selects the provider(s) and mode for a service order.
type Strategy struct {
	orders    serviceorder.Repository
	providers provider.Repository
	policies  *PolicyStore
}

func NewStrategy(orders serviceorder.Repository, providers provider.Repository, policies *PolicyStore) *Strategy {
	return &Strategy{
		orders:    orders,
		providers: providers,
		policies:  policies,
	}
}

func (s *Strategy) Plan(ctx context.Context, serviceOrderID string) (*assignment.Plan, error) {
	order, err := s.orders.Get(ctx, serviceOrderID)
	if err != nil {
		return nil, err
	}
	if !order.Assignable() {
		return nil, cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("service order %s is %s and cannot be assigned", order.ID, order.Status), nil)
	}
	if order.ScheduledDate.IsZero() {
		return nil, cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("service order %s has no scheduled date", order.ID), nil)
	}

	pool, err := s.providers.ListByCountry(ctx, order.CountryCode)
	if err != nil {
		return nil, err
	}
	excluded, ranked := Evaluate(pool, order.RequiredCertifications)
	funnel := assignment.Funnel{
		Evaluated: len(pool),
		Excluded:  excluded,
		Ranked:    ranked,
	}
	if len(ranked) == 0 {
		slog.InfoContext(ctx, "no qualified provider",
			"service_order_id", order.ID,
			"country", order.CountryCode,
			"evaluated", len(pool),
		)
		return nil, assignment.NoQualifiedProviderError(order.ID, len(pool))
	}

	policy := s.policies.Current()
	mode := policy.SelectMode(order.CountryCode, order.RequestedMode, len(ranked))
	best := ranked[0]
	funnel.Selected = best.ProviderID

	plan := &assignment.Plan{
		ServiceOrderID: order.ID,
		CountryCode:    order.CountryCode,
		ProviderID:     best.ProviderID,
		WorkTeamID:     best.WorkTeamID,
		Mode:           mode,
		OriginalDate:   order.ScheduledDate,
		OfferWindow:    policy.Timeout(mode, order.CountryCode),
	}
	if mode == assignment.ModeBroadcast {
		n := min(policy.BroadcastFanout, len(ranked))
		for _, c := range ranked[:n] {
			plan.BroadcastProviderIDs = append(plan.BroadcastProviderIDs, c.ProviderID)
		}
	}
	funnel.Rationale = rationale(best, mode, len(ranked), plan.OfferWindow, plan.BroadcastProviderIDs)
	plan.Funnel = funnel
	return plan, nil
}

func rationale(best assignment.Candidate, mode assignment.Mode, qualified int, window time.Duration, broadcast []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s scored %d (tier %d, risk %s", best.ProviderID, best.Score, best.Tier, best.RiskStatus)
	if best.Available {
		fmt.Fprintf(&b, ", team %s available", best.WorkTeamID)
	}
	fmt.Fprintf(&b, ") among %d qualified; mode %s", qualified, mode)
	switch {
	case mode == assignment.ModeAutoAccept:
		b.WriteString(", auto-accepted by country rule")
	case len(broadcast) > 0:
		fmt.Fprintf(&b, ", offered to %s for %s", strings.Join(broadcast, ", "), window)
	default:
		fmt.Fprintf(&b, ", offer open for %s", window)
	}
	return b.String()
}
