package assignment

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/fieldops/fieldops/internal/eventbus"
	"github.com/fieldops/fieldops/pkg/clog"
)

// Planner chooses provider and mode for a service order.
type Planner interface {
	Plan(ctx context.Context, serviceOrderID string) (*Plan, error)
}

// RulesSource supplies the negotiation rules in force at call time for a
// country.
type RulesSource interface {
	NegotiationRules(countryCode string) NegotiationRules
}

type Service struct {
	repo    Repository
	planner Planner
	rules   RulesSource
	bus     *eventbus.Bus
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, planner Planner, rules RulesSource, bus *eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		planner: planner,
		rules:   rules,
		bus:     bus,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateAssignment(ctx context.Context, serviceOrderID string) (*Assignment, error) {
	if serviceOrderID == "" {
		return nil, invalidArgument("service order id is required")
	}
	plan, err := s.planner.Plan(ctx, serviceOrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &Assignment{
		ID:                   ulid.Make().String(),
		ServiceOrderID:       plan.ServiceOrderID,
		CountryCode:          plan.CountryCode,
		ProviderID:           plan.ProviderID,
		WorkTeamID:           plan.WorkTeamID,
		Status:               StatusPending,
		Mode:                 plan.Mode,
		OriginalDate:         plan.OriginalDate,
		ProposedDate:         plan.OriginalDate,
		BroadcastProviderIDs: plan.BroadcastProviderIDs,
		Funnel:               plan.Funnel,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if plan.Mode == ModeAutoAccept {
		// AcceptedAt stays nil: nobody accepted explicitly.
		accepted := plan.OriginalDate
		a.Status = StatusAccepted
		a.AcceptedDate = &accepted
	} else if plan.OfferWindow > 0 {
		expires := now.Add(plan.OfferWindow)
		a.OfferExpiresAt = &expires
	}

	err = s.repo.Create(ctx, a)
	if errors.Is(err, ErrDuplicateActiveAssignment) {
		// The holder may be an offer that ran out but was not swept yet.
		freed, expireErr := s.expireActive(ctx, a.ServiceOrderID, now)
		switch {
		case expireErr != nil:
			err = expireErr
		case freed:
			err = s.repo.Create(ctx, a)
		}
	}
	if err != nil {
		return nil, err
	}

	clog.AddAssignment(ctx, a.ID)
	s.publish(ctx, eventbus.AssignmentCreated, a)
	if a.IsAutoAccepted() {
		s.publish(ctx, eventbus.AssignmentAutoAccepted, a)
	}
	return a.Clone(), nil
}

// GetAssignment returns a snapshot. A PENDING offer found past its expiry is
// timed out on the way.
func (s *Service) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if now := s.now(); a.IsExpired(now) {
		return s.expire(ctx, a, now)
	}
	return a, nil
}

// ListAssignments times out expired offers before filtering on status, so a
// PENDING listing never returns or counts an offer that is already over.
// Paging is applied afterwards.
func (s *Service) ListAssignments(ctx context.Context, filter ListFilter) ([]*Assignment, int, error) {
	// Status is matched here: a stored PENDING record may be TIMEOUT by now.
	unfiltered := filter
	unfiltered.Status, unfiltered.Limit, unfiltered.Offset = "", 0, 0
	items, _, err := s.repo.List(ctx, unfiltered)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	matched := items[:0]
	for _, a := range items {
		if a.IsExpired(now) {
			if expired, err := s.expire(ctx, a, now); err == nil {
				a = expired
			}
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		matched = append(matched, a)
	}

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// AcceptAssignment accepts the current proposal. providerID is required for
// BROADCAST offers and optional otherwise.
func (s *Service) AcceptAssignment(ctx context.Context, id, providerID string) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		return eventbus.AssignmentAccepted, a.Accept(now, providerID)
	})
}

func (s *Service) RefuseAssignment(ctx context.Context, id, reason string, alternativeDate *time.Time) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		rules := s.rules.NegotiationRules(a.CountryCode)
		negotiated, err := a.Refuse(now, reason, alternativeDate, rules)
		if negotiated {
			return eventbus.AssignmentDateProposed, err
		}
		return eventbus.AssignmentRefused, err
	})
}

func (s *Service) ProposeAlternativeDate(ctx context.Context, id string, date time.Time, by Party, notes string) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		rules := s.rules.NegotiationRules(a.CountryCode)
		return eventbus.AssignmentDateProposed, a.ProposeAlternativeDate(now, date, by, notes, rules)
	})
}

func (s *Service) AcceptCounterProposal(ctx context.Context, id string) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		return eventbus.AssignmentAccepted, a.AcceptCounterProposal(now)
	})
}

func (s *Service) RefuseCounterProposal(ctx context.Context, id, reason string, counterDate *time.Time) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		rules := s.rules.NegotiationRules(a.CountryCode)
		if err := a.RefuseCounterProposal(now, reason, counterDate, rules); err != nil {
			return "", err
		}
		if a.Status == StatusRefused {
			return eventbus.AssignmentRefused, nil
		}
		return eventbus.AssignmentDateProposed, nil
	})
}

// ResolveManually closes an assignment that exhausted its negotiation rounds.
func (s *Service) ResolveManually(ctx context.Context, id string, outcome Status, date *time.Time, reason string) (*Assignment, error) {
	return s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		if err := a.ResolveManually(now, outcome, date, reason); err != nil {
			return "", err
		}
		if a.Status == StatusAccepted {
			return eventbus.AssignmentAccepted, nil
		}
		return eventbus.AssignmentRefused, nil
	})
}

// MarkTimeout is idempotent: an assignment that is already terminal, or
// becomes terminal under a concurrent caller, is returned unchanged.
func (s *Service) MarkTimeout(ctx context.Context, id string) (*Assignment, error) {
	a, err := s.transition(ctx, id, func(a *Assignment, now time.Time) (eventbus.EventType, error) {
		changed, err := a.MarkTimeout(now)
		if err != nil || !changed {
			return "", err
		}
		return eventbus.AssignmentTimedOut, nil
	})
	if errors.Is(err, ErrConcurrentModification) {
		current, getErr := s.repo.Get(ctx, id)
		if getErr == nil && current.IsTerminal() {
			return current, nil
		}
	}
	return a, err
}

// SweepExpiredOffers times out every expired PENDING offer and returns how
// many it transitioned. Offers won by a concurrent caller are skipped.
func (s *Service) SweepExpiredOffers(ctx context.Context, concurrency int) (int, error) {
	pending, _, err := s.repo.List(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		return 0, err
	}
	now := s.now()

	var transitioned atomic.Int64
	p := pool.New().WithMaxGoroutines(max(concurrency, 1)).WithContext(ctx)
	for _, a := range pending {
		if !a.IsExpired(now) {
			continue
		}
		p.Go(func(ctx context.Context) error {
			next := a.Clone()
			changed, err := next.MarkTimeout(now)
			if err != nil || !changed {
				return nil
			}
			if err := s.repo.Update(ctx, next, a.Version); err != nil {
				if errors.Is(err, ErrConcurrentModification) {
					slog.DebugContext(ctx, "sweep lost race", "assignment_id", a.ID)
					return nil
				}
				return err
			}
			transitioned.Add(1)
			s.publish(ctx, eventbus.AssignmentTimedOut, next)
			return nil
		})
	}
	err = p.Wait()
	n := int(transitioned.Load())
	slog.InfoContext(ctx, "expired offers swept", "pending", len(pending), "transitioned", n)
	return n, err
}

// transition runs read, guard and conditional write as one unit. apply
// mutates a private copy and names the event to publish; an empty event
// type means nothing changed.
func (s *Service) transition(ctx context.Context, id string, apply func(a *Assignment, now time.Time) (eventbus.EventType, error)) (*Assignment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	clog.AddAssignment(ctx, id)

	now := s.now()
	next := current.Clone()
	eventType, err := apply(next, now)
	if err != nil {
		if errors.Is(err, ErrOfferExpired) {
			_, _ = s.expire(ctx, current, now)
		}
		return nil, err
	}
	if eventType == "" {
		return current, nil
	}
	if err := s.repo.Update(ctx, next, current.Version); err != nil {
		return nil, err
	}
	s.publish(ctx, eventType, next)
	return next.Clone(), nil
}

// expire records the timeout of an offer observed past its expiry. When
// another caller got there first the stored state is returned instead.
func (s *Service) expire(ctx context.Context, a *Assignment, now time.Time) (*Assignment, error) {
	next := a.Clone()
	changed, err := next.MarkTimeout(now)
	if err != nil || !changed {
		return a, err
	}
	if err := s.repo.Update(ctx, next, a.Version); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return s.repo.Get(ctx, a.ID)
		}
		slog.WarnContext(ctx, "failed to record offer timeout", "assignment_id", a.ID, "error", err)
		return nil, err
	}
	s.publish(ctx, eventbus.AssignmentTimedOut, next)
	return next.Clone(), nil
}

// expireActive times out the expired pending offers of a service order and
// reports whether any of them became terminal.
func (s *Service) expireActive(ctx context.Context, serviceOrderID string, now time.Time) (bool, error) {
	pending, _, err := s.repo.List(ctx, ListFilter{ServiceOrderID: serviceOrderID, Status: StatusPending})
	if err != nil {
		return false, err
	}
	freed := false
	for _, a := range pending {
		if !a.IsExpired(now) {
			continue
		}
		expired, err := s.expire(ctx, a, now)
		if err != nil {
			return false, err
		}
		if expired.IsTerminal() {
			freed = true
		}
	}
	return freed, nil
}

func (s *Service) publish(ctx context.Context, eventType eventbus.EventType, a *Assignment) {
	slog.InfoContext(ctx, "assignment event",
		"event", eventType,
		"assignment_id", a.ID,
		"service_order_id", a.ServiceOrderID,
		"provider_id", a.ProviderID,
		"status", a.Status,
		"mode", a.Mode,
		"round", a.DateNegotiationRound,
	)
	if s.bus == nil {
		return
	}
	s.bus.PublishNew(eventType, a.ID, eventMetadata(a))
}

func eventMetadata(a *Assignment) map[string]string {
	m := map[string]string{
		"service_order_id": a.ServiceOrderID,
		"provider_id":      a.ProviderID,
		"status":           string(a.Status),
		"mode":             string(a.Mode),
		"round":            strconv.Itoa(a.DateNegotiationRound),
		"proposed_date":    a.ProposedDate.Format(time.RFC3339),
		"version":          strconv.FormatInt(a.Version, 10),
	}
	if a.WorkTeamID != "" {
		m["work_team_id"] = a.WorkTeamID
	}
	if a.AcceptedDate != nil {
		m["accepted_date"] = a.AcceptedDate.Format(time.RFC3339)
	}
	if a.RefusalReason != "" {
		m["refusal_reason"] = a.RefusalReason
	}
	if last := a.LastNegotiation(); last != nil {
		m["proposed_by"] = string(last.ProposedBy)
	}
	return m
}
