package assignment

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// Transitions mutate the receiver only when they succeed. Persisting the
// result atomically is the caller's job.

// Accept is the provider accepting the current proposal. For BROADCAST offers
// providerID picks the winner among the offered providers.
func (a *Assignment) Accept(now time.Time, providerID string) error {
	const op = "accept"
	if err := a.guardOpen(op, now); err != nil {
		return err
	}
	if a.AwaitingManualResolution() {
		return invalidTransition(op, a, "negotiation rounds exhausted, awaiting operator resolution")
	}
	switch {
	case a.Mode == ModeBroadcast:
		if providerID == "" {
			return invalidArgument("provider id is required to accept a broadcast offer")
		}
		if !slices.Contains(a.BroadcastProviderIDs, providerID) {
			return invalidTransition(op, a, "provider "+providerID+" was not offered this assignment")
		}
		a.ProviderID = providerID
	case providerID != "" && providerID != a.ProviderID:
		return invalidTransition(op, a, "offer belongs to provider "+a.ProviderID)
	}
	accepted := a.ProposedDate
	a.Status = StatusAccepted
	a.AcceptedDate = &accepted
	a.AcceptedAt = &now
	a.touch(now)
	return nil
}

// Refuse is the provider turning the offer down. It reports whether the
// refusal was turned into a counter-proposal instead.
func (a *Assignment) Refuse(now time.Time, reason string, alternativeDate *time.Time, rules NegotiationRules) (bool, error) {
	const op = "refuse"
	if err := a.guardOpen(op, now); err != nil {
		return false, err
	}
	if a.AwaitingManualResolution() {
		return false, invalidTransition(op, a, "negotiation rounds exhausted, awaiting operator resolution")
	}
	if alternativeDate != nil && rules.RefusalWithDateNegotiates {
		if err := a.ProposeAlternativeDate(now, *alternativeDate, PartyProvider, reason, rules); err != nil {
			return false, err
		}
		return true, nil
	}
	a.refuse(now, reason)
	return false, nil
}

// ProposeAlternativeDate appends a negotiation round.
func (a *Assignment) ProposeAlternativeDate(now, date time.Time, by Party, notes string, rules NegotiationRules) error {
	const op = "propose a date for"
	if a.Status != StatusPending {
		return invalidTransition(op, a, "")
	}
	if a.DateNegotiationRound >= MaxNegotiationRounds {
		return maxRoundsExceeded(a)
	}
	if a.IsExpired(now) {
		return offerExpired(op, a)
	}
	if !by.IsValid() {
		return invalidArgument("proposed_by must be PROVIDER or CUSTOMER")
	}
	if date.IsZero() {
		return invalidArgument("proposed date is required")
	}
	if last := a.LastNegotiation(); rules.EnforceAlternation && last != nil && last.ProposedBy == by {
		return invalidTransition(op, a, string(by)+" proposed the previous round")
	}

	a.DateNegotiationRound++
	a.Negotiations = append(a.Negotiations, DateNegotiation{
		ID:           ulid.Make().String(),
		Round:        a.DateNegotiationRound,
		ProposedDate: date,
		ProposedBy:   by,
		Notes:        notes,
		CreatedAt:    now,
	})
	a.ProposedDate = date
	if rules.ResponseWindow > 0 {
		expires := now.Add(rules.ResponseWindow)
		a.OfferExpiresAt = &expires
	}
	a.touch(now)
	return nil
}

// AcceptCounterProposal accepts the provider's latest proposed date.
func (a *Assignment) AcceptCounterProposal(now time.Time) error {
	const op = "accept counter-proposal on"
	if err := a.guardOpen(op, now); err != nil {
		return err
	}
	last := a.LastNegotiation()
	if last == nil || last.ProposedBy != PartyProvider {
		return invalidTransition(op, a, "latest proposal is not from the provider")
	}
	accepted := last.ProposedDate
	a.Status = StatusAccepted
	a.AcceptedDate = &accepted
	a.AcceptedAt = &now
	a.touch(now)
	return nil
}

// RefuseCounterProposal rejects the latest proposal. Below the round cap the
// customer re-proposes counterDate (or the original date); at the cap the
// assignment is refused.
func (a *Assignment) RefuseCounterProposal(now time.Time, reason string, counterDate *time.Time, rules NegotiationRules) error {
	const op = "refuse counter-proposal on"
	if err := a.guardOpen(op, now); err != nil {
		return err
	}
	if len(a.Negotiations) == 0 {
		return invalidTransition(op, a, "no counter-proposal to refuse")
	}
	if a.DateNegotiationRound >= MaxNegotiationRounds {
		a.refuse(now, reason)
		return nil
	}
	date := a.OriginalDate
	if counterDate != nil {
		date = *counterDate
	}
	return a.ProposeAlternativeDate(now, date, PartyCustomer, reason, rules)
}

// ResolveManually is the operator closing an assignment whose negotiation
// hit the round cap.
func (a *Assignment) ResolveManually(now time.Time, outcome Status, date *time.Time, reason string) error {
	const op = "resolve"
	if !a.AwaitingManualResolution() {
		return invalidTransition(op, a, "assignment is not awaiting operator resolution")
	}
	switch outcome {
	case StatusAccepted:
		accepted := a.CurrentProposal()
		if date != nil {
			accepted = *date
			a.ProposedDate = accepted
		}
		a.Status = StatusAccepted
		a.AcceptedDate = &accepted
		a.AcceptedAt = &now
		a.touch(now)
	case StatusRefused:
		a.refuse(now, reason)
	default:
		return invalidArgument("outcome must be ACCEPTED or REFUSED")
	}
	return nil
}

// MarkTimeout reports false without error when the assignment is already
// terminal, so concurrent sweeps are harmless.
func (a *Assignment) MarkTimeout(now time.Time) (bool, error) {
	const op = "time out"
	if a.IsTerminal() {
		return false, nil
	}
	if a.AwaitingManualResolution() {
		return false, invalidTransition(op, a, "awaiting operator resolution")
	}
	if !a.IsExpired(now) {
		return false, invalidTransition(op, a, "offer has not expired")
	}
	a.Status = StatusTimeout
	a.TimedOutAt = &now
	a.touch(now)
	return true, nil
}

func (a *Assignment) guardOpen(op string, now time.Time) error {
	if a.Status != StatusPending {
		return invalidTransition(op, a, "")
	}
	if a.IsExpired(now) {
		return offerExpired(op, a)
	}
	return nil
}

func (a *Assignment) refuse(now time.Time, reason string) {
	a.Status = StatusRefused
	a.RefusedAt = &now
	a.RefusalReason = reason
	a.touch(now)
}

func (a *Assignment) touch(now time.Time) {
	a.Version++
	a.UpdatedAt = now
}
