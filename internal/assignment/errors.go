package assignment

import (
	"errors"
	"fmt"

	"github.com/fieldops/fieldops/pkg/cerr"
)

var (
	ErrNoQualifiedProvider       = errors.New("no qualified provider")
	ErrDuplicateActiveAssignment = errors.New("duplicate active assignment")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrMaxRoundsExceeded         = errors.New("max negotiation rounds exceeded")

	// ErrOfferExpired and ErrConcurrentModification are both reported to
	// callers as invalid state transitions.
	ErrOfferExpired           = fmt.Errorf("offer expired: %w", ErrInvalidStateTransition)
	ErrConcurrentModification = fmt.Errorf("concurrent modification: %w", ErrInvalidStateTransition)
)

const (
	ruleNoQualifiedProvider       = "NoQualifiedProvider"
	ruleDuplicateActiveAssignment = "DuplicateActiveAssignment"
	ruleInvalidStateTransition    = "InvalidStateTransition"
	ruleMaxRoundsExceeded         = "MaxRoundsExceeded"
)

func NoQualifiedProviderError(serviceOrderID string, evaluated int) error {
	msg := fmt.Sprintf("no qualified provider for service order %s (%d evaluated)", serviceOrderID, evaluated)
	return cerr.NewError(cerr.FailedPrecondition, msg, ErrNoQualifiedProvider).
		AddDetailMessageWithCode(msg, ruleNoQualifiedProvider)
}

func DuplicateActiveAssignmentError(serviceOrderID, activeID string) error {
	msg := fmt.Sprintf("service order %s already has an active assignment", serviceOrderID)
	return cerr.NewError(cerr.AlreadyExists, msg, fmt.Errorf("active assignment %s: %w", activeID, ErrDuplicateActiveAssignment)).
		AddDetailMessageWithCode(msg, ruleDuplicateActiveAssignment)
}

// ConflictError reports a lost compare-and-swap on the assignment record.
func ConflictError(id string) error {
	msg := fmt.Sprintf("assignment %s was modified concurrently", id)
	return cerr.NewError(cerr.Aborted, msg, ErrConcurrentModification).
		AddDetailMessageWithCode(msg, ruleInvalidStateTransition)
}

func invalidTransition(transition string, a *Assignment, reason string) error {
	msg := fmt.Sprintf("cannot %s assignment in status %s", transition, a.Status)
	if reason != "" {
		msg += ": " + reason
	}
	return cerr.NewError(cerr.Aborted, msg, ErrInvalidStateTransition).
		AddDetailMessageWithCode(msg, ruleInvalidStateTransition)
}

func offerExpired(transition string, a *Assignment) error {
	msg := fmt.Sprintf("cannot %s assignment %s: offer expired at %s", transition, a.ID, a.OfferExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return cerr.NewError(cerr.Aborted, msg, ErrOfferExpired).
		AddDetailMessageWithCode(msg, ruleInvalidStateTransition)
}

func maxRoundsExceeded(a *Assignment) error {
	msg := fmt.Sprintf("assignment %s already used %d of %d negotiation rounds", a.ID, a.DateNegotiationRound, MaxNegotiationRounds)
	return cerr.NewError(cerr.OutOfRange, msg, ErrMaxRoundsExceeded).
		AddDetailMessageWithCode(msg, ruleMaxRoundsExceeded)
}

func invalidArgument(msg string) error {
	return cerr.NewError(cerr.InvalidArgument, msg, nil)
}
