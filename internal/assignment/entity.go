package assignment

import (
	"slices"
	"time"
)

// MaxNegotiationRounds caps the date negotiation. An assignment that reaches
// it stays PENDING until an operator resolves it.
const MaxNegotiationRounds = 3

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRefused  Status = "REFUSED"
	StatusTimeout  Status = "TIMEOUT"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRefused, StatusTimeout:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRefused || s == StatusTimeout
}

type Mode string

const (
	ModeDirect     Mode = "DIRECT"
	ModeOffer      Mode = "OFFER"
	ModeBroadcast  Mode = "BROADCAST"
	ModeAutoAccept Mode = "AUTO_ACCEPT"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeDirect, ModeOffer, ModeBroadcast, ModeAutoAccept:
		return true
	}
	return false
}

type Party string

const (
	PartyProvider Party = "PROVIDER"
	PartyCustomer Party = "CUSTOMER"
)

func (p Party) IsValid() bool {
	return p == PartyProvider || p == PartyCustomer
}

type Assignment struct {
	ID                   string            `yaml:"id"`
	ServiceOrderID       string            `yaml:"service_order_id"`
	CountryCode          string            `yaml:"country_code,omitempty"`
	ProviderID           string            `yaml:"provider_id"`
	WorkTeamID           string            `yaml:"work_team_id,omitempty"`
	Status               Status            `yaml:"status"`
	Mode                 Mode              `yaml:"mode"`
	OriginalDate         time.Time         `yaml:"original_date"`
	ProposedDate         time.Time         `yaml:"proposed_date"`
	AcceptedDate         *time.Time        `yaml:"accepted_date,omitempty"`
	DateNegotiationRound int               `yaml:"date_negotiation_round"`
	OfferExpiresAt       *time.Time        `yaml:"offer_expires_at,omitempty"`
	AcceptedAt           *time.Time        `yaml:"accepted_at,omitempty"`
	RefusedAt            *time.Time        `yaml:"refused_at,omitempty"`
	RefusalReason        string            `yaml:"refusal_reason,omitempty"`
	TimedOutAt           *time.Time        `yaml:"timed_out_at,omitempty"`
	BroadcastProviderIDs []string          `yaml:"broadcast_provider_ids,omitempty"`
	Negotiations         []DateNegotiation `yaml:"negotiations,omitempty"`
	Funnel               Funnel            `yaml:"funnel"`
	Version              int64             `yaml:"version"`
	CreatedAt            time.Time         `yaml:"created_at"`
	UpdatedAt            time.Time         `yaml:"updated_at"`
}

// DateNegotiation is one counter-proposal. Records are append-only.
type DateNegotiation struct {
	ID           string    `yaml:"id"`
	Round        int       `yaml:"round"`
	ProposedDate time.Time `yaml:"proposed_date"`
	ProposedBy   Party     `yaml:"proposed_by"`
	Notes        string    `yaml:"notes,omitempty"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// Funnel records how the provider was chosen.
type Funnel struct {
	Evaluated int         `yaml:"evaluated"`
	Excluded  []Exclusion `yaml:"excluded,omitempty"`
	Ranked    []Candidate `yaml:"ranked,omitempty"`
	Selected  string      `yaml:"selected"`
	Rationale string      `yaml:"rationale"`
}

type Exclusion struct {
	ProviderID string `yaml:"provider_id"`
	Reason     string `yaml:"reason"`
}

type Candidate struct {
	ProviderID string `yaml:"provider_id"`
	WorkTeamID string `yaml:"work_team_id,omitempty"`
	Score      int    `yaml:"score"`
	Tier       int    `yaml:"tier"`
	RiskStatus string `yaml:"risk_status"`
	Available  bool   `yaml:"available"`
}

func (a *Assignment) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// IsAutoAccepted distinguishes a system acceptance from an explicit one.
func (a *Assignment) IsAutoAccepted() bool {
	return a.Status == StatusAccepted && a.AcceptedAt == nil
}

func (a *Assignment) AwaitingManualResolution() bool {
	return a.Status == StatusPending && a.DateNegotiationRound >= MaxNegotiationRounds
}

// IsExpired reports whether a PENDING offer is past its expiry. Assignments
// awaiting manual resolution never expire.
func (a *Assignment) IsExpired(now time.Time) bool {
	if a.Status != StatusPending || a.AwaitingManualResolution() || a.OfferExpiresAt == nil {
		return false
	}
	return now.After(*a.OfferExpiresAt)
}

func (a *Assignment) LastNegotiation() *DateNegotiation {
	if len(a.Negotiations) == 0 {
		return nil
	}
	return &a.Negotiations[len(a.Negotiations)-1]
}

// CurrentProposal is the date of the highest round, or the original date.
func (a *Assignment) CurrentProposal() time.Time {
	if last := a.LastNegotiation(); last != nil {
		return last.ProposedDate
	}
	return a.OriginalDate
}

func (a *Assignment) Clone() *Assignment {
	c := *a
	c.AcceptedDate = cloneTime(a.AcceptedDate)
	c.OfferExpiresAt = cloneTime(a.OfferExpiresAt)
	c.AcceptedAt = cloneTime(a.AcceptedAt)
	c.RefusedAt = cloneTime(a.RefusedAt)
	c.TimedOutAt = cloneTime(a.TimedOutAt)
	c.BroadcastProviderIDs = slices.Clone(a.BroadcastProviderIDs)
	c.Negotiations = slices.Clone(a.Negotiations)
	c.Funnel.Excluded = slices.Clone(a.Funnel.Excluded)
	c.Funnel.Ranked = slices.Clone(a.Funnel.Ranked)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Plan is the output of offer dispatch: who gets the offer and how.
type Plan struct {
	ServiceOrderID       string
	CountryCode          string
	ProviderID           string
	WorkTeamID           string
	Mode                 Mode
	OriginalDate         time.Time
	OfferWindow          time.Duration
	BroadcastProviderIDs []string
	Funnel               Funnel
}

// NegotiationRules are the policy knobs consulted by transitions.
type NegotiationRules struct {
	// ResponseWindow extends the offer expiry after each proposal. Zero keeps
	// the current expiry.
	ResponseWindow time.Duration
	// RefusalWithDateNegotiates turns refuse(reason, date) into a provider
	// counter-proposal while rounds remain.
	RefusalWithDateNegotiates bool
	// EnforceAlternation rejects two consecutive proposals by the same party.
	EnforceAlternation bool
}

type ListFilter struct {
	ServiceOrderID string
	ProviderID     string
	Status         Status
	Limit          int
	Offset         int
}
