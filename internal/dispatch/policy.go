package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/assignment"
)

const (
	DefaultDirectTimeout      = 48 * time.Hour
	DefaultOfferTimeout       = 24 * time.Hour
	DefaultBroadcastTimeout   = 24 * time.Hour
	DefaultNegotiationTimeout = 24 * time.Hour
	DefaultBroadcastFanout    = 5
)

// Timeouts are offer windows per mode. A zero value inherits the global
// setting when used in a country rule.
type Timeouts struct {
	Direct      time.Duration `yaml:"direct"`
	Offer       time.Duration `yaml:"offer"`
	Broadcast   time.Duration `yaml:"broadcast"`
	Negotiation time.Duration `yaml:"negotiation"`
}

type CountryRule struct {
	AutoAccept  bool            `yaml:"autoAccept"`
	DefaultMode assignment.Mode `yaml:"defaultMode"`
	Timeouts    Timeouts        `yaml:"timeouts"`
}

// Policy is the dispatch and negotiation configuration, usually loaded from
// a YAML file.
type Policy struct {
	DefaultMode               assignment.Mode        `yaml:"defaultMode"`
	Timeouts                  Timeouts               `yaml:"timeouts"`
	BroadcastFanout           int                    `yaml:"broadcastFanout"`
	RefusalWithDateNegotiates bool                   `yaml:"refusalWithDateNegotiates"`
	EnforceAlternation        bool                   `yaml:"enforceAlternation"`
	Countries                 map[string]CountryRule `yaml:"countries"`
}

func DefaultPolicy() *Policy {
	return &Policy{
		DefaultMode: assignment.ModeOffer,
		Timeouts: Timeouts{
			Direct:      DefaultDirectTimeout,
			Offer:       DefaultOfferTimeout,
			Broadcast:   DefaultBroadcastTimeout,
			Negotiation: DefaultNegotiationTimeout,
		},
		BroadcastFanout:           DefaultBroadcastFanout,
		RefusalWithDateNegotiates: true,
		Countries: map[string]CountryRule{
			"ES": {AutoAccept: true},
			"IT": {AutoAccept: true},
		},
	}
}

// ParsePolicy decodes a policy document. Omitted scalar settings keep their
// defaults; a countries section replaces the built-in country rules.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	p.Countries = nil
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse dispatch policy: %w", err)
	}
	if p.Countries == nil {
		p.Countries = DefaultPolicy().Countries
	}
	normalized := make(map[string]CountryRule, len(p.Countries))
	for cc, rule := range p.Countries {
		normalized[strings.ToUpper(cc)] = rule
	}
	p.Countries = normalized
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) Validate() error {
	var errs []error
	if !selectableMode(p.DefaultMode) {
		errs = append(errs, fmt.Errorf("defaultMode %q must be DIRECT, OFFER or BROADCAST", p.DefaultMode))
	}
	if p.BroadcastFanout < 1 {
		errs = append(errs, fmt.Errorf("broadcastFanout must be at least 1, got %d", p.BroadcastFanout))
	}
	errs = append(errs, p.Timeouts.validate("timeouts")...)
	for cc, rule := range p.Countries {
		if rule.DefaultMode != "" && !selectableMode(rule.DefaultMode) {
			errs = append(errs, fmt.Errorf("countries.%s.defaultMode %q must be DIRECT, OFFER or BROADCAST", cc, rule.DefaultMode))
		}
		errs = append(errs, rule.Timeouts.validate("countries."+cc+".timeouts")...)
	}
	return errors.Join(errs...)
}

func (t Timeouts) validate(prefix string) []error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"direct":      t.Direct,
		"offer":       t.Offer,
		"broadcast":   t.Broadcast,
		"negotiation": t.Negotiation,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s.%s must not be negative", prefix, name))
		}
	}
	return errs
}

func (p *Policy) Country(countryCode string) CountryRule {
	return p.Countries[strings.ToUpper(countryCode)]
}

// Timeout returns the offer window for mode in a country. AUTO_ACCEPT has
// none.
func (p *Policy) Timeout(mode assignment.Mode, countryCode string) time.Duration {
	local := p.Country(countryCode).Timeouts
	pick := func(country, global time.Duration) time.Duration {
		if country > 0 {
			return country
		}
		return global
	}
	switch mode {
	case assignment.ModeDirect:
		return pick(local.Direct, p.Timeouts.Direct)
	case assignment.ModeOffer:
		return pick(local.Offer, p.Timeouts.Offer)
	case assignment.ModeBroadcast:
		return pick(local.Broadcast, p.Timeouts.Broadcast)
	}
	return 0
}

// SelectMode picks the dispatch mode for an order with the given number of
// qualified providers.
func (p *Policy) SelectMode(countryCode, requested string, qualified int) assignment.Mode {
	rule := p.Country(countryCode)
	if rule.AutoAccept && qualified == 1 {
		return assignment.ModeAutoAccept
	}
	if m := assignment.Mode(strings.ToUpper(requested)); selectableMode(m) {
		return m
	}
	if selectableMode(rule.DefaultMode) {
		return rule.DefaultMode
	}
	return p.DefaultMode
}

// NegotiationRules returns the rules for a country. A country negotiation
// timeout overrides the global one.
func (p *Policy) NegotiationRules(countryCode string) assignment.NegotiationRules {
	window := p.Timeouts.Negotiation
	if local := p.Country(countryCode).Timeouts.Negotiation; local > 0 {
		window = local
	}
	return assignment.NegotiationRules{
		ResponseWindow:            window,
		RefusalWithDateNegotiates: p.RefusalWithDateNegotiates,
		EnforceAlternation:        p.EnforceAlternation,
	}
}

func selectableMode(m assignment.Mode) bool {
	return m == assignment.ModeDirect || m == assignment.ModeOffer || m == assignment.ModeBroadcast
}
