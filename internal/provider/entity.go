package provider

import (
	"slices"
	"strings"
	"time"
)

type RiskStatus string

const (
	RiskOK        RiskStatus = "OK"
	RiskOnWatch   RiskStatus = "ON_WATCH"
	RiskSuspended RiskStatus = "SUSPENDED"
)

// Provider is a subcontractor company. Tier 1 is the best rated.
type Provider struct {
	ID             string     `yaml:"id"`
	Name           string     `yaml:"name"`
	CountryCode    string     `yaml:"country_code"`
	Tier           int        `yaml:"tier"`
	RiskStatus     RiskStatus `yaml:"risk_status"`
	Certifications []string   `yaml:"certifications,omitempty"`
	WorkTeams      []WorkTeam `yaml:"work_teams,omitempty"`
	CreatedAt      time.Time  `yaml:"created_at"`
	UpdatedAt      time.Time  `yaml:"updated_at"`
}

type WorkTeam struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Certifications []string `yaml:"certifications,omitempty"`
	Available      bool     `yaml:"available"`
}

// HasCertification reports whether the provider itself or any of its teams
// holds cert.
func (p *Provider) HasCertification(cert string) bool {
	if slices.Contains(p.Certifications, cert) {
		return true
	}
	return slices.ContainsFunc(p.WorkTeams, func(t WorkTeam) bool {
		return slices.Contains(t.Certifications, cert)
	})
}

// EligibleTeams returns the teams that, together with the provider-level
// certifications, cover every required certification. Sorted by id.
func (p *Provider) EligibleTeams(required []string) []WorkTeam {
	var teams []WorkTeam
	for _, t := range p.WorkTeams {
		covered := true
		for _, c := range required {
			if !slices.Contains(t.Certifications, c) && !slices.Contains(p.Certifications, c) {
				covered = false
				break
			}
		}
		if covered {
			teams = append(teams, t)
		}
	}
	slices.SortFunc(teams, func(a, b WorkTeam) int { return strings.Compare(a.ID, b.ID) })
	return teams
}
