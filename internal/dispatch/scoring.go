package dispatch

import (
	"cmp"
	"slices"

	"github.com/fieldops/fieldops/internal/assignment"
	"github.com/fieldops/fieldops/internal/provider"
)

const (
	tierWeight        = 100
	worstScoredTier   = 4
	riskOKScore       = 50
	riskOnWatchScore  = 0
	availabilityScore = 30
	suspendedReason   = "suspended"
	missingCertPrefix = "missing certification: "
	unknownRiskReason = "unknown risk status"
)

// Evaluate splits the pool into exclusions and ranked candidates. The
// ranking is by score descending, then provider id ascending.
func Evaluate(pool []*provider.Provider, required []string) ([]assignment.Exclusion, []assignment.Candidate) {
	var (
		excluded []assignment.Exclusion
		ranked   []assignment.Candidate
	)
	for _, p := range pool {
		if reason := exclusionReason(p, required); reason != "" {
			excluded = append(excluded, assignment.Exclusion{ProviderID: p.ID, Reason: reason})
			continue
		}
		ranked = append(ranked, Score(p, required))
	}
	slices.SortFunc(ranked, func(a, b assignment.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ProviderID, b.ProviderID)
	})
	return excluded, ranked
}

func exclusionReason(p *provider.Provider, required []string) string {
	switch p.RiskStatus {
	case provider.RiskSuspended:
		return suspendedReason
	case provider.RiskOK, provider.RiskOnWatch:
	default:
		return unknownRiskReason
	}
	for _, c := range required {
		if !p.HasCertification(c) {
			return missingCertPrefix + c
		}
	}
	return ""
}

// Score rates a qualified provider. The work team is the first available
// eligible team, if any.
func Score(p *provider.Provider, required []string) assignment.Candidate {
	tier := max(p.Tier, 1)
	score := max(0, worstScoredTier-tier) * tierWeight
	if p.RiskStatus == provider.RiskOK {
		score += riskOKScore
	} else {
		score += riskOnWatchScore
	}

	c := assignment.Candidate{
		ProviderID: p.ID,
		Tier:       p.Tier,
		RiskStatus: string(p.RiskStatus),
	}
	for _, t := range p.EligibleTeams(required) {
		if t.Available {
			c.WorkTeamID = t.ID
			c.Available = true
			score += availabilityScore
			break
		}
	}
	c.Score = score
	return c
}
