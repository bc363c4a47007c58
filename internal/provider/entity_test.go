package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProvider_HasCertification(t *testing.T) {
	p := &Provider{
		Certifications: []string{"gas"},
		WorkTeams: []WorkTeam{
			{ID: "t1", Certifications: []string{"electric"}},
		},
	}
	assert.True(t, p.HasCertification("gas"))
	assert.True(t, p.HasCertification("electric"))
	assert.False(t, p.HasCertification("solar"))
}

func TestProvider_EligibleTeams(t *testing.T) {
	p := &Provider{
		Certifications: []string{"gas"},
		WorkTeams: []WorkTeam{
			{ID: "t3", Certifications: []string{"electric"}, Available: true},
			{ID: "t1", Certifications: []string{"electric", "solar"}},
			{ID: "t2", Certifications: []string{"solar"}},
		},
	}

	teams := p.EligibleTeams([]string{"gas", "electric"})
	if assert.Len(t, teams, 2) {
		assert.Equal(t, "t1", teams[0].ID)
		assert.Equal(t, "t3", teams[1].ID)
	}

	assert.Len(t, p.EligibleTeams(nil), 3)
	assert.Empty(t, p.EligibleTeams([]string{"roofing"}))
}
