package provider

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Provider, error)
	// ListByCountry returns the candidate pool for a country, sorted by id.
	ListByCountry(ctx context.Context, countryCode string) ([]*Provider, error)
	Put(ctx context.Context, p *Provider) error
}
