package serviceorder

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*ServiceOrder, error)
	List(ctx context.Context) ([]*ServiceOrder, error)
	// Put creates or replaces an order. Used by fixture seeding.
	Put(ctx context.Context, o *ServiceOrder) error
}
