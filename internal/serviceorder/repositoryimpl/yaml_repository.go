package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/serviceorder"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

const serviceOrdersPrefix = "service-orders"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", serviceOrdersPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*serviceorder.ServiceOrder, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("service order", err)
	}
	var o serviceorder.ServiceOrder
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal service order: %w", err))
	}
	return &o, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*serviceorder.ServiceOrder, error) {
	paths, err := r.storage.List(ctx, serviceOrdersPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("service orders", err)
	}
	sort.Strings(paths)

	orders := make([]*serviceorder.ServiceOrder, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var o serviceorder.ServiceOrder
		if err := yaml.Unmarshal(data, &o); err != nil {
			continue
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (r *YAMLRepository) Put(ctx context.Context, o *serviceorder.ServiceOrder) error {
	if o.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "service order id is required", nil)
	}
	data, err := yaml.Marshal(o)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal service order: %w", err))
	}
	if err := r.storage.Write(ctx, path(o.ID), data); err != nil {
		return cerr.WrapStorageWriteError("service order", err)
	}
	return nil
}
