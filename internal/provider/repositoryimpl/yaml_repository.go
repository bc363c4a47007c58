package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/provider"
	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/storage"
)

const providersPrefix = "providers"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", providersPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*provider.Provider, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("provider", err)
	}
	var p provider.Provider
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal provider: %w", err))
	}
	return &p, nil
}

func (r *YAMLRepository) ListByCountry(ctx context.Context, countryCode string) ([]*provider.Provider, error) {
	paths, err := r.storage.List(ctx, providersPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("providers", err)
	}
	sort.Strings(paths)

	var providers []*provider.Provider
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var prov provider.Provider
		if err := yaml.Unmarshal(data, &prov); err != nil {
			continue
		}
		if !strings.EqualFold(prov.CountryCode, countryCode) {
			continue
		}
		providers = append(providers, &prov)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
	return providers, nil
}

func (r *YAMLRepository) Put(ctx context.Context, p *provider.Provider) error {
	if p.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "provider id is required", nil)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal provider: %w", err))
	}
	if err := r.storage.Write(ctx, path(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("provider", err)
	}
	return nil
}
