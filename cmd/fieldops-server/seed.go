package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldops/internal/provider"
	providerrepo "github.com/fieldops/fieldops/internal/provider/repositoryimpl"
	"github.com/fieldops/fieldops/internal/serviceorder"
	serviceorderrepo "github.com/fieldops/fieldops/internal/serviceorder/repositoryimpl"
	"github.com/fieldops/fieldops/pkg/storage"
)

// fixture is the seed file layout:
//
//	service_orders:
//	  - id: so-1
//	    country_code: FR
//	    scheduled_date: 2026-11-02T09:00:00Z
//	    status: CREATED
//	providers:
//	  - id: p-1
//	    country_code: FR
//	    tier: 1
//	    risk_status: OK
type fixture struct {
	ServiceOrders []*serviceorder.ServiceOrder `yaml:"service_orders"`
	Providers     []*provider.Provider         `yaml:"providers"`
}

func runSeed(ctx context.Context, store storage.Storage, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	orders, providers, err := seed(ctx, f,
		serviceorderrepo.NewYAMLRepository(store),
		providerrepo.NewYAMLRepository(store),
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	slog.Info("seed loaded", "file", file, "service_orders", orders, "providers", providers)
	return nil
}

func seed(ctx context.Context, r io.Reader, orders serviceorder.Repository, providers provider.Repository, now time.Time) (int, int, error) {
	var fx fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return 0, 0, fmt.Errorf("decode fixture: %w", err)
	}

	for _, o := range fx.ServiceOrders {
		if o.ID == "" {
			return 0, 0, errors.New("service order without id")
		}
		if o.Status == "" {
			o.Status = serviceorder.StatusCreated
		}
		stamp(&o.CreatedAt, &o.UpdatedAt, now)
		if err := orders.Put(ctx, o); err != nil {
			return 0, 0, fmt.Errorf("put service order %s: %w", o.ID, err)
		}
	}
	for _, p := range fx.Providers {
		if p.ID == "" {
			return 0, 0, errors.New("provider without id")
		}
		if p.RiskStatus == "" {
			p.RiskStatus = provider.RiskOK
		}
		stamp(&p.CreatedAt, &p.UpdatedAt, now)
		if err := providers.Put(ctx, p); err != nil {
			return 0, 0, fmt.Errorf("put provider %s: %w", p.ID, err)
		}
	}
	return len(fx.ServiceOrders), len(fx.Providers), nil
}

func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
