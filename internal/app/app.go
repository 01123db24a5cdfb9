package app

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"stripe-fire-sync/internal/billing"
	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/db"
	"stripe-fire-sync/internal/metrics"
	"stripe-fire-sync/internal/reconcile"
	"stripe-fire-sync/internal/repository/document"
	"stripe-fire-sync/internal/repository/lock"
	"stripe-fire-sync/internal/repository/run"
	"stripe-fire-sync/internal/service/syncer"
)

// Syncer is a sync service wired against Postgres and Stripe, together with
// the resources it holds.
type Syncer struct {
	Service *syncer.Service
	Pool    *pgxpool.Pool
	Metrics *metrics.Sync

	gateway *billing.StripeGateway
}

// NewSyncer validates cfg, connects to the catalog store and builds the
// service. Collectors are registered on registerer.
func NewSyncer(ctx context.Context, cfg config.Config, logger *log.Logger, registerer prometheus.Registerer) (*Syncer, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	gateway := billing.NewStripeGateway(cfg.StripeSecretKey, billing.StripeOptions{
		APIURL:            cfg.StripeAPIURL,
		MaxNetworkRetries: cfg.StripeMaxNetworkRetries,
	})
	m := metrics.NewSync(registerer)
	engine := reconcile.NewEngine(billing.NewThrottled(gateway, cfg.CallDelay), reconcile.Options{
		Currency:         cfg.Currency,
		PageSize:         cfg.PageSize,
		LegacyCollection: cfg.LegacyCollection,
		Logger:           logger,
		Metrics:          m,
	})

	svc := syncer.New(document.NewPostgres(pool, logger), engine, syncer.Deps{
		Locker:  lock.NewPostgres(pool, logger),
		Runs:    run.NewPostgres(pool, logger),
		Metrics: m,
		Logger:  logger,
	})

	return &Syncer{Service: svc, Pool: pool, Metrics: m, gateway: gateway}, nil
}

// Close releases the provider client and the database pool.
func (s *Syncer) Close() {
	s.gateway.Close()
	s.Pool.Close()
}
