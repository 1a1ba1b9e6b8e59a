package postgres

import (
	"context"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/payroute/internal/infra/telemetry"
)

type poolGauge struct {
	name        string
	description string
	read        func(*pgxpool.Stat) int64
}

func (g poolGauge) unit() string {
	if strings.HasSuffix(g.name, "_acquires") {
		return "{acquire}"
	}
	return "{connection}"
}

var poolGauges = []poolGauge{
	{"payroute_db_pool_connections_total", "Total connections (idle + acquired + constructing)",
		func(s *pgxpool.Stat) int64 { return int64(s.TotalConns()) }},
	{"payroute_db_pool_connections_idle", "Idle connections ready for checkout",
		func(s *pgxpool.Stat) int64 { return int64(s.IdleConns()) }},
	{"payroute_db_pool_connections_acquired", "Connections held by routing store queries",
		func(s *pgxpool.Stat) int64 { return int64(s.AcquiredConns()) }},
	{"payroute_db_pool_connections_constructing", "Connections currently being constructed",
		func(s *pgxpool.Stat) int64 { return int64(s.ConstructingConns()) }},
	{"payroute_db_pool_empty_acquires", "Acquires that waited because the pool was empty",
		func(s *pgxpool.Stat) int64 { return s.EmptyAcquireCount() }},
}

// ObservePoolMetrics registers observable gauges reporting pgx pool health. Every gauge reads
// the same Stat snapshot per collection cycle.
func ObservePoolMetrics(pool *pgxpool.Pool, poolName string) {
	if pool == nil {
		return
	}
	name := strings.TrimSpace(poolName)
	if name == "" {
		name = "primary"
	}
	attrs := metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("db_pool", name),
	)

	meter := otel.Meter("payroute/postgres")
	gauges := make([]metric.Int64ObservableGauge, 0, len(poolGauges))
	observables := make([]metric.Observable, 0, len(poolGauges))
	for _, g := range poolGauges {
		gauge, err := meter.Int64ObservableGauge(g.name,
			metric.WithDescription(g.description),
			metric.WithUnit(g.unit()),
		)
		if err != nil {
			log.Printf("postgres: pool gauge %s not registered: %v", g.name, err)
			return
		}
		gauges = append(gauges, gauge)
		observables = append(observables, gauge)
	}

	_, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stat := pool.Stat()
		for i, g := range poolGauges {
			observer.ObserveInt64(gauges[i], g.read(stat), attrs)
		}
		return nil
	}, observables...)
	if err != nil {
		log.Printf("postgres: pool metrics callback not registered: pool=%s err=%v", name, err)
	}
}
