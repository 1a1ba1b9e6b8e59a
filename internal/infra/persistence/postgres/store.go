package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/payroute/internal/infra/persistence"
)

// Store exposes PostgreSQL-backed repositories.
type Store struct {
	*persistence.Store
	Routing *RoutingStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Store:   persistence.NewStore(pool),
		Routing: NewRoutingStore(pool),
	}
}
