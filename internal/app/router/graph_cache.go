package router

import (
	"context"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

// CachedGraph is the constraint graph of one (merchant, profile, transaction type) together
// with the accounts it was built from.
type CachedGraph struct {
	Graph            *kgraph.Graph
	activeByID       map[string]routing.Connector
	activeConnectors map[routing.Connector][]routing.RoutableConnectorChoice
}

func newCachedGraph(graph *kgraph.Graph, accounts []routingstore.MerchantConnectorAccount, profileID string, txnType routing.TransactionType) *CachedGraph {
	entry := &CachedGraph{
		Graph:            graph,
		activeByID:       make(map[string]routing.Connector),
		activeConnectors: make(map[routing.Connector][]routing.RoutableConnectorChoice),
	}
	for _, account := range accounts {
		if account.Disabled || !account.Serves(profileID, txnType) {
			continue
		}
		entry.activeByID[account.ID] = account.Connector
		entry.activeConnectors[account.Connector] = append(entry.activeConnectors[account.Connector], account.Choice())
	}
	return entry
}

// IsActive reports whether the choice addresses an enabled account. A choice without account
// reference is active when any enabled account exists for its connector.
func (g *CachedGraph) IsActive(choice routing.RoutableConnectorChoice) bool {
	if choice.MerchantConnectorID == "" {
		return len(g.activeConnectors[choice.Connector]) > 0
	}
	connector, ok := g.activeByID[choice.MerchantConnectorID]
	return ok && connector == choice.Connector
}

// Accounts returns the account-qualified choices a candidate may resolve to.
func (g *CachedGraph) Accounts(choice routing.RoutableConnectorChoice) []routing.RoutableConnectorChoice {
	if choice.MerchantConnectorID != "" {
		return []routing.RoutableConnectorChoice{choice}
	}
	return g.activeConnectors[choice.Connector]
}

// ActiveCount reports the number of enabled accounts.
func (g *CachedGraph) ActiveCount() int { return len(g.activeByID) }

// GraphCache builds constraint graphs from the merchant's connector accounts.
type GraphCache struct {
	cache    *SnapshotCache[CachedGraph]
	accounts routingstore.AccountStore
	filters  kgraph.Filters
}

// NewGraphCache constructs a cache reading accounts from the store.
func NewGraphCache(accounts routingstore.AccountStore, filters kgraph.Filters) *GraphCache {
	return &GraphCache{
		cache:    NewSnapshotCache[CachedGraph]("graph"),
		accounts: accounts,
		filters:  filters,
	}
}

// Get returns the graph for the merchant, profile and transaction type.
func (c *GraphCache) Get(ctx context.Context, merchantID, profileID string, txnType routing.TransactionType) (*CachedGraph, error) {
	key := routing.CacheKey(merchantID, profileID, txnType)
	return c.cache.GetOrBuild(ctx, key, nil, func(ctx context.Context) (*CachedGraph, error) {
		accounts, err := c.accounts.ListActiveAccounts(ctx, merchantID)
		if err != nil {
			return nil, refreshError(merchantID, profileID, err)
		}
		graph, err := kgraph.Build(accounts, c.filters, kgraph.BuildOptions{ProfileID: profileID, TransactionType: txnType})
		if err != nil {
			return nil, refreshError(merchantID, profileID, err)
		}
		return newCachedGraph(graph, accounts, profileID, txnType), nil
	})
}

// Invalidate drops the graph for the key.
func (c *GraphCache) Invalidate(key string) { c.cache.Invalidate(key) }

// Len reports the number of cached graphs.
func (c *GraphCache) Len() int { return c.cache.Len() }

func refreshError(merchantID, profileID string, cause error) error {
	return errs.New(component, errs.CodeUnavailable,
		errs.WithCanonicalCode(errs.CanonicalKgraphRefresh),
		errs.WithMessage("build constraint graph"),
		errs.WithField("merchant_id", merchantID),
		errs.WithField("profile_id", profileID),
		errs.WithCause(cause))
}
