// Package kgraph implements the constraint graph used to decide whether a connector choice is
// structurally compatible with a transaction.
package kgraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DirKey names a dimension of the routing context.
type DirKey string

const (
	KeyConnector          DirKey = "connector"
	KeyPaymentMethod      DirKey = "payment_method"
	KeyPaymentMethodType  DirKey = "payment_method_type"
	KeyCardNetwork        DirKey = "card_network"
	KeyCurrency           DirKey = "currency"
	KeyBillingCountry     DirKey = "billing_country"
	KeyCaptureMethod      DirKey = "capture_method"
	KeyAuthenticationType DirKey = "authentication_type"
	KeySetupFutureUsage   DirKey = "setup_future_usage"
	KeyPaymentType        DirKey = "payment_type"
)

// DirValue is one concrete value of a key, e.g. currency=USD.
type DirValue struct {
	Key   DirKey
	Value string
}

func (v DirValue) String() string { return string(v.Key) + "=" + v.Value }

// NodeID indexes a node inside one graph.
type NodeID int

// NodeKind distinguishes value nodes from aggregators.
type NodeKind uint8

const (
	// NodeValue holds when its value is present in the context.
	NodeValue NodeKind = iota + 1
	// NodeAll holds when every incoming edge passes.
	NodeAll
	// NodeAny holds when at least one incoming edge passes.
	NodeAny
	// NodeIn holds when the context value for its key is one of its values.
	NodeIn
	// NodeAmountRange holds when the context amount falls inside its bounds.
	NodeAmountRange
)

func (k NodeKind) String() string {
	switch k {
	case NodeValue:
		return "value"
	case NodeAll:
		return "all"
	case NodeAny:
		return "any"
	case NodeIn:
		return "in"
	case NodeAmountRange:
		return "amount_range"
	default:
		return "unknown"
	}
}

// Relation is the polarity of an edge.
type Relation uint8

const (
	// Positive means the target requires the source.
	Positive Relation = iota + 1
	// Negative means the target conflicts with the source.
	Negative
)

// Strength controls how strictly an edge is enforced.
type Strength uint8

const (
	// Weak edges are advisory and always pass.
	Weak Strength = iota + 1
	// Normal edges treat an absent key as "don't care".
	Normal
	// Strong edges need the source positively established by the context.
	Strong
)

// Node is a vertex of the graph. Only the fields relevant to Kind are populated.
type Node struct {
	ID       NodeID
	Kind     NodeKind
	Value    DirValue
	InKey    DirKey
	InValues map[string]struct{}
	Min      *int64
	Max      *int64
	Info     string
}

// Edge connects a source to the node that depends on it.
type Edge struct {
	From     NodeID
	To       NodeID
	Relation Relation
	Strength Strength
}

// Graph is immutable once built and safe for concurrent queries.
type Graph struct {
	nodes    []Node
	incoming [][]Edge
	values   map[DirValue]NodeID
	edges    int
}

// Node returns the node with the id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Lookup returns the value node for the value.
func (g *Graph) Lookup(value DirValue) (NodeID, bool) {
	id, ok := g.values[value]
	return id, ok
}

// Incoming returns the edges pointing at the node.
func (g *Graph) Incoming(id NodeID) []Edge {
	if id < 0 || int(id) >= len(g.incoming) {
		return nil
	}
	return g.incoming[id]
}

// Values lists the values present in the graph for the key, sorted.
func (g *Graph) Values(key DirKey) []string {
	var out []string
	for v := range g.values {
		if v.Key == key {
			out = append(out, v.Value)
		}
	}
	sort.Strings(out)
	return out
}

// Stats summarises the graph size.
type Stats struct {
	Nodes       int
	Edges       int
	ValueNodes  int
	Aggregators int
}

// Stats reports node and edge counts.
func (g *Graph) Stats() Stats {
	stats := Stats{Nodes: len(g.nodes), Edges: g.edges, ValueNodes: len(g.values)}
	stats.Aggregators = stats.Nodes - stats.ValueNodes
	return stats
}

// Builder assembles a graph. It is not safe for concurrent use.
type Builder struct {
	nodes    []Node
	incoming [][]Edge
	values   map[DirValue]NodeID
	edges    map[[2]NodeID]struct{}
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		values: make(map[DirValue]NodeID),
		edges:  make(map[[2]NodeID]struct{}),
	}
}

func (b *Builder) add(node Node) NodeID {
	node.ID = NodeID(len(b.nodes))
	b.nodes = append(b.nodes, node)
	b.incoming = append(b.incoming, nil)
	return node.ID
}

// ValueNode returns the node for the value, creating it on first use.
func (b *Builder) ValueNode(value DirValue) NodeID {
	if id, ok := b.values[value]; ok {
		return id
	}
	id := b.add(Node{Kind: NodeValue, Value: value})
	b.values[value] = id
	return id
}

// AllNode adds a conjunction aggregator.
func (b *Builder) AllNode(info string) NodeID {
	return b.add(Node{Kind: NodeAll, Info: info})
}

// AnyNode adds a disjunction aggregator.
func (b *Builder) AnyNode(info string) NodeID {
	return b.add(Node{Kind: NodeAny, Info: info})
}

// InNode adds a membership aggregator over one key.
func (b *Builder) InNode(key DirKey, values []string, info string) NodeID {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return b.add(Node{Kind: NodeIn, InKey: key, InValues: set, Info: info})
}

// AmountRangeNode adds a node bounding the transaction amount. Nil bounds are open.
func (b *Builder) AmountRangeNode(minAmount, maxAmount *int64, info string) NodeID {
	return b.add(Node{Kind: NodeAmountRange, Min: copyBound(minAmount), Max: copyBound(maxAmount), Info: info})
}

func copyBound(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Edge links from to to. Duplicate edges between the same pair are ignored.
func (b *Builder) Edge(from, to NodeID, relation Relation, strength Strength) error {
	if from < 0 || int(from) >= len(b.nodes) {
		return fmt.Errorf("kgraph: edge source %d out of range", from)
	}
	if to < 0 || int(to) >= len(b.nodes) {
		return fmt.Errorf("kgraph: edge target %d out of range", to)
	}
	if relation != Positive && relation != Negative {
		return fmt.Errorf("kgraph: invalid relation %d", relation)
	}
	if strength < Weak || strength > Strong {
		return fmt.Errorf("kgraph: invalid strength %d", strength)
	}
	pair := [2]NodeID{from, to}
	if _, ok := b.edges[pair]; ok {
		return nil
	}
	b.edges[pair] = struct{}{}
	b.incoming[to] = append(b.incoming[to], Edge{From: from, To: to, Relation: relation, Strength: strength})
	return nil
}

// Build freezes the builder into a graph. The builder must not be reused.
func (b *Builder) Build() *Graph {
	values := make(map[DirValue]NodeID, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return &Graph{nodes: b.nodes, incoming: b.incoming, values: values, edges: len(b.edges)}
}

func describe(n Node) string {
	switch n.Kind {
	case NodeValue:
		return n.Value.String()
	case NodeIn:
		keys := make([]string, 0, len(n.InValues))
		for v := range n.InValues {
			keys = append(keys, v)
		}
		sort.Strings(keys)
		return string(n.InKey) + " in [" + strings.Join(keys, ",") + "]"
	default:
		label := n.Kind.String() + "#" + strconv.Itoa(int(n.ID))
		if n.Info != "" {
			label += "(" + n.Info + ")"
		}
		return label
	}
}
