package routing

// RoutingApproach tags how the final connector ordering was produced.
type RoutingApproach string

const (
	ApproachNone                    RoutingApproach = "none"
	ApproachStraightThrough         RoutingApproach = "straight_through"
	ApproachRuleBased               RoutingApproach = "rule_based"
	ApproachVolumeBased             RoutingApproach = "volume_based"
	ApproachSuccessRateExploitation RoutingApproach = "success_rate_exploitation"
	ApproachSuccessRateExploration  RoutingApproach = "success_rate_exploration"
	ApproachElimination             RoutingApproach = "elimination"
	ApproachContractBased           RoutingApproach = "contract_based"
	ApproachDefaultFallback         RoutingApproach = "default_fallback"
)

// ApproachForAlgorithm maps the algorithm variant that fired to its approach tag.
func ApproachForAlgorithm(kind AlgorithmKind) RoutingApproach {
	switch kind {
	case AlgorithmVolumeSplit:
		return ApproachVolumeBased
	case AlgorithmAdvanced:
		return ApproachRuleBased
	default:
		return ApproachNone
	}
}

// RoutingEngine names the decision engine that produced a routing event.
type RoutingEngine string

const (
	EngineStatic            RoutingEngine = "static"
	EngineIntelligentRouter RoutingEngine = "intelligent_router"
	EngineOpenRouter        RoutingEngine = "open_router"
)

// Decision is the routing outcome handed to the payment processing pipeline.
type Decision struct {
	Connectors []RoutableConnectorChoice
	Approach   RoutingApproach
}

// Primary returns the first connector of the decision, if any.
func (d Decision) Primary() (RoutableConnectorChoice, bool) {
	if len(d.Connectors) == 0 {
		return RoutableConnectorChoice{}, false
	}
	return d.Connectors[0], true
}
