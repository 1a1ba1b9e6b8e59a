// Package dynamicrouting is the HTTP client for the external statistical routing services.
package dynamicrouting

// LabelWithScore is a connector label ranked by a scoring service.
type LabelWithScore struct {
	Label        string  `json:"label"`
	Score        float64 `json:"score"`
	CurrentCount uint64  `json:"current_count,omitempty"`
}

// LabelWithStatus reports the outcome of one attempt against a label.
type LabelWithStatus struct {
	Label  string `json:"label"`
	Status bool   `json:"status"`
}

// SuccessRateConfig tunes the success-rate window.
type SuccessRateConfig struct {
	MinAggregatesSize  uint32  `json:"min_aggregates_size,omitempty"`
	DefaultSuccessRate float64 `json:"default_success_rate,omitempty"`
	MaxAggregatesSize  uint32  `json:"max_aggregates_size,omitempty"`
}

type CalculateSuccessRateRequest struct {
	ID     string             `json:"id"`
	Params string             `json:"params"`
	Labels []string           `json:"labels"`
	Config *SuccessRateConfig `json:"config,omitempty"`
}

// Success-rate routing approaches reported by the service.
const (
	ApproachExploitation = "exploitation"
	ApproachExploration  = "exploration"
)

type CalculateSuccessRateResponse struct {
	LabelsWithScore []LabelWithScore `json:"labels_with_score"`
	RoutingApproach string           `json:"routing_approach,omitempty"`
}

type UpdateSuccessRateWindowRequest struct {
	ID               string             `json:"id"`
	Params           string             `json:"params"`
	LabelsWithStatus []LabelWithStatus  `json:"labels_with_status"`
	Config           *SuccessRateConfig `json:"config,omitempty"`
}

// EliminationConfig sizes the elimination buckets.
type EliminationConfig struct {
	BucketSize         uint64 `json:"bucket_size,omitempty"`
	BucketLeakInterval uint64 `json:"bucket_leak_interval_in_secs,omitempty"`
}

type EliminationRequest struct {
	ID     string             `json:"id"`
	Params string             `json:"params"`
	Labels []string           `json:"labels"`
	Config *EliminationConfig `json:"config,omitempty"`
}

// EliminationInformation tells whether a label is currently eliminated.
type EliminationInformation struct {
	IsEliminated bool     `json:"is_eliminated"`
	BucketName   []string `json:"bucket_name,omitempty"`
}

type LabelEliminationStatus struct {
	Label       string `json:"label"`
	Elimination struct {
		Entity *EliminationInformation `json:"entity,omitempty"`
		Global *EliminationInformation `json:"global,omitempty"`
	} `json:"elimination_information"`
}

// Eliminated reports whether either the entity or the global bucket eliminated the label.
func (s LabelEliminationStatus) Eliminated() bool {
	return (s.Elimination.Entity != nil && s.Elimination.Entity.IsEliminated) ||
		(s.Elimination.Global != nil && s.Elimination.Global.IsEliminated)
}

type EliminationResponse struct {
	LabelsWithStatus []LabelEliminationStatus `json:"labels_with_status"`
}

type UpdateEliminationBucketRequest struct {
	ID               string             `json:"id"`
	Params           string             `json:"params"`
	LabelsWithStatus []LabelWithStatus  `json:"labels_with_status"`
	Config           *EliminationConfig `json:"config,omitempty"`
}

type ContractScoreRequest struct {
	ID     string   `json:"id"`
	Params string   `json:"params"`
	Labels []string `json:"labels"`
}

type ContractScoreResponse struct {
	LabelsWithScore []LabelWithScore `json:"labels_with_score"`
}

// ContractLabelInfo is the contract target and progress for one label.
type ContractLabelInfo struct {
	Label        string `json:"label"`
	TargetCount  uint64 `json:"target_count"`
	TargetTime   uint64 `json:"target_time"`
	CurrentCount uint64 `json:"current_count"`
}

type UpdateContractsRequest struct {
	ID                string              `json:"id"`
	Params            string              `json:"params"`
	LabelsInformation []ContractLabelInfo `json:"labels_information"`
}

// PaymentInfo describes the payment to the decision service. Amount is in major units.
type PaymentInfo struct {
	PaymentID         string `json:"paymentId"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"paymentType,omitempty"`
	PaymentMethod     string `json:"paymentMethod,omitempty"`
	PaymentMethodType string `json:"paymentMethodType,omitempty"`
	CardIsin          string `json:"cardIsin,omitempty"`
}

// RankingSuccessRate is the only ranking algorithm requested from the decision service.
const RankingSuccessRate = "SR_BASED_ROUTING"

type DecideGatewayRequest struct {
	MerchantID          string      `json:"merchantId"`
	PaymentInfo         PaymentInfo `json:"paymentInfo"`
	EligibleGatewayList []string    `json:"eligibleGatewayList"`
	RankingAlgorithm    string      `json:"rankingAlgorithm"`
	EliminationEnabled  bool        `json:"eliminationEnabled"`
}

type DecideGatewayResponse struct {
	DecidedGateway     string             `json:"decided_gateway"`
	GatewayPriorityMap map[string]float64 `json:"gateway_priority_map,omitempty"`
	RoutingApproach    string             `json:"routing_approach,omitempty"`
}

// Gateway score statuses.
const (
	StatusCharged = "CHARGED"
	StatusFailure = "FAILURE"
)

type UpdateGatewayScoreRequest struct {
	MerchantID string `json:"merchantId"`
	Gateway    string `json:"gateway"`
	Status     string `json:"status"`
	PaymentID  string `json:"paymentId"`
}
