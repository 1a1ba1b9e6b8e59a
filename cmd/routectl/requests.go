package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/internal/app/router"
	"github.com/coachpo/payroute/internal/domain/routing"
)

type attemptDoc struct {
	AttemptID          string                     `json:"attempt_id,omitempty"`
	Amount             int64                      `json:"amount,omitempty"`
	Currency           routing.Currency           `json:"currency,omitempty"`
	CaptureMethod      routing.CaptureMethod      `json:"capture_method,omitempty"`
	AuthenticationType routing.AuthenticationType `json:"authentication_type,omitempty"`
	PaymentMethod      routing.PaymentMethod      `json:"payment_method,omitempty"`
	PaymentMethodType  routing.PaymentMethodType  `json:"payment_method_type,omitempty"`
	CardNetwork        routing.CardNetwork        `json:"card_network,omitempty"`
	CardBin            string                     `json:"card_bin,omitempty"`
	MandateType        routing.MandateType        `json:"mandate_type,omitempty"`
	PaymentType        routing.PaymentType        `json:"payment_type,omitempty"`
}

type intentDoc struct {
	Amount             int64                      `json:"amount"`
	Currency           routing.Currency           `json:"currency"`
	CaptureMethod      routing.CaptureMethod      `json:"capture_method,omitempty"`
	AuthenticationType routing.AuthenticationType `json:"authentication_type,omitempty"`
	BillingCountry     routing.Country            `json:"billing_country,omitempty"`
	BusinessCountry    routing.Country            `json:"business_country,omitempty"`
	BusinessLabel      string                     `json:"business_label,omitempty"`
	SetupFutureUsage   routing.SetupFutureUsage   `json:"setup_future_usage,omitempty"`
	Metadata           map[string]string          `json:"metadata,omitempty"`
	IssuerName         string                     `json:"issuer_name,omitempty"`
	IssuerCountry      routing.Country            `json:"issuer_country,omitempty"`
}

type payoutDoc struct {
	PayoutID         string                    `json:"payout_id"`
	Amount           int64                     `json:"amount"`
	Currency         routing.Currency          `json:"currency"`
	PayoutMethod     routing.PaymentMethod     `json:"payout_method,omitempty"`
	PayoutMethodType routing.PaymentMethodType `json:"payout_method_type,omitempty"`
	BillingCountry   routing.Country           `json:"billing_country,omitempty"`
	BusinessCountry  routing.Country           `json:"business_country,omitempty"`
	BusinessLabel    string                    `json:"business_label,omitempty"`
	Metadata         map[string]string         `json:"metadata,omitempty"`
}

type transactionDoc struct {
	Type               routing.TransactionType `json:"type,omitempty"`
	PaymentID          string                  `json:"payment_id,omitempty"`
	Attempt            attemptDoc              `json:"attempt"`
	Intent             intentDoc               `json:"intent"`
	Payout             *payoutDoc              `json:"payout,omitempty"`
	StraightThrough    json.RawMessage         `json:"straight_through,omitempty"`
	EligibleConnectors []string                `json:"eligible_connectors,omitempty"`
}

// routeRequest is the JSON document accepted by the route command.
type routeRequest struct {
	MerchantID  string         `json:"merchant_id"`
	ProfileID   string         `json:"profile_id"`
	Transaction transactionDoc `json:"transaction"`
}

type sessionCandidatesDoc struct {
	PaymentMethod routing.PaymentMethod             `json:"payment_method"`
	Connectors    []routing.RoutableConnectorChoice `json:"connectors"`
}

// sessionRequest is the JSON document accepted by the session command.
type sessionRequest struct {
	MerchantID  string                                             `json:"merchant_id"`
	ProfileID   string                                             `json:"profile_id"`
	Transaction transactionDoc                                     `json:"transaction"`
	Candidates  map[routing.PaymentMethodType]sessionCandidatesDoc `json:"candidates"`
}

type decisionDoc struct {
	Approach   routing.RoutingApproach `json:"approach"`
	Connectors []string                `json:"connectors"`
}

func (d transactionDoc) toTransaction() (routing.Transaction, error) {
	txn := routing.Transaction{
		Type:      d.Type,
		PaymentID: strings.TrimSpace(d.PaymentID),
		Attempt: routing.AttemptDetails{
			AttemptID:          d.Attempt.AttemptID,
			Amount:             d.Attempt.Amount,
			Currency:           d.Attempt.Currency,
			CaptureMethod:      d.Attempt.CaptureMethod,
			AuthenticationType: d.Attempt.AuthenticationType,
			PaymentMethod:      d.Attempt.PaymentMethod,
			PaymentMethodType:  d.Attempt.PaymentMethodType,
			CardNetwork:        d.Attempt.CardNetwork,
			CardBin:            d.Attempt.CardBin,
			MandateType:        d.Attempt.MandateType,
			PaymentType:        d.Attempt.PaymentType,
		},
		Intent: routing.IntentDetails{
			Amount:             d.Intent.Amount,
			Currency:           d.Intent.Currency,
			CaptureMethod:      d.Intent.CaptureMethod,
			AuthenticationType: d.Intent.AuthenticationType,
			BillingCountry:     d.Intent.BillingCountry,
			BusinessCountry:    d.Intent.BusinessCountry,
			BusinessLabel:      d.Intent.BusinessLabel,
			SetupFutureUsage:   d.Intent.SetupFutureUsage,
			Metadata:           d.Intent.Metadata,
			IssuerName:         d.Intent.IssuerName,
			IssuerCountry:      d.Intent.IssuerCountry,
		},
	}
	if p := d.Payout; p != nil {
		txn.Payout = &routing.PayoutDetails{
			PayoutID:         p.PayoutID,
			Amount:           p.Amount,
			Currency:         p.Currency,
			PayoutMethod:     p.PayoutMethod,
			PayoutMethodType: p.PayoutMethodType,
			BillingCountry:   p.BillingCountry,
			BusinessCountry:  p.BusinessCountry,
			BusinessLabel:    p.BusinessLabel,
			Metadata:         p.Metadata,
		}
	}
	if len(d.StraightThrough) > 0 {
		algo, err := routing.ParseAlgorithm(d.StraightThrough)
		if err != nil {
			return routing.Transaction{}, fmt.Errorf("straight_through: %w", err)
		}
		txn.StraightThrough = &algo
	}
	for _, name := range d.EligibleConnectors {
		connector := routing.NormalizeConnector(name)
		if !connector.Valid() {
			return routing.Transaction{}, fmt.Errorf("eligible_connectors: unknown connector %q", name)
		}
		txn.EligibleConnectors = append(txn.EligibleConnectors, connector)
	}
	return txn, nil
}

func (r routeRequest) toRequest() (router.Request, error) {
	txn, err := r.Transaction.toTransaction()
	if err != nil {
		return router.Request{}, err
	}
	return router.Request{MerchantID: r.MerchantID, ProfileID: r.ProfileID, Transaction: txn}, nil
}

func (r sessionRequest) toRequest() (router.SessionRequest, error) {
	txn, err := r.Transaction.toTransaction()
	if err != nil {
		return router.SessionRequest{}, err
	}
	candidates := make(map[routing.PaymentMethodType]router.SessionCandidates, len(r.Candidates))
	for pmt, c := range r.Candidates {
		candidates[pmt] = router.SessionCandidates{PaymentMethod: c.PaymentMethod, Connectors: c.Connectors}
	}
	return router.SessionRequest{
		MerchantID:  r.MerchantID,
		ProfileID:   r.ProfileID,
		Transaction: txn,
		Candidates:  candidates,
	}, nil
}

// decodeFile reads a JSON document from path, or from stdin when path is "-".
func decodeFile(path string, stdin io.Reader, out any) error {
	var reader io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path) // #nosec G304 -- path is operator controlled.
		if err != nil {
			return fmt.Errorf("open request: %w", err)
		}
		defer file.Close()
		reader = file
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
