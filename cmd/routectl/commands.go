package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachpo/payroute/internal/app/router"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/persistence"
	"github.com/coachpo/payroute/internal/infra/persistence/memory"
	"github.com/coachpo/payroute/internal/infra/persistence/migrations"
	pgstore "github.com/coachpo/payroute/internal/infra/persistence/postgres"
)

const defaultMigrateTimeout = 30 * time.Second

func routeCmd(opts *globalOptions) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "route <request.json|->",
		Short: "Compute the ordered connector list for a payment or payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var doc routeRequest
			if err := decodeFile(args[0], cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			req, err := doc.toRequest()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), opts, fixtures)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.close(); err == nil {
					err = cerr
				}
			}()

			decision, err := rt.engine.Route(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("route: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), decisionDoc{
				Approach:   decision.Approach,
				Connectors: routing.Labels(decision.Connectors),
			})
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "Serve routing configuration from a JSON fixture file instead of PostgreSQL")
	return cmd
}

func sessionCmd(opts *globalOptions) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "session <request.json|->",
		Short: "Compute one connector list per payment method type for session token generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var doc sessionRequest
			if err := decodeFile(args[0], cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			req, err := doc.toRequest()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), opts, fixtures)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.close(); err == nil {
					err = cerr
				}
			}()

			result, err := rt.engine.RouteSession(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("session routing: %w", err)
			}
			out := make(map[string][]string, len(result))
			for pmt, connectors := range result {
				out[string(pmt)] = routing.Labels(connectors)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "Serve routing configuration from a JSON fixture file instead of PostgreSQL")
	return cmd
}

func splitCmd() *cobra.Command {
	var (
		seed   string
		trials int
	)
	cmd := &cobra.Command{
		Use:   "split <connector:mca=weight>...",
		Short: "Run the volume splitter over weighted connectors",
		Long: `Run the volume splitter over weighted connectors.

With --seed the draw is deterministic and the resulting order is printed. With --trials the
splitter runs repeatedly and the share of first picks per connector is printed.`,
		Example: "  routectl split stripe:mca_a=70 adyen:mca_b=30 --seed pay_123",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choices, err := parseSplitArgs(args)
			if err != nil {
				return err
			}
			if trials > 0 {
				shares, err := sampleShares(choices, trials)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), shares)
			}
			var splitOpts []router.SplitOption
			if seed != "" {
				splitOpts = append(splitOpts, router.WithSeed(seed))
			}
			order, err := router.SplitVolume(choices, splitOpts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), routing.Labels(order))
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "Seed the draw, e.g. with a payment id")
	cmd.Flags().IntVar(&trials, "trials", 0, "Report first-pick shares over this many unseeded draws")
	return cmd
}

func parseSplitArgs(args []string) ([]routing.VolumeSplitChoice, error) {
	choices := make([]routing.VolumeSplitChoice, 0, len(args))
	for _, arg := range args {
		label, weight, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("split argument %q: expected connector=weight", arg)
		}
		choice, err := routing.ParseLabel(label)
		if err != nil {
			return nil, err
		}
		split, err := strconv.ParseUint(strings.TrimSpace(weight), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("split argument %q: weight must be 0..255", arg)
		}
		choices = append(choices, routing.VolumeSplitChoice{Split: uint8(split), Connector: choice})
	}
	return choices, nil
}

func sampleShares(choices []routing.VolumeSplitChoice, trials int) (map[string]float64, error) {
	counts := make(map[string]int, len(choices))
	for i := 0; i < trials; i++ {
		order, err := router.SplitVolume(choices)
		if err != nil {
			return nil, err
		}
		counts[order[0].Label()]++
	}
	shares := make(map[string]float64, len(counts))
	for label, n := range counts {
		shares[label] = float64(n) / float64(trials)
	}
	return shares, nil
}

type validationDoc struct {
	OK               bool                  `json:"ok"`
	AlgorithmID      string                `json:"algorithm_id,omitempty"`
	AlgorithmKind    routing.AlgorithmKind `json:"algorithm_kind,omitempty"`
	Referenced       []string              `json:"referenced,omitempty"`
	Inactive         []string              `json:"inactive,omitempty"`
	FallbackInactive []string              `json:"fallback_inactive,omitempty"`
	ActiveAccounts   int                   `json:"active_accounts"`
	GraphNodes       int                   `json:"graph_nodes"`
	GraphEdges       int                   `json:"graph_edges"`
}

func validateCmd(opts *globalOptions) *cobra.Command {
	var (
		fixtures  string
		merchant  string
		profile   string
		txnType   string
		allowFail bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a profile's algorithm and default connectors reference active accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if strings.TrimSpace(merchant) == "" || strings.TrimSpace(profile) == "" {
				return fmt.Errorf("--merchant and --profile are required")
			}
			kind := routing.TransactionType(strings.ToLower(strings.TrimSpace(txnType)))
			if !kind.Valid() {
				return fmt.Errorf("unknown transaction type %q", txnType)
			}
			rt, err := openRuntime(cmd.Context(), opts, fixtures)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.close(); err == nil {
					err = cerr
				}
			}()

			report, err := rt.engine.Validate(cmd.Context(), merchant, profile, kind)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			if err := writeJSON(cmd.OutOrStdout(), validationDoc{
				OK:               report.OK(),
				AlgorithmID:      report.AlgorithmID,
				AlgorithmKind:    report.AlgorithmKind,
				Referenced:       routing.Labels(report.Referenced),
				Inactive:         routing.Labels(report.Inactive),
				FallbackInactive: routing.Labels(report.FallbackInactive),
				ActiveAccounts:   report.ActiveAccounts,
				GraphNodes:       report.GraphNodes,
				GraphEdges:       report.GraphEdges,
			}); err != nil {
				return err
			}
			if !report.OK() && !allowFail {
				return fmt.Errorf("profile %s references inactive connectors", profile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "Serve routing configuration from a JSON fixture file instead of PostgreSQL")
	cmd.Flags().StringVar(&merchant, "merchant", "", "Merchant id")
	cmd.Flags().StringVar(&profile, "profile", "", "Profile id")
	cmd.Flags().StringVar(&txnType, "type", string(routing.TransactionPayment), "Transaction type (payment|payout)")
	cmd.Flags().BoolVar(&allowFail, "report-only", false, "Exit zero even when inactive connectors are found")
	return cmd
}

func migrateCmd(opts *globalOptions) *cobra.Command {
	var (
		dsn     string
		dir     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:       "migrate <up|down> [steps]",
		Short:     "Apply or roll back the routing schema",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts)
			if strings.TrimSpace(dsn) == "" {
				cfg, err := loadConfig(cmd.Context(), opts, logger)
				if err != nil {
					return err
				}
				dsn = cfg.Database.DSN
				if dir == "" {
					dir = cfg.Database.MigrationsPath
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			switch args[0] {
			case "up":
				if len(args) > 1 {
					return fmt.Errorf("up takes no steps argument")
				}
				return migrations.Apply(ctx, dsn, dir, logger)
			case "down":
				steps := 1
				if len(args) > 1 {
					n, err := strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("invalid down steps %q: %w", args[1], err)
					}
					steps = n
				}
				return migrations.Rollback(ctx, dsn, dir, steps, logger)
			default:
				return fmt.Errorf("unknown command %q (expected up or down)", args[0])
			}
		},
	}
	cmd.Flags().StringVar(&dsn, "database", "", "PostgreSQL DSN, defaults to database.dsn from the config")
	cmd.Flags().StringVar(&dir, "path", "", "Directory containing SQL migrations, defaults to the embedded set")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrateTimeout, "Maximum time to wait for database connectivity")
	return cmd
}

// routingWriter is the write side of the PostgreSQL routing store.
type routingWriter interface {
	UpsertProfile(ctx context.Context, profile routingstore.Profile) error
	UpsertAccount(ctx context.Context, account routingstore.MerchantConnectorAccount) error
	SaveAlgorithm(ctx context.Context, record routingstore.AlgorithmRecord) error
	SetDefaultConnectors(ctx context.Context, profileID string, txnType routing.TransactionType, connectors []routing.RoutableConnectorChoice) error
}

func seedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixtures.json>",
		Short: "Load a fixture file into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts)
			cfg, err := loadConfig(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			var doc memory.Fixture
			if err := decodeFile(args[0], cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			source, err := memory.FromFixture(doc)
			if err != nil {
				return err
			}
			pool, err := persistence.Connect(cmd.Context(), cfg.Database.PoolConfig())
			if err != nil {
				return err
			}
			defer pool.Close()

			counts, err := seed(cmd.Context(), pgstore.New(pool).Routing, source.Snapshot())
			if err != nil {
				return err
			}
			logger.Printf("fixtures seeded: profiles=%d accounts=%d algorithms=%d fallbacks=%d",
				counts[0], counts[1], counts[2], counts[3])
			return nil
		},
	}
}

func seed(ctx context.Context, w routingWriter, snap memory.Snapshot) ([4]int, error) {
	var counts [4]int
	for _, p := range snap.Profiles {
		if err := w.UpsertProfile(ctx, p); err != nil {
			return counts, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		counts[0]++
	}
	for _, a := range snap.Accounts {
		if err := w.UpsertAccount(ctx, a); err != nil {
			return counts, fmt.Errorf("account %s: %w", a.ID, err)
		}
		counts[1]++
	}
	for _, a := range snap.Algorithms {
		if err := w.SaveAlgorithm(ctx, a); err != nil {
			return counts, fmt.Errorf("algorithm %s: %w", a.ID, err)
		}
		counts[2]++
	}
	for _, f := range snap.Fallbacks {
		if err := w.SetDefaultConnectors(ctx, f.ProfileID, f.TransactionType, f.Connectors); err != nil {
			return counts, fmt.Errorf("default connectors %s/%s: %w", f.ProfileID, f.TransactionType, err)
		}
		counts[3]++
	}
	return counts, nil
}
