package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/exec"
	"github.com/mmrzaf/relgen/internal/logging"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/validation"
	"github.com/spf13/cobra"
)

type generateFlags struct {
	kind      string
	length    int
	maxID     int
	skew      float64
	pkLen     int
	seed      uint32
	remainder string
	payload   string
	verify    bool
	format    string
}

// adHocWorkload wraps a single relation, plus the primary key it references
// when its kind needs one.
func adHocWorkload(f generateFlags) *domain.Workload {
	rel := domain.RelationSpec{
		Name:      "generated",
		Kind:      domain.Kind(f.kind),
		Len:       f.length,
		MaxID:     f.maxID,
		Skew:      f.skew,
		Remainder: f.remainder,
		Payload:   f.payload,
	}
	w := &domain.Workload{ID: "adhoc", Name: "adhoc", Version: "1"}
	if rel.Kind == domain.KindFKFromPK {
		rel.References = "pk"
		w.Relations = append(w.Relations, domain.RelationSpec{
			Name: "pk",
			Kind: domain.KindPrimaryKey,
			Len:  f.pkLen,
		})
	}
	w.Relations = append(w.Relations, rel)
	return w
}

func generateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one relation in memory and report its key statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			distRegistry := registry.DefaultDistributionRegistry()
			w := adHocWorkload(f)
			if err := validation.NewValidator(distRegistry).ValidateWorkload(w); err != nil {
				return err
			}

			alloc, err := newAllocator()
			if err != nil {
				return err
			}
			executor := exec.NewExecutor(distRegistry, alloc, logging.NewLogger(logLevel))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			stats, err := executor.Execute(ctx, w, exec.Options{
				Seed:           f.seed,
				Verify:         f.verify,
				DefaultWorkers: workers,
			})
			if err != nil {
				return err
			}

			if f.format == "json" {
				return printJSON(stats)
			}
			printRelationStats(stats.RelationStats)
			for _, rs := range stats.RelationStats {
				if len(rs.TopRankFreq) > 0 {
					fmt.Printf("%s top rank frequencies: %v\n", rs.Name, rs.TopRankFreq)
				}
				if rs.ChiSquare != nil {
					fmt.Printf("%s chi-square vs zipf(%g): %.2f\n", rs.Name, f.skew, *rs.ChiSquare)
				}
			}
			fmt.Printf("Generated %s tuples (%s) in %.3fs\n",
				humanize.Comma(stats.TotalTuples), humanize.IBytes(uint64(stats.TotalBytes)), stats.DurationSeconds)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.kind, "kind", string(domain.KindPrimaryKey), "Distribution (nonunique|primary_key|foreign_key|fk_from_pk|zipf)")
	cmd.Flags().IntVar(&f.length, "len", 1_000_000, "Number of tuples")
	cmd.Flags().IntVar(&f.maxID, "max-id", 0, "Key upper bound for nonunique, foreign_key and zipf")
	cmd.Flags().Float64Var(&f.skew, "skew", 1.0, "Zipf exponent")
	cmd.Flags().IntVar(&f.pkLen, "pk-len", 100_000, "Length of the primary key referenced by fk_from_pk")
	cmd.Flags().Uint32Var(&f.seed, "seed", 1, "Seed for the random source")
	cmd.Flags().StringVar(&f.remainder, "remainder", "", "foreign_key remainder policy (uniform|blocks)")
	cmd.Flags().StringVar(&f.payload, "payload", "", "Payload contents (row_id|key)")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "Verify distribution guarantees after generation")
	cmd.Flags().StringVar(&f.format, "format", "table", "Output format (table|json)")
	return cmd
}
