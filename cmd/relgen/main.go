package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/app"
	"github.com/mmrzaf/relgen/internal/config"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/infra/repos/runs"
	"github.com/mmrzaf/relgen/internal/infra/repos/workloads"
	"github.com/mmrzaf/relgen/internal/logging"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/timeutil"
	"github.com/mmrzaf/relgen/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	workloadsDir string
	runsDBPath   string
	relgenDB     string
	logLevel     string
	memoryLimit  string
	workers      int

	// envMemoryLimit is the budget from RELGEN_MEMORY_LIMIT, used unless
	// --memory-limit is given.
	envMemoryLimit int64
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	envMemoryLimit = cfg.MemoryLimitBytes

	rootCmd := &cobra.Command{
		Use:          "relgen",
		Short:        "In-memory relation generator for join benchmarks",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&workloadsDir, "workloads-dir", cfg.WorkloadsDir, "Workloads directory")
	rootCmd.PersistentFlags().StringVar(&runsDBPath, "runs-db", cfg.RunsDBPath, "Runs database path")
	rootCmd.PersistentFlags().StringVar(&relgenDB, "db", cfg.RelgenDBDSN, "PostgreSQL DSN for run history (overrides --runs-db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level")
	rootCmd.PersistentFlags().StringVar(&memoryLimit, "memory-limit", "", "Relation memory budget, e.g. 512MiB (default RELGEN_MEMORY_LIMIT, 0 = unlimited)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", cfg.DefaultWorkers, "Default worker count for parallel relations (0 = sequential)")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(workloadCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(distributionsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAllocator() (*relgen.Allocator, error) {
	n, err := resolveMemoryLimit(memoryLimit, envMemoryLimit)
	if err != nil {
		return nil, err
	}
	return relgen.NewAllocator(n), nil
}

// resolveMemoryLimit parses the --memory-limit value, falling back to the
// configured limit when the flag is empty.
func resolveMemoryLimit(flagValue string, configured int64) (int64, error) {
	if flagValue == "" {
		return configured, nil
	}
	n, err := config.ParseMemoryLimit(flagValue)
	if err != nil {
		return 0, fmt.Errorf("invalid --memory-limit: %w", err)
	}
	return n, nil
}

func openRunRepo() (runs.Repository, error) {
	var repo runs.Repository
	if relgenDB != "" {
		repo = runs.NewPostgresRepository(relgenDB)
	} else {
		repo = runs.NewSQLiteRepository(runsDBPath)
	}
	if err := repo.Init(); err != nil {
		return nil, err
	}
	return repo, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func distributionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distributions",
		Short: "List key distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range registry.DefaultDistributionRegistry().List() {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func workloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workload",
		Short: "Manage workloads",
	}

	var format string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := workloads.NewFileRepository(workloadsDir)
			list, err := repo.List()
			if err != nil {
				return err
			}

			if format == "json" {
				return printJSON(list)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tRELATIONS\tTUPLES")
			for _, wl := range list {
				total := 0
				for _, rel := range wl.Relations {
					total += rel.Len
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", wl.ID, wl.Name, wl.Version, len(wl.Relations), humanize.Comma(int64(total)))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show workload details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := workloads.NewFileRepository(workloadsDir)
			wl, err := repo.Get(args[0])
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(wl)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <id|path>",
		Short: "Validate a workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := loadWorkload(args[0])
			if err != nil {
				return err
			}

			validator := validation.NewValidator(registry.DefaultDistributionRegistry())
			if err := validator.ValidateWorkload(wl); err != nil {
				fmt.Printf("Validation failed: %v\n", err)
				return err
			}

			order, _ := validation.TopologicalSort(wl)
			fmt.Printf("Workload '%s' is valid (order: %s)\n", wl.Name, strings.Join(order, " -> "))
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, validateCmd)
	return cmd
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.HasSuffix(s, ".yaml") || strings.HasSuffix(s, ".yml") || strings.HasSuffix(s, ".json")
}

func loadWorkload(ref string) (*domain.Workload, error) {
	if looksLikePath(ref) {
		return workloads.LoadFile(ref)
	}
	return workloads.NewFileRepository(workloadsDir).Get(ref)
}

func parseLenOverrides(in []string) (map[string]int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(in))
	for _, override := range in {
		parts := strings.SplitN(override, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid len override format: %s", override)
		}
		n, err := strconv.Atoi(strings.ReplaceAll(parts[1], "_", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid len value: %s", parts[1])
		}
		out[parts[0]] = n
	}
	return out, nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	var (
		workloadID   string
		workloadPath string
		seed         uint32
		lenOverrides []string
		verify       bool
		hasSeed      bool
		hasVerify    bool
	)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Generate a workload and record the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(logLevel)

			runRepo, err := openRunRepo()
			if err != nil {
				return err
			}
			defer runRepo.Close()

			alloc, err := newAllocator()
			if err != nil {
				return err
			}

			runService := app.NewRunService(
				workloads.NewFileRepository(workloadsDir),
				runRepo,
				registry.DefaultDistributionRegistry(),
				alloc,
				logger,
				workers,
			)

			req := &domain.RunRequest{}
			switch {
			case workloadPath != "":
				wl, err := workloads.LoadFile(workloadPath)
				if err != nil {
					return err
				}
				req.Workload = wl
			case workloadID != "":
				req.WorkloadID = workloadID
			default:
				return fmt.Errorf("either --workload or --workload-path required")
			}

			if hasSeed {
				req.Seed = &seed
			}
			if hasVerify {
				req.Verify = &verify
			}
			if req.LenOverrides, err = parseLenOverrides(lenOverrides); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			run, err := runService.RunSync(ctx, req)
			if run == nil {
				return err
			}
			fmt.Printf("Run %s (%s)\n", run.ID, run.Label)
			if err != nil {
				fmt.Printf("Run failed: %s\n", run.Error)
				return fmt.Errorf("run failed")
			}

			var stats domain.RunStats
			if err := json.Unmarshal(run.Stats, &stats); err != nil {
				return err
			}
			printRelationStats(stats.RelationStats)
			fmt.Printf("Total tuples: %s (%s) in %.2fs\n",
				humanize.Comma(stats.TotalTuples), humanize.IBytes(uint64(stats.TotalBytes)), stats.DurationSeconds)
			return nil
		},
	}

	startCmd.Flags().StringVar(&workloadID, "workload", "", "Workload ID")
	startCmd.Flags().StringVar(&workloadPath, "workload-path", "", "Workload file path")
	startCmd.Flags().Uint32VarP(&seed, "seed", "s", 0, "Seed for the random source")
	startCmd.Flags().StringSliceVar(&lenOverrides, "len-override", nil, "Length overrides (relation=len)")
	startCmd.Flags().BoolVar(&verify, "verify", false, "Verify distribution guarantees after generation")
	startCmd.PreRun = func(cmd *cobra.Command, args []string) {
		hasSeed = cmd.Flags().Changed("seed")
		hasVerify = cmd.Flags().Changed("verify")
	}

	var (
		limit  int
		status string
		since  string
		format string
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runRepo, err := openRunRepo()
			if err != nil {
				return err
			}
			defer runRepo.Close()

			list, err := runRepo.List(limit, status)
			if err != nil {
				return err
			}
			if since != "" {
				cutoff, err := timeutil.ParseSince(since, time.Now().UTC())
				if err != nil {
					return err
				}
				filtered := list[:0]
				for _, r := range list {
					if !r.StartedAt.Before(cutoff) {
						filtered = append(filtered, r)
					}
				}
				list = filtered
			}

			if format == "json" {
				return printJSON(list)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tWORKLOAD\tSEED\tSTATUS\tSTARTED")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					short(r.ID, 8), r.Label, r.WorkloadName, r.Seed, r.Status, humanize.Time(r.StartedAt))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Limit results")
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&since, "since", "", "Only runs started after this time (RFC3339 or lookback like 24h, 7d)")
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	showCmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runRepo, err := openRunRepo()
			if err != nil {
				return err
			}
			defer runRepo.Close()

			run, err := runRepo.Get(args[0])
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(run)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	var logLimit int
	logsCmd := &cobra.Command{
		Use:   "logs <run_id>",
		Short: "Show run logs, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runRepo, err := openRunRepo()
			if err != nil {
				return err
			}
			defer runRepo.Close()

			logs, err := runRepo.ListRunLogs(args[0], logLimit)
			if err != nil {
				return err
			}
			for _, l := range logs {
				fmt.Printf("%s  %-5s  %s\n", l.CreatedAt.Format(time.RFC3339), l.Level, l.Message)
			}
			return nil
		},
	}
	logsCmd.Flags().IntVar(&logLimit, "limit", 200, "Limit results")

	cmd.AddCommand(startCmd, listCmd, showCmd, logsCmd)
	return cmd
}

func printRelationStats(stats []domain.RelationRunStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RELATION\tKIND\tTUPLES\tSIZE\tWORKERS\tDISTINCT\tMIN\tMAX\tVIOLATIONS\tCHECKSUM")
	for _, rs := range stats {
		violations := "-"
		if rs.Violations != nil {
			violations = strconv.FormatUint(*rs.Violations, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			rs.Name, rs.Kind, humanize.Comma(int64(rs.Tuples)), humanize.IBytes(uint64(rs.Bytes)), rs.Workers,
			humanize.Comma(int64(rs.DistinctKeys)), rs.MinKey, rs.MaxKey, violations, short(rs.Checksum, 12))
	}
	_ = w.Flush()
}

func short(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
