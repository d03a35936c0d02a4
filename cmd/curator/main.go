package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curator/internal/config"
	"curator/internal/event"
	"curator/internal/perception"
	"curator/internal/pipeline"
	"curator/internal/policy"
	"curator/internal/store"
	"curator/internal/telemetry"
	"curator/internal/validate"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "curator - classification and enrichment engine for cultural event listings",
	Long: `curator takes normalized event records from scrapers, assigns each a
category from a fixed ontology under per-venue policy, and fills in only the
category's missing required fields using evidence-gated LLM calls.

Values are accepted only when verifiably quoted from the event's own text or
backed by citations the venue policy allows; everything else stays missing.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// enrichCmd runs the full pipeline over a batch of events
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Classify and enrich a batch of scraped events",
	Long: `Reads a JSON array of normalized events, runs each through policy
resolution, classification, enrichment, and validation, and writes the
augmented records back out. One event's failure never aborts the batch.

Example:
  curator enrich --in events.json --out enriched.json`,
	RunE: runEnrich,
}

// validateCmd checks publish requirements without any LLM calls
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a batch of events against publish requirements",
	Long: `Runs only the validator: required_on_publish completeness for each
event's category and the structural invariants. Issues no LLM calls.`,
	RunE: runValidate,
}

// policyCmd resolves and prints one venue's effective policy
var policyCmd = &cobra.Command{
	Use:   "policy [venue]",
	Short: "Print the effective policy for a venue",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicy,
}

// runsCmd lists recent runs from the audit store
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent enrichment runs from the audit store",
	RunE:  runRuns,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the curator version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("curator", config.DefaultConfig().Version)
	},
}

var (
	inPath   string
	outPath  string
	runLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "curator.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	enrichCmd.Flags().StringVar(&inPath, "in", "", "input events JSON file (required)")
	enrichCmd.Flags().StringVar(&outPath, "out", "", "output file for enriched events (required)")
	_ = enrichCmd.MarkFlagRequired("in")
	_ = enrichCmd.MarkFlagRequired("out")

	validateCmd.Flags().StringVar(&inPath, "in", "", "input events JSON file (required)")
	_ = validateCmd.MarkFlagRequired("in")

	runsCmd.Flags().IntVar(&runLimit, "limit", 10, "maximum runs to list")

	rootCmd.AddCommand(enrichCmd, validateCmd, policyCmd, runsCmd, versionCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	events, err := event.LoadBatch(inPath)
	if err != nil {
		return err
	}
	logger.Info("loaded events", zap.Int("count", len(events)), zap.String("in", inPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llm, err := perception.NewClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	var audit *store.AuditStore
	if cfg.Store.Path != "" {
		audit, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer audit.Close()
	}

	counters := telemetry.NewCounters()
	orch := pipeline.New(cfg, llm, counters, audit, logger)

	result, err := orch.RunBatch(ctx, events)
	if err != nil {
		return err
	}

	if err := event.WriteBatch(outPath, events); err != nil {
		return err
	}
	logger.Info("wrote enriched events", zap.String("out", outPath))

	fmt.Println(renderSummary(result))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	events, err := event.LoadBatch(inPath)
	if err != nil {
		return err
	}

	validator := validate.New(cfg)
	failures := 0
	for _, ev := range events {
		if verr := validator.Validate(ev, ev.Category); verr != nil {
			failures++
			fmt.Println(verr.Error())
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d events failed validation", failures, len(events))
	}
	fmt.Printf("all %d events are publishable\n", len(events))
	return nil
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	pol, err := policy.NewResolver(cfg).Resolve(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("venue: %s\n", args[0])
	fmt.Printf("  classification_enabled: %t\n", pol.ClassificationEnabled)
	if pol.AssumedCategory != "" {
		fmt.Printf("  assumed_event_category: %s\n", pol.AssumedCategory)
	}
	fmt.Printf("  enrichment_enabled: %t\n", pol.EnrichmentEnabled)
	fmt.Printf("  allow_citations: %t\n", pol.AllowCitations)
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("audit store is not configured (store.path)")
	}

	audit, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer audit.Close()

	runs, err := audit.ListRuns(runLimit)
	if err != nil {
		return err
	}
	fmt.Println(renderRuns(runs))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
