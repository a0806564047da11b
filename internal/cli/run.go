package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/observability"
	"github.com/orchid-dev/orchid/internal/tracing"
	"github.com/orchid-dev/orchid/pkg/orchestrator"
	"github.com/orchid-dev/orchid/pkg/provider"
	"github.com/orchid-dev/orchid/pkg/scenario"
	"github.com/orchid-dev/orchid/pkg/trace"
)

var (
	runPrompt      string
	runModel       string
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml]",
	Short: "Run a request through the orchestrator",
	Long: `Run a request through the skill dispatch loop.

The request comes either from a scenario file or from --prompt. Each run
writes trace.json, trace.md, and metadata.json into the trace directory
and records the run in the local history database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "user request to run (instead of a scenario file)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model override, e.g. anthropic:claude-sonnet-4")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run, e.g. :9091")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && runPrompt == "" {
		return fmt.Errorf("either a scenario file or --prompt is required")
	}

	boot, err := loadBootstrap()
	if err != nil {
		return err
	}
	defer boot.close()

	cfg := boot.cfg
	zlog := boot.log.GetZerolog()

	if err := tracing.InitOpenTelemetry("orchid"); err != nil {
		zlog.Warn().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			zlog.Warn().Err(err).Msg("Failed to shut down OpenTelemetry")
		}
	}()

	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsServer := &http.Server{Addr: runMetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Warn().Err(err).Str("addr", runMetricsAddr).Msg("Metrics server stopped")
			}
		}()
		defer metricsServer.Close()
	}

	var scen *scenario.Scenario
	scenarioPath := ""
	request := runPrompt
	if len(args) > 0 {
		scenarioPath = args[0]
		scen, err = scenario.Load(scenarioPath)
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
		request = scen.Input.UserRequest
		if scen.Model != "" && runModel == "" {
			runModel = scen.Model
		}
	}
	if runModel != "" {
		cfg.Model = runModel
	}

	providerName, modelName, err := cfg.SplitModel()
	if err != nil {
		return err
	}
	reasoner, err := provider.New(providerName, providerKey(cfg, providerName))
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Logger:                    zlog,
		Reasoner:                  reasoner,
		Model:                     modelName,
		Registry:                  boot.registry,
		FS:                        boot.fs,
		Gateway:                   boot.gateway,
		MaxSteps:                  cfg.Run.MaxSteps,
		StrictOutput:              cfg.Run.StrictOutput,
		CompactionThresholdTokens: cfg.Compaction.ThresholdTokens,
		CompactionKeepRecent:      cfg.Compaction.KeepRecent,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	zlog.Info().
		Str("model", cfg.Model).
		Int("skills", boot.registry.Count()).
		Msg("Starting run")

	result := orch.Run(cmd.Context(), request)

	scenarioName := ""
	info := trace.RenderInfo{Model: cfg.Model}
	if scen != nil {
		scenarioName = scen.Name
		info.Scenario = scen.Name
		info.ScenarioPath = scenarioPath
	}

	var checks []scenario.CheckResult
	if scen != nil && len(scen.Expectations) > 0 {
		checks = scen.Evaluate(result)
		info.Extra = map[string]interface{}{
			"expectations_met":   scenario.MetCount(checks),
			"expectations_total": len(checks),
		}
	}

	runDir := filepath.Join(cfg.TraceDir, fmt.Sprintf("%s_%s", time.Now().Format("20060102-150405"), result.RunID))
	if err := trace.Save(runDir, result.Steps, result.Summary, info); err != nil {
		zlog.Error().Err(err).Msg("Failed to write trace artifacts")
	}
	if err := saveRunHistory(cfg.DataDir, zlog, result, scenarioName, cfg.Model); err != nil {
		zlog.Error().Err(err).Msg("Failed to record run history")
	}

	printRunResult(result, checks, runDir)
	if result.Incomplete() {
		os.Exit(1)
	}
	return nil
}

func providerKey(cfg *config.Config, providerName string) string {
	switch providerName {
	case "anthropic":
		return cfg.Providers.AnthropicAPIKey
	case "openai":
		return cfg.Providers.OpenAIAPIKey
	}
	return ""
}

func saveRunHistory(dataDir string, zlog zerolog.Logger, result *orchestrator.RunResult, scenarioName, model string) error {
	store, err := trace.NewStore(filepath.Join(dataDir, "runs.db"), zlog)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(result.Steps, result.Summary, string(result.Status), scenarioName, model)
}

func printRunResult(result *orchestrator.RunResult, checks []scenario.CheckResult, runDir string) {
	fmt.Printf("Run %s finished: %s\n", result.RunID, result.Status)
	if result.Reason != "" {
		fmt.Printf("Reason: %s\n", result.Reason)
	}
	if result.Output != "" {
		fmt.Printf("\n%s\n", result.Output)
	}
	if len(checks) > 0 {
		fmt.Printf("\nExpectations: %d/%d met\n", scenario.MetCount(checks), len(checks))
		for _, c := range checks {
			mark := "PASS"
			if !c.Met {
				mark = "FAIL"
			}
			fmt.Printf("  [%s] %s %q: %s\n", mark, c.Expectation.Type, c.Expectation.Value, c.Detail)
		}
	}
	fmt.Printf("\nTrace: %s\n", runDir)
}
