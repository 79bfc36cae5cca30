// Command seedforge runs the task-synthesis pipeline: it ingests agent
// trajectories, generates and extends tasks, verifies them, and persists
// accepted seeds to the ledger.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"seedforge/internal/adaptive"
	"seedforge/internal/config"
	"seedforge/internal/corpus"
	"seedforge/internal/cost"
	sferrors "seedforge/internal/errors"
	"seedforge/internal/extend"
	"seedforge/internal/generator"
	"seedforge/internal/llm"
	"seedforge/internal/logging"
	"seedforge/internal/queue"
	"seedforge/internal/task"
	"seedforge/internal/tools"
	"seedforge/internal/trigger"
	"seedforge/internal/verify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seedforge",
		Short:         "Synthesize verified agent tasks from execution trajectories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newIngestCmd(), newVerifyCmd(), newCostCmd())
	return root
}

// pipeline bundles everything a command needs.
type pipeline struct {
	cfg     config.Config
	logger  logging.Logger
	queue   *queue.Manager
	trigger *trigger.Trigger
	ledger  *cost.Ledger
	costs   *cost.Tracker
}

func buildPipeline(ctx context.Context) (*pipeline, error) {
	logger := logging.NewComponentLogger("seedforge")
	cfg := config.Load(logger)

	manager, err := queue.NewManager(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect stream broker: %w", err)
	}
	if err := manager.EnsureAllGroups(ctx); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("create consumer groups: %w", err)
	}

	client, err := buildLLMClient(cfg)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	ledger, err := cost.NewLedger(cfg.LedgerDir)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	toolClient := tools.NewHTTPClient(cfg.ToolsBaseURL, cfg.VerificationTimeout(), logger)
	tracker := cost.NewTracker()
	deps := trigger.Deps{
		Ingestor:  corpus.NewIngestor(toolClient, logger),
		Generator: generator.New(client, tools.NewCatalog(toolClient), cfg, tracker, logger),
		Depth:     extend.NewDepthExtender(client, toolClient, cfg, tracker, logger),
		Width:     extend.NewWidthExtender(client, cfg, tracker, logger),
		Verifier:  verify.NewEngine(client, toolClient, cfg, tracker, logger),
		Queue:     manager,
		Control:   adaptive.NewController(cfg, logger),
		Ledger:    ledger,
		Costs:     tracker,
	}
	return &pipeline{
		cfg:     cfg,
		logger:  logger,
		queue:   manager,
		trigger: trigger.New(deps, cfg, logger),
		ledger:  ledger,
		costs:   tracker,
	}, nil
}

func buildLLMClient(cfg config.Config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" && cfg.LLMBaseURL == "" {
		return nil, fmt.Errorf("no LLM provider configured (set LLM_API_KEY or LLM_BASE_URL)")
	}
	base := llm.NewOpenAIClient(cfg.LLMModel, llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Timeout: cfg.LLMTimeout(),
	})
	return llm.NewRetryClient(base, sferrors.DefaultRetryConfig()), nil
}

func newRunCmd() *cobra.Command {
	var trajectoryFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the synthesis worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.queue.Close()

			if trajectoryFile != "" {
				trajs, err := readTrajectories(trajectoryFile)
				if err != nil {
					return err
				}
				for _, traj := range trajs {
					if err := p.trigger.OnTrajectoryCompleted(traj); err != nil {
						p.logger.Warn("enqueue %s failed: %v", traj.ID, err)
					}
				}
			}

			p.trigger.OnQualityReport(func(r trigger.QualityReport) {
				fmt.Printf("%s: %d generated, %d accepted, %d modified, %d rejected ($%.4f)\n",
					r.TrajectoryID, r.Generated, r.Accepted, r.Modified, r.Rejected, r.Cost.TotalUSD)
			})
			if err := p.trigger.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&trajectoryFile, "trajectories", "t", "", "JSONL file of trajectories to enqueue on startup")
	return cmd
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <trajectories.jsonl>",
		Short: "Process a trajectory file once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.queue.Close()

			trajs, err := readTrajectories(args[0])
			if err != nil {
				return err
			}
			for _, traj := range trajs {
				if err := p.trigger.Process(ctx, traj); err != nil {
					p.logger.Error("trajectory %s failed: %v", traj.ID, err)
				}
			}
			b := p.costs.Breakdown()
			fmt.Printf("Processed %d trajectories, %d tokens, $%.4f\n", len(trajs), b.TotalTokens, b.TotalUSD)
			return nil
		},
	}
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <tasks.jsonl>",
		Short: "Verify tasks from a file without generating new ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewComponentLogger("seedforge")
			cfg := config.Load(logger)
			client, err := buildLLMClient(cfg)
			if err != nil {
				return err
			}
			toolClient := tools.NewHTTPClient(cfg.ToolsBaseURL, cfg.VerificationTimeout(), logger)
			engine := verify.NewEngine(client, toolClient, cfg, cost.NewTracker(), logger)

			specs, err := readSpecs(args[0])
			if err != nil {
				return err
			}
			results := engine.VerifyBatch(ctx, specs, cfg.MaxConcurrentVerifications)
			enc := json.NewEncoder(os.Stdout)
			for _, result := range results {
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func newCostCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Summarize or export the seed-task ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewComponentLogger("seedforge")
			cfg := config.Load(logger)
			ledger, err := cost.NewLedger(cfg.LedgerDir)
			if err != nil {
				return err
			}
			switch format {
			case "json", "csv":
				seeds, err := ledger.Read(time.Time{}, time.Time{})
				if err != nil {
					return err
				}
				if format == "json" {
					return cost.WriteSeedsJSON(os.Stdout, seeds)
				}
				return cost.WriteSeedsCSV(os.Stdout, seeds)
			case "summary":
				stats, err := ledger.Stats()
				if err != nil {
					return err
				}
				fmt.Printf("Ledger: %d seed tasks in %d files (%d bytes)\n",
					stats.TotalCount, len(stats.Files), stats.TotalBytes)
				for _, f := range stats.Files {
					fmt.Printf("  %s: %d tasks\n", f.Name, f.Count)
				}
				return nil
			default:
				return fmt.Errorf("unknown format %q (summary, json, csv)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "summary", "output format: summary, json or csv")
	return cmd
}

func readTrajectories(path string) ([]task.Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []task.Trajectory
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var traj task.Trajectory
		if err := json.Unmarshal(scanner.Bytes(), &traj); err != nil {
			return nil, fmt.Errorf("parse trajectory: %w", err)
		}
		out = append(out, traj)
	}
	return out, scanner.Err()
}

func readSpecs(path string) ([]task.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []task.Spec
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var spec task.Spec
		if err := json.Unmarshal(scanner.Bytes(), &spec); err != nil {
			return nil, fmt.Errorf("parse task: %w", err)
		}
		out = append(out, spec)
	}
	return out, scanner.Err()
}
