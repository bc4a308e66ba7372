package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/learn"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/match"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/pipeline"
	"github.com/marloweandco/studio-ops/pkg/queue"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

// Process command flags.
var (
	processLimit       int
	processConcurrency int
	processQueueName   string
)

// NewProcessCommand creates the process command with its subcommands.
func NewProcessCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run emails through the linking pipeline",
		Long: `Run stored emails through the matcher and persist links and
suggestions.

'process batch' sweeps unprocessed emails directly. 'process email'
handles a single message by ID. 'process worker' consumes the Redis
work queue until interrupted.

Examples:
  studio-ops process batch --limit 200
  studio-ops process email 4f8b7c2e-...
  studio-ops process worker`,
	}

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Process unprocessed emails in one sweep",
		RunE: func(c *cobra.Command, args []string) error {
			return runProcessBatch(c, deps)
		},
	}
	batchCmd.Flags().IntVar(&processLimit, "limit", 0, "maximum emails to process (0 = config default)")
	batchCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "parallel workers (0 = config default)")

	emailCmd := &cobra.Command{
		Use:   "email <email-id>",
		Short: "Process a single email by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runProcessEmail(c, deps, args[0])
		},
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the Redis work queue until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			return runProcessWorker(c, deps)
		},
	}
	workerCmd.Flags().StringVar(&processQueueName, "queue", "", "queue name override")

	cmd.AddCommand(batchCmd)
	cmd.AddCommand(emailCmd)
	cmd.AddCommand(workerCmd)

	return cmd
}

// buildProcessor wires the linking processor from an open runtime. The
// pattern store is loaded once; long-running callers reload it themselves.
func buildProcessor(ctx context.Context, rt *runtime, metrics *pipeline.Metrics) (*pipeline.Processor, *pattern.Store, error) {
	store := pattern.NewStore(rt.patterns)
	if _, err := store.Reload(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading active patterns: %w", err)
	}

	var weights match.Weights
	if rt.cfg.Matcher != nil {
		weights = rt.cfg.Matcher.Weights()
	} else {
		weights = match.DefaultWeights()
	}
	matcher := match.NewMatcher(weights, rt.log)

	var floor float64
	if rt.cfg.Suggest != nil {
		floor = rt.cfg.Suggest.EligibilityFloor
	}
	generator := suggest.NewGenerator(suggest.DefaultRules(), rt.suggestions, floor, rt.log)

	proc := pipeline.NewProcessor(
		rt.emails,
		rt.entities,
		rt.links,
		store,
		matcher,
		generator,
		rt.tx,
		metrics,
		rt.log,
	)
	return proc, store, nil
}

// buildLearner wires the pattern learner from an open runtime.
func buildLearner(rt *runtime) *learn.Learner {
	var alpha float64
	var threshold int
	if rt.cfg.Learner != nil {
		alpha = rt.cfg.Learner.Alpha
		threshold = rt.cfg.Learner.DenialThreshold
	}
	return learn.NewLearner(rt.suggestions, rt.links, rt.patterns, rt.tx, alpha, threshold, rt.log)
}

func runProcessBatch(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	proc, _, err := buildProcessor(c.Context(), rt, nil)
	if err != nil {
		return err
	}

	limit := processLimit
	if limit <= 0 {
		limit = rt.cfg.Pipeline.GetBatchSize()
	}
	concurrency := processConcurrency
	if concurrency <= 0 {
		concurrency = rt.cfg.Pipeline.GetConcurrency()
	}

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	result, err := proc.ProcessBatch(ctx, limit, concurrency)
	if err != nil {
		return fmt.Errorf("processing batch: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(result)
	case config.OutputFormatYAML:
		return outputYAML(result)
	default:
		fmt.Printf("Processed %d of %d emails (%d skipped, %d failed) in %s\n",
			result.Processed, result.Total, result.Skipped, result.Failed,
			result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
		fmt.Printf("Links written: %d  Suggestions created: %d\n", result.Links, result.Suggestions)
		return nil
	}
}

func runProcessEmail(c *cobra.Command, deps *Deps, arg string) error {
	id, err := parseUUID(arg, "email ID")
	if err != nil {
		return err
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	proc, _, err := buildProcessor(c.Context(), rt, nil)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	outcome, err := proc.ProcessEmail(ctx, id)
	if err != nil {
		return fmt.Errorf("processing email: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(outcome)
	case config.OutputFormatYAML:
		return outputYAML(outcome)
	default:
		if outcome.AlreadyProcessed {
			fmt.Printf("Email %s was already processed.\n", id)
			return nil
		}
		fmt.Printf("Email %s: %d candidates, %d links, %d suggestions\n",
			id, outcome.Candidates, outcome.Links, outcome.Suggestions)
		return nil
	}
}

func runProcessWorker(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	metrics := pipeline.DefaultMetrics()

	proc, store, err := buildProcessor(c.Context(), rt, metrics)
	if err != nil {
		return err
	}
	learner := buildLearner(rt)

	queueCfg := queue.DefaultConfig()
	if processQueueName != "" {
		queueCfg.Name = processQueueName
	}
	redisClient := connectToRedis(rt.cfg)
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient, queueCfg)
	defer q.Close()

	worker := pipeline.NewWorker(q, proc, learner, pipeline.DefaultWorkerConfig(), metrics, rt.log)

	// Refresh the pattern snapshot periodically so activations made while
	// the worker runs take effect without a restart.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-c.Context().Done():
				return
			case <-ticker.C:
				if _, err := store.Reload(c.Context()); err != nil {
					rt.log.Warn("reloading pattern snapshot failed", logging.Err(err))
				}
			}
		}
	}()

	fmt.Printf("Worker consuming queue %q (Ctrl-C to stop)\n", q.Name())
	return worker.Run(c.Context())
}
