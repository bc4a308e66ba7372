package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/queue"
)

// Patterns command flags.
var (
	patternsState   string
	patternsSince   string
	patternsEnqueue bool
)

// NewPatternsCommand creates the patterns command.
func NewPatternsCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage learned matching patterns",
		Long: `Manage the matching patterns the learner maintains.

Patterns start as candidates and only contribute match evidence once a
human activates them. 'patterns learn' runs the learner over recently
resolved suggestions, adjusting weights and synthesizing new candidates
from repeated denials.

Examples:
  studio-ops patterns list
  studio-ops patterns list --state candidate
  studio-ops patterns activate 7d2e91ab-...
  studio-ops patterns learn --since 168h`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patterns by lifecycle state",
		RunE: func(c *cobra.Command, args []string) error {
			return runPatternsList(c, deps)
		},
	}
	listCmd.Flags().StringVar(&patternsState, "state", "active", "state filter: candidate, active, deprecated")

	activateCmd := &cobra.Command{
		Use:   "activate <pattern-id>",
		Short: "Activate a candidate pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runPatternsSetState(c, deps, args[0], pattern.StateActive)
		},
	}

	deprecateCmd := &cobra.Command{
		Use:   "deprecate <pattern-id>",
		Short: "Retire a pattern from matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runPatternsSetState(c, deps, args[0], pattern.StateDeprecated)
		},
	}

	learnCmd := &cobra.Command{
		Use:   "learn",
		Short: "Run the learner over recently resolved suggestions",
		RunE: func(c *cobra.Command, args []string) error {
			return runPatternsLearn(c, deps)
		},
	}
	learnCmd.Flags().StringVar(&patternsSince, "since", "24h", "how far back to read resolved suggestions")
	learnCmd.Flags().BoolVar(&patternsEnqueue, "enqueue", false, "push a relearn message onto the work queue instead of running inline")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(activateCmd)
	cmd.AddCommand(deprecateCmd)
	cmd.AddCommand(learnCmd)
	return cmd
}

func runPatternsList(c *cobra.Command, deps *Deps) error {
	state := pattern.State(patternsState)
	switch state {
	case pattern.StateCandidate, pattern.StateActive, pattern.StateDeprecated:
	default:
		return fmt.Errorf("unknown state %q", patternsState)
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	items, err := rt.patterns.ListByState(ctx, state)
	if err != nil {
		return fmt.Errorf("listing patterns: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(items)
	case config.OutputFormatYAML:
		return outputYAML(items)
	default:
		return outputPatternsTable(items)
	}
}

func runPatternsSetState(c *cobra.Command, deps *Deps, arg string, state pattern.State) error {
	id, err := parseUUID(arg, "pattern ID")
	if err != nil {
		return err
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	if err := rt.patterns.SetState(ctx, id, state); err != nil {
		return fmt.Errorf("setting pattern state: %w", err)
	}

	fmt.Printf("Pattern %s is now %s.\n", id, state)
	return nil
}

func runPatternsLearn(c *cobra.Command, deps *Deps) error {
	d, err := time.ParseDuration(patternsSince)
	if err != nil {
		return fmt.Errorf("parsing --since: %w", err)
	}
	since := time.Now().Add(-d)

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	if patternsEnqueue {
		redisClient := connectToRedis(rt.cfg)
		defer redisClient.Close()

		q := queue.NewRedisQueue(redisClient, queue.DefaultConfig())
		defer q.Close()

		msg := &queue.RelearnMessage{Since: since, Priority: queue.PriorityLow}
		if err := q.Enqueue(msg); err != nil {
			return fmt.Errorf("enqueueing relearn message: %w", err)
		}
		fmt.Println("Relearn message enqueued.")
		return nil
	}

	learner := buildLearner(rt)
	delta, err := learner.Learn(ctx, since)
	if err != nil {
		return fmt.Errorf("running learner: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(delta)
	case config.OutputFormatYAML:
		return outputYAML(delta)
	default:
		fmt.Printf("Suggestions seen: %d  Weight updates: %d  New candidates: %d\n",
			delta.SuggestionsSeen, len(delta.WeightUpdates), len(delta.Candidates))
		for _, p := range delta.Candidates {
			fmt.Printf("  candidate %s: %s %q (weight %.2f)\n", p.ID, p.Kind, p.Expression, p.Weight)
		}
		return nil
	}
}

// outputPatternsTable renders patterns as a table.
func outputPatternsTable(items []pattern.Pattern) error {
	if len(items) == 0 {
		fmt.Println("No patterns found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tKIND\tEXPRESSION\tWEIGHT\tSTATE\tAPPLIED\tCONFIRMED")
	fmt.Fprintln(w, "--\t------\t----\t----------\t------\t-----\t-------\t---------")

	for _, p := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%d\t%d\n",
			p.ID,
			truncate(p.EntityID.String(), 8),
			p.Kind,
			truncate(p.Expression, 30),
			p.Weight,
			p.State,
			p.TimesApplied,
			p.TimesConfirmed)
	}

	return w.Flush()
}
