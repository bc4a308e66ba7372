package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/pkg/review"
)

// Review command flags.
var (
	reviewNote  string
	reviewActor string
)

// NewReviewCommand creates the review command.
func NewReviewCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Approve or deny pending suggestions",
		Long: `Resolve pending suggestions.

Approving applies the proposed value to the entity and writes an audit
record in the same transaction. If the entity's live value drifted since
the suggestion was made, the suggestion goes stale instead of applying.
Denying requires a note; repeated denials with the same note teach the
pattern learner.

Examples:
  studio-ops review approve 4f8b7c2e-...
  studio-ops review deny 4f8b7c2e-... --note "wrong client"`,
	}

	approveCmd := &cobra.Command{
		Use:   "approve <suggestion-id>",
		Short: "Apply a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runReviewApprove(c, deps, args[0])
		},
	}

	denyCmd := &cobra.Command{
		Use:   "deny <suggestion-id>",
		Short: "Reject a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runReviewDeny(c, deps, args[0])
		},
	}
	denyCmd.Flags().StringVar(&reviewNote, "note", "", "reason for the denial (required)")
	_ = denyCmd.MarkFlagRequired("note")

	cmd.PersistentFlags().StringVar(&reviewActor, "actor", "", "reviewer identity (default from config)")
	cmd.AddCommand(approveCmd)
	cmd.AddCommand(denyCmd)
	return cmd
}

func openGate(c *cobra.Command, deps *Deps) (*runtime, *review.Gate, string, error) {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return nil, nil, "", err
	}

	actor := reviewActor
	if actor == "" {
		actor = rt.cfg.GetActor()
	}
	if actor == "" {
		rt.Close()
		return nil, nil, "", fmt.Errorf("no reviewer identity; set --actor or the actor config key")
	}

	gate := review.NewGate(rt.suggestions, rt.entities, rt.audits, rt.tx, rt.log)
	return rt, gate, actor, nil
}

func runReviewApprove(c *cobra.Command, deps *Deps, arg string) error {
	id, err := parseUUID(arg, "suggestion ID")
	if err != nil {
		return err
	}

	rt, gate, actor, err := openGate(c, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	decision, err := gate.Approve(ctx, id, actor)
	if err != nil {
		return fmt.Errorf("approving suggestion: %w", err)
	}

	switch decision.Result {
	case review.ResultApplied:
		fmt.Printf("Suggestion %s applied.\n", id)
	case review.ResultStale:
		fmt.Printf("Suggestion %s went stale: the entity's value changed since it was proposed.\n", id)
	default:
		fmt.Printf("Suggestion %s: %s\n", id, decision.Result)
	}
	return nil
}

func runReviewDeny(c *cobra.Command, deps *Deps, arg string) error {
	id, err := parseUUID(arg, "suggestion ID")
	if err != nil {
		return err
	}

	rt, gate, actor, err := openGate(c, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	if _, err := gate.Deny(ctx, id, reviewNote, actor); err != nil {
		return fmt.Errorf("denying suggestion: %w", err)
	}

	fmt.Printf("Suggestion %s denied.\n", id)
	return nil
}
