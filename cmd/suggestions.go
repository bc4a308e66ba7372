package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

// Suggestions command flags.
var (
	suggestionsStatus string
	suggestionsLimit  int
)

// NewSuggestionsCommand creates the suggestions command.
func NewSuggestionsCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Inspect field-change suggestions",
		Long: `Inspect the suggestions the linking pipeline has produced.

Examples:
  studio-ops suggestions list
  studio-ops suggestions list --status denied --limit 20
  studio-ops suggestions show 4f8b7c2e-...`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions by status",
		RunE: func(c *cobra.Command, args []string) error {
			return runSuggestionsList(c, deps)
		},
	}
	listCmd.Flags().StringVar(&suggestionsStatus, "status", "pending", "status filter: pending, applied, denied, stale")
	listCmd.Flags().IntVar(&suggestionsLimit, "limit", 50, "maximum rows")

	showCmd := &cobra.Command{
		Use:   "show <suggestion-id>",
		Short: "Show one suggestion in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runSuggestionsShow(c, deps, args[0])
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func runSuggestionsList(c *cobra.Command, deps *Deps) error {
	status := suggest.Status(suggestionsStatus)
	switch status {
	case suggest.StatusPending, suggest.StatusApplied, suggest.StatusDenied, suggest.StatusStale:
	default:
		return fmt.Errorf("unknown status %q", suggestionsStatus)
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	items, err := rt.suggestions.ListByStatus(ctx, status, suggestionsLimit)
	if err != nil {
		return fmt.Errorf("listing suggestions: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(items)
	case config.OutputFormatYAML:
		return outputYAML(items)
	default:
		return outputSuggestionsTable(items)
	}
}

func runSuggestionsShow(c *cobra.Command, deps *Deps, arg string) error {
	id, err := parseUUID(arg, "suggestion ID")
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

	s, err := rt.suggestions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting suggestion: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatYAML:
		return outputYAML(s)
	default:
		return outputJSON(s)
	}
}

// outputSuggestionsTable renders suggestions as a table.
func outputSuggestionsTable(items []suggest.Suggestion) error {
	if len(items) == 0 {
		fmt.Println("No suggestions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tFIELD\tCURRENT\tPROPOSED\tCONF\tSTATUS\tCREATED")
	fmt.Fprintln(w, "--\t------\t-----\t-------\t--------\t----\t------\t-------")

	for _, s := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			s.ID,
			truncate(s.EntityID.String(), 8),
			s.Field,
			truncate(s.CurrentValue, 20),
			truncate(s.ProposedValue, 20),
			s.Confidence,
			s.Status,
			formatTime(s.CreatedAt))
	}

	return w.Flush()
}
