package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/link"
)

// NewLinksCommand creates the links command.
func NewLinksCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect and create email-entity links",
		Long: `Inspect the links the matcher has written, or create a manual
link. Manual links have confidence 1.0 and are never overwritten by
re-matching.

Examples:
  studio-ops links email 4f8b7c2e-...
  studio-ops links entity 9a1c55d0-...
  studio-ops links add <email-id> <entity-id>`,
	}

	emailCmd := &cobra.Command{
		Use:   "email <email-id>",
		Short: "List links for one email",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runLinksList(c, deps, args[0], "email")
		},
	}

	entityCmd := &cobra.Command{
		Use:   "entity <entity-id>",
		Short: "List links for one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runLinksList(c, deps, args[0], "entity")
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <email-id> <entity-id>",
		Short: "Create a manual link",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runLinksAdd(c, deps, args[0], args[1])
		},
	}

	cmd.AddCommand(emailCmd)
	cmd.AddCommand(entityCmd)
	cmd.AddCommand(addCmd)
	return cmd
}

func runLinksList(c *cobra.Command, deps *Deps, arg, side string) error {
	id, err := parseUUID(arg, side+" ID")
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

	var links []link.Link
	if side == "email" {
		links, err = rt.links.ListByEmail(ctx, id)
	} else {
		links, err = rt.links.ListByEntity(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("listing links: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(links)
	case config.OutputFormatYAML:
		return outputYAML(links)
	default:
		return outputLinksTable(links)
	}
}

func runLinksAdd(c *cobra.Command, deps *Deps, emailArg, entityArg string) error {
	emailID, err := parseUUID(emailArg, "email ID")
	if err != nil {
		return err
	}
	entityID, err := parseUUID(entityArg, "entity ID")
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

	l, err := rt.links.CreateManual(ctx, emailID, entityID)
	if err != nil {
		return fmt.Errorf("creating manual link: %w", err)
	}

	fmt.Printf("Linked email %s to entity %s (manual, confidence %.2f)\n",
		l.EmailID, l.EntityID, l.Confidence)
	return nil
}

// outputLinksTable renders links as a table with a compact evidence column.
func outputLinksTable(links []link.Link) error {
	if len(links) == 0 {
		fmt.Println("No links found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tENTITY\tCONF\tMETHOD\tEVIDENCE\tUPDATED")
	fmt.Fprintln(w, "-----\t------\t----\t------\t--------\t-------")

	for _, l := range links {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			truncate(l.EmailID.String(), 8),
			truncate(l.EntityID.String(), 8),
			l.Confidence,
			l.Method,
			summarizeEvidence(l.Evidence),
			formatTime(l.UpdatedAt))
	}

	return w.Flush()
}

func summarizeEvidence(evidence []link.Evidence) string {
	if len(evidence) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		parts = append(parts, fmt.Sprintf("%s(%.1f)", ev.Category, ev.Weight))
	}
	return strings.Join(parts, " ")
}
