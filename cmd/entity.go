package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/entity"
)

// Entity command flags.
var entityActor string

// NewEntityCommand creates the entity command.
func NewEntityCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Inspect and edit catalog entities",
		Long: `Inspect proposals, projects, and contacts, and apply manual
field edits. Every edit writes an audit record in the same transaction.

Examples:
  studio-ops entity list
  studio-ops entity show 9a1c55d0-...
  studio-ops entity set-field 9a1c55d0-... status won`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the entity catalog",
		RunE: func(c *cobra.Command, args []string) error {
			return runEntityList(c, deps)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show one entity in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runEntityShow(c, deps, args[0])
		},
	}

	setFieldCmd := &cobra.Command{
		Use:   "set-field <entity-id> <field> <value>",
		Short: "Apply a manual field edit",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			return runEntitySetField(c, deps, args[0], args[1], args[2])
		},
	}
	setFieldCmd.Flags().StringVar(&entityActor, "actor", "", "editor identity (default from config)")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	cmd.AddCommand(setFieldCmd)
	return cmd
}

func runEntityList(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	entities, err := rt.entities.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(entities)
	case config.OutputFormatYAML:
		return outputYAML(entities)
	default:
		return outputEntitiesTable(entities)
	}
}

func runEntityShow(c *cobra.Command, deps *Deps, arg string) error {
	id, err := parseUUID(arg, "entity ID")
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

	e, err := rt.entities.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting entity: %w", err)
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatYAML:
		return outputYAML(e)
	default:
		return outputJSON(e)
	}
}

func runEntitySetField(c *cobra.Command, deps *Deps, arg, field, value string) error {
	id, err := parseUUID(arg, "entity ID")
	if err != nil {
		return err
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	actor := entityActor
	if actor == "" {
		actor = rt.cfg.GetActor()
	}
	if actor == "" {
		return fmt.Errorf("no editor identity; set --actor or the actor config key")
	}

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	editor := entity.NewEditor(rt.entities, rt.audits, rt.tx, rt.log)
	if err := editor.SetField(ctx, id, field, value, actor); err != nil {
		return fmt.Errorf("setting field: %w", err)
	}

	fmt.Printf("Set %s on entity %s.\n", field, id)
	return nil
}

// outputEntitiesTable renders the catalog as a table.
func outputEntitiesTable(entities []entity.Entity) error {
	if len(entities) == 0 {
		fmt.Println("No entities found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCODE\tNAME\tCLIENT\tDOMAINS")
	fmt.Fprintln(w, "--\t----\t----\t----\t------\t-------")

	for _, e := range entities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(e.ID.String(), 8),
			e.Type,
			e.ShortCode,
			truncate(e.Name, 30),
			truncate(e.ClientName, 20),
			truncate(strings.Join(e.Domains, ","), 30))
	}

	return w.Flush()
}
