package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marloweandco/studio-ops/credentials"
	"github.com/marloweandco/studio-ops/pkg/db"
	"github.com/marloweandco/studio-ops/pkg/queue"
)

// DB command flags.
var dbMigrationsDir string

// NewDBCommand creates the db command.
func NewDBCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
		Long: `Database maintenance: run schema migrations, check connection
health, and manage the stored database password.

Examples:
  studio-ops db migrate
  studio-ops db status
  studio-ops db health
  studio-ops db password`,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(c *cobra.Command, args []string) error {
			return runDBMigrate(c, deps)
		},
	}
	migrateCmd.Flags().StringVar(&dbMigrationsDir, "dir", "migrations", "migrations directory")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			return runDBStatus(c, deps)
		},
	}
	statusCmd.Flags().StringVar(&dbMigrationsDir, "dir", "migrations", "migrations directory")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check database and queue connectivity",
		RunE: func(c *cobra.Command, args []string) error {
			return runDBHealth(c, deps)
		},
	}

	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Store the database password encrypted at rest",
		RunE: func(c *cobra.Command, args []string) error {
			return runDBPassword(c, deps)
		},
	}

	cmd.AddCommand(migrateCmd)
	cmd.AddCommand(statusCmd)
	cmd.AddCommand(healthCmd)
	cmd.AddCommand(passwordCmd)
	return cmd
}

func runDBMigrate(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	result, err := db.RunMigrations(ctx, rt.pool, dbMigrationsDir)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Printf("Applied %d migrations, %d already up to date.\n", len(result.Applied), len(result.Skipped))
	for _, name := range result.Applied {
		fmt.Printf("  applied %s\n", name)
	}
	return nil
}

func runDBStatus(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	entries, err := db.MigrationStatus(ctx, rt.pool, dbMigrationsDir)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	for _, e := range entries {
		if e.AppliedAt != nil {
			fmt.Printf("  %s  applied %s\n", e.Version, formatTime(*e.AppliedAt))
		} else {
			fmt.Printf("  %s  pending\n", e.Version)
		}
	}
	return nil
}

func runDBHealth(c *cobra.Command, deps *Deps) error {
	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	status := db.Check(ctx, rt.pool)
	if status.Healthy {
		fmt.Printf("Database: healthy (latency %s, %d/%d conns in use)\n",
			status.Latency, status.AcquiredConns, status.TotalConns)
	} else {
		fmt.Printf("Database: UNHEALTHY: %v\n", status.Error)
	}

	redisClient := connectToRedis(rt.cfg)
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient, queue.DefaultConfig())
	defer q.Close()

	depth, err := q.Depth()
	if err != nil {
		fmt.Printf("Queue:    UNREACHABLE: %v\n", err)
	} else {
		fmt.Printf("Queue:    healthy (%d messages waiting)\n", depth)
	}

	if !status.Healthy {
		return fmt.Errorf("database health check failed")
	}
	return nil
}

func runDBPassword(c *cobra.Command, deps *Deps) error {
	fmt.Fprint(os.Stderr, "Database password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("opening credentials store: %w", err)
	}

	creds, err := store.Load()
	if err != nil {
		creds = &credentials.Credentials{}
	}
	creds.DBPassword = string(passBytes)

	if err := store.Save(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Println("Database password stored.")
	return nil
}
