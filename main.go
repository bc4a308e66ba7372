// Package main provides the studio-ops CLI entry point.
// studio-ops links incoming email to the studio's proposals, projects,
// and contacts, and manages the suggestion and review workflow that
// keeps entity fields current.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/cmd"
	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/buildinfo"
)

// Global flags.
var (
	flagTimeout time.Duration
	flagOutput  string
	flagActor   string
	flagDebug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "studio-ops",
	Short: "Studio operations - email linking and entity suggestions",
	Long: `studio-ops links incoming email to the studio's proposals, projects,
and contacts.

The matcher scores each stored email against the entity catalog using
short codes, known contacts, client domains, learned patterns, and fuzzy
name matching. Confident matches become links; extraction rules turn
linked emails into field-change suggestions that a human approves or
denies. Every applied change carries a full provenance trail.

COMMON WORKFLOWS:
  Link new mail:     studio-ops ingest email ...  ->  studio-ops process batch
  Review changes:    studio-ops suggestions list  ->  studio-ops review approve <id>
  Teach the matcher: studio-ops patterns learn    ->  studio-ops patterns activate <id>
  Trace a value:     studio-ops audit history <entity-id> --field status

DISCOVERY:
  studio-ops <command> --help   Subcommands, flags, and examples
  studio-ops db health          Database and queue connectivity`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Flag overrides land in the environment so every config load in
		// the command tree sees them.
		if flagTimeout != 0 {
			os.Setenv("STUDIO_OPS_TIMEOUT", flagTimeout.String())
		}
		if flagOutput != "" {
			if !config.OutputFormat(flagOutput).IsValid() {
				return fmt.Errorf("invalid output format %q (want text, json, or yaml)", flagOutput)
			}
			os.Setenv("STUDIO_OPS_OUTPUT_FORMAT", flagOutput)
		}
		if flagActor != "" {
			os.Setenv("STUDIO_OPS_ACTOR", flagActor)
		}
		if flagDebug {
			os.Setenv("STUDIO_OPS_DEBUG", "true")
		}
		return nil
	},
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(c *cobra.Command, args []string) error {
		if flagOutput == "json" {
			return json.NewEncoder(os.Stdout).Encode(buildinfo.Get("studio-ops"))
		}
		fmt.Printf("studio-ops %s\n", buildinfo.String())
		return nil
	},
}

// configCmd manages the local configuration file.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage local configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		path, _ := config.ConfigPath()
		fmt.Printf("# %s\n", path)
		fmt.Printf("timeout: %s\n", cfg.Timeout)
		fmt.Printf("output_format: %s\n", cfg.OutputFormat)
		fmt.Printf("actor: %s\n", cfg.GetActor())
		if cfg.Database.IsConfigured() {
			fmt.Printf("database: %s@%s/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Database)
		} else {
			fmt.Println("database: (not configured, using environment)")
		}
		fmt.Printf("redis: %s\n", cfg.Redis.GetAddr())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(c *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("writing configuration: %w", err)
		}
		path, _ := config.ConfigPath()
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:       "completion [bash|zsh|fish|powershell]",
	Short:     "Generate shell completion scripts",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(c *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "command timeout (e.g. 30s, 2m)")
	rootCmd.PersistentFlags().StringVar(&flagOutput, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "identity recorded on edits and reviews")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	deps := cmd.DefaultDeps()

	rootCmd.AddCommand(cmd.NewIngestCommand(deps))
	rootCmd.AddCommand(cmd.NewProcessCommand(deps))
	rootCmd.AddCommand(cmd.NewSuggestionsCommand(deps))
	rootCmd.AddCommand(cmd.NewReviewCommand(deps))
	rootCmd.AddCommand(cmd.NewLinksCommand(deps))
	rootCmd.AddCommand(cmd.NewAuditCommand(deps))
	rootCmd.AddCommand(cmd.NewPatternsCommand(deps))
	rootCmd.AddCommand(cmd.NewEntityCommand(deps))
	rootCmd.AddCommand(cmd.NewDBCommand(deps))

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func main() {
	// Signal handling for graceful shutdown. The worker command relies on
	// context cancellation to drain in-flight messages.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
