package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/queue"
)

// Ingest command flags.
var (
	ingestSender   string
	ingestSubject  string
	ingestBody     string
	ingestBodyFile string
	ingestReceived string
	ingestEnqueue  bool
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store incoming messages for linking",
	}

	emailCmd := &cobra.Command{
		Use:   "email",
		Short: "Store one email message",
		Long: `Store one email message for the linking pipeline.

The message is written unprocessed; run 'studio-ops process batch' to
link it, or pass --enqueue to push it onto the Redis work queue.

Examples:
  studio-ops ingest email --sender anna@fjordhus.no --subject "Re: BK-033" --body-file msg.txt
  studio-ops ingest email --sender ola@voss.no --subject "Budget" --body "..." --enqueue`,
		RunE: func(c *cobra.Command, args []string) error {
			return runIngestEmail(c, deps)
		},
	}
	emailCmd.Flags().StringVar(&ingestSender, "sender", "", "sender address (required)")
	emailCmd.Flags().StringVar(&ingestSubject, "subject", "", "message subject")
	emailCmd.Flags().StringVar(&ingestBody, "body", "", "message body text")
	emailCmd.Flags().StringVar(&ingestBodyFile, "body-file", "", "read body from file")
	emailCmd.Flags().StringVar(&ingestReceived, "received", "", "received time (RFC 3339, default now)")
	emailCmd.Flags().BoolVar(&ingestEnqueue, "enqueue", false, "push a link message onto the work queue")
	_ = emailCmd.MarkFlagRequired("sender")

	cmd.AddCommand(emailCmd)
	return cmd
}

func runIngestEmail(c *cobra.Command, deps *Deps) error {
	body := ingestBody
	if ingestBodyFile != "" {
		data, err := os.ReadFile(ingestBodyFile)
		if err != nil {
			return fmt.Errorf("reading body file: %w", err)
		}
		body = string(data)
	}

	var receivedAt time.Time
	if ingestReceived != "" {
		t, err := time.Parse(time.RFC3339, ingestReceived)
		if err != nil {
			return fmt.Errorf("parsing --received: %w", err)
		}
		receivedAt = t
	}

	rt, err := openRuntime(c.Context(), deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext(c.Context(), rt.cfg)
	defer cancel()

	msg := &email.Email{
		Sender:     ingestSender,
		Subject:    ingestSubject,
		Body:       body,
		ReceivedAt: receivedAt,
	}
	if err := rt.emails.Create(ctx, msg); err != nil {
		return fmt.Errorf("storing email: %w", err)
	}

	if ingestEnqueue {
		redisClient := connectToRedis(rt.cfg)
		defer redisClient.Close()

		q := queue.NewRedisQueue(redisClient, queue.DefaultConfig())
		defer q.Close()

		linkMsg := &queue.LinkMessage{
			EmailID:    msg.ID,
			Priority:   queue.PriorityNormal,
			ReceivedAt: msg.ReceivedAt,
		}
		if err := q.Enqueue(linkMsg); err != nil {
			return fmt.Errorf("enqueueing link message: %w", err)
		}
	}

	switch rt.cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(msg)
	case config.OutputFormatYAML:
		return outputYAML(msg)
	default:
		fmt.Printf("Stored email %s from %s\n", msg.ID, msg.Sender)
		if ingestEnqueue {
			fmt.Println("Enqueued for processing.")
		}
		return nil
	}
}
