// Package pipeline runs stored emails through the matcher and persists the
// resulting links and suggestions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marloweandco/studio-ops/pkg/db"
	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/link"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/match"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

// DefaultConcurrency is the default number of concurrent workers for batch
// processing.
const DefaultConcurrency = 4

// Outcome summarizes what processing one email produced.
type Outcome struct {
	EmailID          uuid.UUID
	AlreadyProcessed bool
	Candidates       int
	Links            int
	Suggestions      int
}

// BatchResult aggregates outcomes over one batch run.
type BatchResult struct {
	Total       int
	Processed   int
	Skipped     int
	Failed      int
	Links       int
	Suggestions int
	StartedAt   time.Time
	CompletedAt time.Time
}

// SnapshotSource serves the pattern snapshot a match run should use.
// pattern.Store is the production implementation.
type SnapshotSource interface {
	Snapshot() *pattern.Snapshot
}

// Processor matches emails against the entity catalog and persists links
// and suggestions in a single transaction per email.
type Processor struct {
	emails    email.Repository
	entities  entity.Repository
	links     link.Repository
	patterns  SnapshotSource
	matcher   *match.Matcher
	generator *suggest.Generator
	tx        db.Transactor
	metrics   *Metrics
	tracer    *Tracer
	log       logging.Logger
}

// NewProcessor creates a Processor. metrics may be nil to disable recording.
func NewProcessor(
	emails email.Repository,
	entities entity.Repository,
	links link.Repository,
	patterns SnapshotSource,
	matcher *match.Matcher,
	generator *suggest.Generator,
	tx db.Transactor,
	metrics *Metrics,
	log logging.Logger,
) *Processor {
	return &Processor{
		emails:    emails,
		entities:  entities,
		links:     links,
		patterns:  patterns,
		matcher:   matcher,
		generator: generator,
		tx:        tx,
		metrics:   metrics,
		tracer:    NewTracer(),
		log:       log,
	}
}

// ProcessEmail runs one stored email through the matcher and persists the
// results. Already-processed emails are skipped. All writes for one email
// happen in a single transaction, so a failure leaves the email unprocessed
// and a later run picks it up again.
func (p *Processor) ProcessEmail(ctx context.Context, emailID uuid.UUID) (*Outcome, error) {
	started := time.Now()

	ctx, span := p.tracer.StartEmailSpan(ctx, emailID, "")
	var retErr error
	defer func() { EndSpan(span, retErr) }()

	msg, err := p.emails.GetByID(ctx, emailID)
	if err != nil {
		retErr = fmt.Errorf("loading email: %w", err)
		return nil, retErr
	}

	out := &Outcome{EmailID: emailID}
	if msg.Processed() {
		out.AlreadyProcessed = true
		p.recordProcessed("skipped", started)
		return out, nil
	}

	matchCtx, matchSpan := p.tracer.StartMatchSpan(ctx)
	catalog, err := p.entities.ListAll(matchCtx)
	if err != nil {
		EndSpan(matchSpan, err)
		retErr = fmt.Errorf("loading entity catalog: %w", err)
		return nil, retErr
	}

	cands := p.matcher.Match(msg, catalog, p.patterns.Snapshot())
	EndSpan(matchSpan, nil)
	out.Candidates = len(cands)

	byID := make(map[uuid.UUID]*entity.Entity, len(catalog))
	for i := range catalog {
		byID[catalog[i].ID] = &catalog[i]
	}

	persistCtx, persistSpan := p.tracer.StartPersistSpan(ctx)
	err = p.tx.RunInTx(persistCtx, func(txCtx context.Context) error {
		for _, cand := range cands {
			l := linkFromCandidate(msg.ID, cand)
			if err := p.links.UpsertAuto(txCtx, l); err != nil {
				return fmt.Errorf("writing link for entity %s: %w", cand.EntityID, err)
			}
			out.Links++
			if p.metrics != nil {
				p.metrics.RecordCandidate(string(cand.EntityType), cand.Confidence)
				p.metrics.RecordLink(string(l.Method))
			}

			e, ok := byID[cand.EntityID]
			if !ok {
				continue
			}
			created, err := p.generator.Generate(txCtx, msg, cand, e)
			if err != nil {
				return fmt.Errorf("generating suggestions for entity %s: %w", cand.EntityID, err)
			}
			out.Suggestions += len(created)
			if p.metrics != nil {
				for _, s := range created {
					p.metrics.RecordSuggestion(s.Field)
				}
			}
		}
		return p.emails.MarkProcessed(txCtx, msg.ID)
	})
	EndSpan(persistSpan, err)
	if err != nil {
		p.recordProcessed("failed", started)
		retErr = err
		return nil, retErr
	}

	p.recordProcessed("ok", started)
	p.log.Info("processed email",
		logging.F("email_id", msg.ID.String()),
		logging.F("candidates", out.Candidates),
		logging.F("links", out.Links),
		logging.F("suggestions", out.Suggestions))
	return out, nil
}

// ProcessBatch matches up to limit unprocessed emails using a pool of
// concurrent workers. Per-email failures are logged and counted; a store
// outage or a canceled context aborts the whole batch.
func (p *Processor) ProcessBatch(ctx context.Context, limit, concurrency int) (*BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	pending, err := p.emails.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed emails: %w", err)
	}

	result := &BatchResult{Total: len(pending), StartedAt: time.Now()}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, msg := range pending {
		id := msg.ID
		g.Go(func() error {
			out, err := p.ProcessEmail(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if isFatal(err) {
					return err
				}
				result.Failed++
				p.log.Error("email processing failed",
					logging.F("email_id", id.String()), logging.Err(err))
				return nil
			}
			if out.AlreadyProcessed {
				result.Skipped++
				return nil
			}
			result.Processed++
			result.Links += out.Links
			result.Suggestions += out.Suggestions
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	result.CompletedAt = time.Now()
	return result, nil
}

// isFatal reports whether an error should abort the whole batch rather than
// fail a single email.
func isFatal(err error) bool {
	return soerrors.IsStoreUnavailable(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (p *Processor) recordProcessed(status string, started time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordProcessed(status, time.Since(started).Seconds())
}

// linkFromCandidate converts a scored match candidate into a persistable
// link. Any pattern hit in the evidence makes the whole link a pattern link.
func linkFromCandidate(emailID uuid.UUID, cand match.Candidate) *link.Link {
	method := link.MethodHeuristic
	evidence := make([]link.Evidence, 0, len(cand.Evidence))
	for _, sig := range cand.Evidence {
		if sig.PatternID != uuid.Nil {
			method = link.MethodPattern
		}
		evidence = append(evidence, link.Evidence{
			Category:  sig.Category.String(),
			Detail:    sig.Detail,
			Weight:    sig.Weight,
			PatternID: sig.PatternID,
		})
	}
	return &link.Link{
		EmailID:    emailID,
		EntityID:   cand.EntityID,
		Confidence: cand.Confidence,
		Method:     method,
		Evidence:   evidence,
	}
}
