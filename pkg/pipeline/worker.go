package pipeline

import (
	"context"
	"time"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/learn"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/queue"
)

// WorkerConfig configures the queue worker.
type WorkerConfig struct {
	// BatchSize is how many messages one dequeue pulls.
	BatchSize int
	// PollTimeout is how long a single dequeue blocks when the queue is
	// empty.
	PollTimeout time.Duration
	// RecoverInterval is how often stale in-flight messages are swept back
	// onto the queue.
	RecoverInterval time.Duration
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:       10,
		PollTimeout:     5 * time.Second,
		RecoverInterval: time.Minute,
	}
}

// staleRecoverer is implemented by queues that track in-flight messages.
type staleRecoverer interface {
	RecoverStaleMessages() error
}

// Worker consumes the linking queue, running the processor for link
// messages and the learner for relearn messages.
type Worker struct {
	queue   queue.Queue
	proc    *Processor
	learner *learn.Learner
	cfg     WorkerConfig
	metrics *Metrics
	log     logging.Logger
}

// NewWorker creates a queue worker. metrics may be nil.
func NewWorker(q queue.Queue, proc *Processor, learner *learn.Learner, cfg WorkerConfig, metrics *Metrics, log logging.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultWorkerConfig().PollTimeout
	}
	if cfg.RecoverInterval <= 0 {
		cfg.RecoverInterval = DefaultWorkerConfig().RecoverInterval
	}
	return &Worker{queue: q, proc: proc, learner: learner, cfg: cfg, metrics: metrics, log: log}
}

// Run consumes the queue until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	sweep := time.NewTicker(w.cfg.RecoverInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			if r, ok := w.queue.(staleRecoverer); ok {
				if err := r.RecoverStaleMessages(); err != nil {
					w.log.Warn("stale message recovery failed", logging.Err(err))
				}
			}
			if depth, err := w.queue.Depth(); err == nil && w.metrics != nil {
				w.metrics.SetQueueDepth(w.queue.Name(), float64(depth))
			}
		default:
		}

		msgs, err := w.queue.Dequeue(w.cfg.BatchSize, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("dequeue failed", logging.Err(err))
			continue
		}

		for _, qm := range msgs {
			w.handle(ctx, qm)
		}
	}
}

func (w *Worker) handle(ctx context.Context, qm *queue.QueuedMessage) {
	msg, err := qm.ParseMessage()
	if err != nil {
		w.log.Error("unparseable queue message",
			logging.F("message_id", qm.ID), logging.Err(err))
		if err := w.queue.MoveToDeadLetter(qm.ID, "unparseable message"); err != nil {
			w.log.Error("dead-lettering failed", logging.Err(err))
		}
		if w.metrics != nil {
			w.metrics.RecordDLQItem(w.queue.Name(), "unparseable")
		}
		return
	}

	switch m := msg.(type) {
	case *queue.LinkMessage:
		_, err = w.proc.ProcessEmail(ctx, m.EmailID)
	case *queue.RelearnMessage:
		_, err = w.learner.Learn(ctx, m.Since)
	default:
		err = queue.ErrUnknownMessageType
	}

	if err != nil {
		pe := soerrors.Classify(err, string(qm.MessageType))
		w.log.Error("message processing failed",
			logging.F("message_id", qm.ID),
			logging.F("message_type", string(qm.MessageType)),
			logging.F("code", string(pe.Code)),
			logging.Err(err))

		// Retryable failures and shutdown go back on the queue; anything
		// that will fail the same way next time dead-letters immediately.
		if pe.Code.Retryable() || pe.Code == soerrors.ErrCodeContextCancelled {
			if nackErr := w.queue.Nack(qm.ID); nackErr != nil {
				w.log.Error("nack failed", logging.F("message_id", qm.ID), logging.Err(nackErr))
			}
			return
		}

		if dlqErr := w.queue.MoveToDeadLetter(qm.ID, string(pe.Code)); dlqErr != nil {
			w.log.Error("dead-lettering failed", logging.F("message_id", qm.ID), logging.Err(dlqErr))
		}
		if w.metrics != nil {
			w.metrics.RecordDLQItem(w.queue.Name(), string(pe.Code))
		}
		return
	}

	if err := w.queue.Ack(qm.ID); err != nil {
		w.log.Error("ack failed", logging.F("message_id", qm.ID), logging.Err(err))
	}
}
