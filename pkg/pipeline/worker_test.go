package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/queue"
)

// fakeQueue records acks, nacks and dead-letter moves.
type fakeQueue struct {
	acked       []string
	nacked      []string
	deadLetters map[string]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{deadLetters: map[string]string{}}
}

func (q *fakeQueue) Name() string                        { return "test" }
func (q *fakeQueue) Enqueue(queue.Message) error         { return nil }
func (q *fakeQueue) EnqueueBatch([]queue.Message) error  { return nil }
func (q *fakeQueue) Depth() (int64, error)               { return 0, nil }
func (q *fakeQueue) Close() error                        { return nil }
func (q *fakeQueue) Ack(id string) error                 { q.acked = append(q.acked, id); return nil }
func (q *fakeQueue) Nack(id string) error                { q.nacked = append(q.nacked, id); return nil }
func (q *fakeQueue) MoveToDeadLetter(id, reason string) error {
	q.deadLetters[id] = reason
	return nil
}
func (q *fakeQueue) Dequeue(int, time.Duration) ([]*queue.QueuedMessage, error) {
	return nil, nil
}

func queuedLinkMessage(t *testing.T, emailID uuid.UUID) *queue.QueuedMessage {
	t.Helper()
	raw, err := json.Marshal(&queue.LinkMessage{EmailID: emailID, Priority: queue.PriorityNormal})
	require.NoError(t, err)
	return &queue.QueuedMessage{
		ID:          uuid.New().String(),
		Message:     raw,
		MessageType: queue.MessageTypeLink,
		Priority:    queue.PriorityNormal,
		EnqueuedAt:  time.Now(),
	}
}

func TestWorkerHandleAcksOnSuccess(t *testing.T) {
	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "anna@fjordhus.no",
		Subject:    "hello",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)
	proc, _, _ := newTestProcessor(t, emails, &memEntities{})

	q := newFakeQueue()
	w := NewWorker(q, proc, nil, DefaultWorkerConfig(), nil, logging.NewNopLogger())

	qm := queuedLinkMessage(t, msg.ID)
	w.handle(context.Background(), qm)

	assert.Equal(t, []string{qm.ID}, q.acked)
	assert.Empty(t, q.nacked)
}

func TestWorkerHandleNacksOnFailure(t *testing.T) {
	// Unknown email ID makes processing fail.
	emails := newMemEmails()
	proc, _, _ := newTestProcessor(t, emails, &memEntities{})

	q := newFakeQueue()
	w := NewWorker(q, proc, nil, DefaultWorkerConfig(), nil, logging.NewNopLogger())

	qm := queuedLinkMessage(t, uuid.New())
	w.handle(context.Background(), qm)

	assert.Empty(t, q.acked)
	assert.Equal(t, []string{qm.ID}, q.nacked)
}

func TestWorkerHandleDeadLettersUnparseable(t *testing.T) {
	emails := newMemEmails()
	proc, _, _ := newTestProcessor(t, emails, &memEntities{})

	q := newFakeQueue()
	w := NewWorker(q, proc, nil, DefaultWorkerConfig(), nil, logging.NewNopLogger())

	qm := &queue.QueuedMessage{
		ID:          uuid.New().String(),
		Message:     []byte("{}"),
		MessageType: queue.MessageType("bogus"),
	}
	w.handle(context.Background(), qm)

	assert.Empty(t, q.acked)
	assert.Empty(t, q.nacked)
	assert.Contains(t, q.deadLetters, qm.ID)
}

// failingEntities fails every catalog scan with a validation error.
type failingEntities struct {
	memEntities
}

func (f *failingEntities) ListAll(ctx context.Context) ([]entity.Entity, error) {
	return nil, fmt.Errorf("catalog row failed schema validation: %w", soerrors.ErrValidation)
}

func TestWorkerHandleDeadLettersNonRetryable(t *testing.T) {
	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "anna@fjordhus.no",
		Subject:    "hello",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)
	proc, _, _ := newTestProcessor(t, emails, &failingEntities{})

	q := newFakeQueue()
	w := NewWorker(q, proc, nil, DefaultWorkerConfig(), nil, logging.NewNopLogger())

	qm := queuedLinkMessage(t, msg.ID)
	w.handle(context.Background(), qm)

	assert.Empty(t, q.acked)
	assert.Empty(t, q.nacked)
	assert.Equal(t, string(soerrors.ErrCodeProcessing), q.deadLetters[qm.ID])
}

var _ entity.Repository = (*memEntities)(nil)
var _ queue.Queue = (*fakeQueue)(nil)
