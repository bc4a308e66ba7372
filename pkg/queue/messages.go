// Package queue provides the Redis-backed work queue feeding the linking
// pipeline.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority levels for queue messages.
type Priority int

const (
	PriorityLow    Priority = 0 // Backfill, re-matching after pattern changes
	PriorityNormal Priority = 1 // Batch ingest
	PriorityHigh   Priority = 2 // Live inbox sync
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// MessageType identifies the type of queue message.
type MessageType string

const (
	MessageTypeLink    MessageType = "link"
	MessageTypeRelearn MessageType = "relearn"
)

// Message is the base interface for all queue messages.
type Message interface {
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetMessageType returns the message type.
	GetMessageType() MessageType
	// GetBatchID returns the batch ID if part of a batch.
	GetBatchID() string
}

// LinkMessage asks the pipeline to match one stored email against the
// entity catalog.
type LinkMessage struct {
	EmailID    uuid.UUID `json:"email_id"`
	Priority   Priority  `json:"priority"`
	ReceivedAt time.Time `json:"received_at"`
	BatchID    string    `json:"batch_id,omitempty"`
}

func (m *LinkMessage) GetPriority() Priority       { return m.Priority }
func (m *LinkMessage) GetMessageType() MessageType { return MessageTypeLink }
func (m *LinkMessage) GetBatchID() string          { return m.BatchID }

// RelearnMessage asks the learner to sweep suggestions resolved since the
// given time and adjust pattern weights.
type RelearnMessage struct {
	Since    time.Time `json:"since"`
	Priority Priority  `json:"priority"`
	BatchID  string    `json:"batch_id,omitempty"`
}

func (m *RelearnMessage) GetPriority() Priority       { return m.Priority }
func (m *RelearnMessage) GetMessageType() MessageType { return MessageTypeRelearn }
func (m *RelearnMessage) GetBatchID() string          { return m.BatchID }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Message      json.RawMessage `json:"message"`
	MessageType  MessageType     `json:"message_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"` // For delayed visibility
}

// ParseMessage parses the raw message based on message type.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.MessageType {
	case MessageTypeLink:
		var msg LinkMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case MessageTypeRelearn:
		var msg RelearnMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue defines the interface for a message queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message to the queue.
	Enqueue(msg Message) error

	// EnqueueBatch adds multiple messages to the queue.
	EnqueueBatch(msgs []Message) error

	// Dequeue retrieves messages from the queue.
	// Returns up to maxMessages, blocks for timeout.
	Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(messageID string) error

	// Nack indicates processing failure, message will be retried.
	Nack(messageID string) error

	// MoveToDeadLetter moves a message to the dead letter queue.
	MoveToDeadLetter(messageID string, reason string) error

	// Depth returns the current queue depth.
	Depth() (int64, error)

	// Close closes the queue connection.
	Close() error
}

// Config configures queue behavior.
type Config struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultConfig returns the default configuration for the linking queue.
func DefaultConfig() Config {
	return Config{
		Name:              "linking:work",
		VisibilityTimeout: 60 * time.Second,
		MaxRetries:        3,
		RetentionPeriod:   24 * time.Hour,
	}
}

// Verify interface compliance
var _ Message = (*LinkMessage)(nil)
var _ Message = (*RelearnMessage)(nil)
