package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

const (
	// visibilityTimeoutSeconds hides a received message from other
	// consumers long enough for one dispatch attempt; undeleted messages
	// become redeliverable afterwards.
	visibilityTimeoutSeconds int32 = 30

	codeQueueAlreadyExists = "QueueAlreadyExists"
	codeMessageNotFound    = "MessageNotFound"
)

// AzureQueue adapts one Azure Queue Storage queue to the Queue interface.
type AzureQueue struct {
	name   string
	client *azqueue.QueueClient
	log    *slog.Logger
}

// NewAzureQueue builds a queue adapter from a storage connection string.
func NewAzureQueue(connectionString, name string, log *slog.Logger) (*AzureQueue, error) {
	client, err := azqueue.NewQueueClientFromConnectionString(connectionString, name, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize queue client %q: %w", name, err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &AzureQueue{
		name:   name,
		client: client,
		log:    log.With("component", "queue.azure", "queue", name),
	}, nil
}

// Name returns the queue name for logs and status reporting.
func (q *AzureQueue) Name() string {
	return q.name
}

func (q *AzureQueue) EnsureExists(ctx context.Context) error {
	_, err := q.client.Create(ctx, nil)
	if err != nil && !hasErrorCode(err, codeQueueAlreadyExists) {
		return fmt.Errorf("create queue %q: %w", q.name, err)
	}

	q.log.Debug("Queue ready")
	return nil
}

func (q *AzureQueue) Enqueue(ctx context.Context, payload string) error {
	if _, err := q.client.EnqueueMessage(ctx, payload, nil); err != nil {
		return fmt.Errorf("enqueue to %q: %w", q.name, err)
	}

	return nil
}

func (q *AzureQueue) Receive(ctx context.Context) (*Message, error) {
	count := int32(1)
	visibility := visibilityTimeoutSeconds

	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  &count,
		VisibilityTimeout: &visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %q: %w", q.name, err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	raw := resp.Messages[0]
	msg := &Message{}
	if raw.MessageID != nil {
		msg.ID = *raw.MessageID
	}
	if raw.MessageText != nil {
		msg.Payload = *raw.MessageText
	}
	if raw.PopReceipt != nil {
		msg.PopReceipt = *raw.PopReceipt
	}
	if raw.DequeueCount != nil {
		msg.Deliveries = *raw.DequeueCount
	}

	return msg, nil
}

func (q *AzureQueue) Delete(ctx context.Context, id, popReceipt string) error {
	_, err := q.client.DeleteMessage(ctx, id, popReceipt, nil)
	if err != nil {
		// Already acknowledged, or redelivered and acknowledged elsewhere.
		if hasErrorCode(err, codeMessageNotFound) {
			q.log.Debug("Delete of missing message ignored", "message_id", id)
			return nil
		}
		return fmt.Errorf("delete message %q from %q: %w", id, q.name, err)
	}

	return nil
}

// hasErrorCode reports whether err is an Azure service error with the code.
func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}

	return respErr.ErrorCode == code
}
