// Package events consumes CRM lifecycle events from the shared SQS bus
// and hands them to the automation engine.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Config holds SQS configuration for the CRM event queue.
type Config struct {
	Region   string
	QueueURL string
}

// CRMEvent is the payload the CRM publishes on customer lifecycle changes.
// Trigger values match the automation trigger constants.
type CRMEvent struct {
	TenantID     string          `json:"tenant_id"`
	Trigger      string          `json:"trigger"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Contact      string          `json:"contact"`
	Data         json.RawMessage `json:"data,omitempty"`
	OccurredAt   int64           `json:"occurred_at"`
}

// Consumer reads CRM events from SQS with long polling.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("crm event consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Consumer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// ReceiveEvent retrieves one CRM event from SQS with long polling.
// Returns (nil, "", nil) when the poll times out with no messages.
func (c *Consumer) ReceiveEvent(ctx context.Context) (*CRMEvent, string, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("sqs receive failed: %w", err)
	}

	if len(result.Messages) == 0 {
		return nil, "", nil
	}

	msgData := result.Messages[0]

	var event CRMEvent
	if err := json.Unmarshal([]byte(*msgData.Body), &event); err != nil {
		c.logger.Error("failed to unmarshal crm event", zap.Error(err))
		return nil, "", fmt.Errorf("invalid event format: %w", err)
	}

	return &event, *msgData.ReceiptHandle, nil
}

// DeleteMessage removes an event from SQS after successful processing.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := c.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}

	return nil
}

// ChangeVisibility extends the visibility timeout for an event.
func (c *Consumer) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int32) error {
	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds,
	}

	_, err := c.client.ChangeMessageVisibility(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs change visibility failed: %w", err)
	}

	return nil
}

// EventHandler processes one CRM event. A non-nil error leaves the
// event on the queue for redelivery.
type EventHandler func(ctx context.Context, event *CRMEvent) error

// Run polls the queue until ctx is cancelled, invoking handler for
// each received event and deleting it on success.
func (c *Consumer) Run(ctx context.Context, handler EventHandler) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("crm event consumer stopping")
			return
		default:
		}

		event, receipt, err := c.ReceiveEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to receive crm event", zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}

		if err := handler(ctx, event); err != nil {
			c.logger.Error("failed to handle crm event",
				zap.Error(err),
				zap.String("trigger", event.Trigger),
				zap.String("tenant_id", event.TenantID),
			)
			continue
		}

		if err := c.DeleteMessage(ctx, receipt); err != nil {
			c.logger.Error("failed to delete crm event", zap.Error(err))
		}
	}
}

// Close closes the SQS consumer.
func (c *Consumer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
