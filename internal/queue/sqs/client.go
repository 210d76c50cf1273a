package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	envConfig "github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/queue"
)

// maxWaitSeconds is the SQS long-polling ceiling
const maxWaitSeconds = 20

// API is the subset of the SQS client used by the queue
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type messageBody struct {
	EventID string `json:"event_id"`
}

// Client is the SQS-backed processing queue
type Client struct {
	client API
	config envConfig.SQS
	log    *zap.Logger

	mu       sync.Mutex
	buffered []types.Message
}

var _ queue.Queue = (*Client)(nil)

// NewClient creates a new SQS client
func NewClient(ctx context.Context, SQSConfig envConfig.SQS, log *zap.Logger) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(SQSConfig.Region),
	}

	var clientOpts []func(*sqs.Options)

	// Configure for local development with ElasticMQ
	if SQSConfig.Endpoint != "" {
		log.Info("Configuring SQS for local development",
			zap.String("endpoint", SQSConfig.Endpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))

		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(SQSConfig.Endpoint)
		})
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("SQS client created",
		zap.String("region", SQSConfig.Region),
		zap.String("queue_url", SQSConfig.QueueURL))

	return New(sqs.NewFromConfig(cfg, clientOpts...), SQSConfig, log), nil
}

// New wraps an existing SQS API implementation
func New(api API, SQSConfig envConfig.SQS, log *zap.Logger) *Client {
	if SQSConfig.MaxMessages < 1 {
		SQSConfig.MaxMessages = 1
	}
	return &Client{
		client: api,
		config: SQSConfig,
		log:    log,
	}
}

// QueueURL returns the configured queue URL
func (c *Client) QueueURL() string {
	return c.config.QueueURL
}

// Enqueue publishes an event id to SQS
func (c *Client) Enqueue(ctx context.Context, eventID string) error {
	bodyJSON, err := json.Marshal(messageBody{EventID: eventID})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.config.QueueURL),
		MessageBody: aws.String(string(bodyJSON)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"EventID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(eventID),
			},
		},
	})
	if err != nil {
		c.log.Error("Failed to send message to SQS",
			zap.String("event_id", eventID),
			zap.Error(err))
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	c.log.Debug("Event enqueued to SQS", zap.String("event_id", eventID))
	return nil
}

// Dequeue returns the next message, long-polling SQS when the local buffer is empty
func (c *Client) Dequeue(ctx context.Context, wait time.Duration) (*queue.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffered) == 0 {
		waitSeconds := int32(wait / time.Second)
		if waitSeconds > maxWaitSeconds {
			waitSeconds = maxWaitSeconds
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.config.QueueURL),
			MaxNumberOfMessages:   c.config.MaxMessages,
			WaitTimeSeconds:       waitSeconds,
			VisibilityTimeout:     c.config.VisibilityTimeout,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to receive messages from SQS: %w", err)
		}
		if len(result.Messages) == 0 {
			return nil, nil
		}

		c.log.Debug("Received messages from SQS", zap.Int("message_count", len(result.Messages)))
		c.buffered = append(c.buffered, result.Messages...)
	}

	for len(c.buffered) > 0 {
		msg := c.buffered[0]
		c.buffered = c.buffered[1:]

		var body messageBody
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &body); err != nil || body.EventID == "" {
			// malformed messages are deleted, never redelivered
			c.log.Error("Failed to parse message, deleting",
				zap.String("message_id", aws.ToString(msg.MessageId)),
				zap.Error(err))
			if delErr := c.deleteMessage(ctx, msg.ReceiptHandle); delErr != nil {
				c.log.Error("Failed to delete malformed message", zap.Error(delErr))
			}
			continue
		}

		handle := msg.ReceiptHandle
		return queue.NewEnvelope(body.EventID,
			func(ctx context.Context) error { return c.deleteMessage(ctx, handle) },
			func(ctx context.Context) error { return c.releaseMessage(ctx, handle) },
		), nil
	}

	return nil, nil
}

// Close is a no-op for SQS
func (c *Client) Close() error {
	return nil
}

func (c *Client) deleteMessage(ctx context.Context, receiptHandle *string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// releaseMessage makes the message visible again immediately
func (c *Client) releaseMessage(ctx context.Context, receiptHandle *string) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     receiptHandle,
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	return nil
}
