package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// mailDeadline drops a mail:send task that could not be delivered in time;
// its code would have expired by then.
const mailDeadline = 15 * time.Minute

// Client enqueues tasks from the API process.
type Client struct {
	client *asynq.Client
}

// NewClient connects an asynq client to redis.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSendEmail queues payload on the mail queue.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueMail),
		asynq.MaxRetry(5),
		asynq.Deadline(time.Now().Add(mailDeadline)),
	)
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
