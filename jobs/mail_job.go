package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/budgetblitz/budgetblitz/internal/jobs"
)

// SendEmailJob renders and delivers queued mail:send tasks.
type SendEmailJob struct {
	Sender   Sender
	Renderer *Renderer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSendEmailJob initialises the mail handler.
func NewSendEmailJob(sender Sender, renderer *Renderer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{Sender: sender, Renderer: renderer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks. Payloads that cannot be rendered
// are dropped with asynq.SkipRetry; transport errors are returned for retry.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil || j.Renderer == nil {
		return errors.New("send email: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Error("decode mail payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := payload.Validate(); err != nil {
		j.logger().Error("invalid mail payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	body, err := j.Renderer.Render(payload)
	if err != nil {
		j.logger().Error("render mail", slog.String("template", string(payload.Template)), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	sendErr := j.Sender.Send(ctx, Message{To: payload.To, Subject: payload.Subject, HTML: body})
	j.Metrics.MailDelivered(string(payload.Template), sendErr)
	if sendErr != nil {
		j.logger().Warn("mail delivery failed", slog.String("template", string(payload.Template)), slog.Any("error", sendErr))
		return sendErr
	}
	j.logger().Info("mail delivered", slog.String("template", string(payload.Template)))
	return nil
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
