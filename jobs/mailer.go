package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/budgetblitz/budgetblitz/internal/auth"
)

// EmailEnqueuer queues mail:send tasks.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// Mailer implements auth.Notifier by queueing mail for the worker.
type Mailer struct {
	queue EmailEnqueuer
}

// NewMailer constructs a Mailer.
func NewMailer(queue EmailEnqueuer) *Mailer {
	return &Mailer{queue: queue}
}

// SendActivationCode queues the activation email.
func (m *Mailer) SendActivationCode(ctx context.Context, to auth.Recipient, code string) error {
	return m.enqueue(ctx, SendEmailPayload{
		To:       to.Email,
		Template: TemplateActivateAccount,
		FullName: to.FullName,
		Code:     code,
		Subject:  ActivationSubject,
	})
}

// SendResetCode queues the password reset email.
func (m *Mailer) SendResetCode(ctx context.Context, to auth.Recipient, code string) error {
	return m.enqueue(ctx, SendEmailPayload{
		To:       to.Email,
		Template: TemplateResetPassword,
		FullName: to.FullName,
		Code:     code,
		Subject:  ResetSubject(to.FullName, code),
	})
}

func (m *Mailer) enqueue(ctx context.Context, payload SendEmailPayload) error {
	_, err := m.queue.EnqueueSendEmail(ctx, payload)
	return err
}

var _ auth.Notifier = (*Mailer)(nil)
