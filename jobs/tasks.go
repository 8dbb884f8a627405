package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueMail carries mail:send tasks.
	QueueMail = "mail"
	// QueueMaintenance carries scheduled housekeeping such as codes:purge.
	QueueMaintenance = "maintenance"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeCodes removes one-time codes that can no longer be redeemed.
	TaskTypePurgeCodes = "codes:purge"
)

// Template identifies the body rendered for an email.
type Template string

const (
	TemplateActivateAccount Template = "activate_account"
	TemplateResetPassword   Template = "reset_password"
)

// ActivationSubject is the subject line of activation emails.
const ActivationSubject = "Activate Your BudgetBlitz Account - Use Your Verification Code"

// ResetSubject builds the subject line of password reset emails.
func ResetSubject(fullName, code string) string {
	return fmt.Sprintf("%s, here's your PIN %s (valid 15 minutes)", fullName, code)
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To       string   `json:"to"`
	Template Template `json:"template"`
	FullName string   `json:"fullName"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject"`
}

// Validate reports payloads that can never be delivered.
func (p SendEmailPayload) Validate() error {
	if strings.TrimSpace(p.To) == "" {
		return errors.New("mail: recipient is required")
	}
	switch p.Template {
	case TemplateActivateAccount, TemplateResetPassword:
	default:
		return fmt.Errorf("mail: unknown template %q", p.Template)
	}
	if p.Code == "" {
		return errors.New("mail: code is required")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// PurgeCodesPayload configures a purge run.
type PurgeCodesPayload struct {
	// RetainHours keeps expired codes around for this long before deletion.
	RetainHours int `json:"retain_hours"`
}

// NewPurgeCodesTask constructs the cron task for code purging.
func NewPurgeCodesTask(retainHours int) (*asynq.Task, error) {
	data, err := json.Marshal(PurgeCodesPayload{RetainHours: retainHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePurgeCodes, data, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)), nil
}
