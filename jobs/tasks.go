// Package jobs contains the asynq task definitions, the worker runtime and
// the mail delivery used by the password reset flow.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// SendEmailHandler returns the handler that delivers TaskTypeSendEmail
// tasks through the mailer.
func SendEmailHandler(mailer *Mailer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			logger.Warn("mail delivery failed", slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// PasswordResetBody renders the plain-text recovery mail.
func PasswordResetBody(username, resetURL string) string {
	return fmt.Sprintf(
		"Hola %s,\n\n"+
			"Recibimos una solicitud para restablecer tu contraseña en Via Libre.\n"+
			"Para continuar, abre el siguiente enlace:\n%s\n\n"+
			"Si no fuiste tú, puedes ignorar este mensaje.\n"+
			"— Equipo Via Libre\n",
		username, resetURL)
}
