package jobs

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends plain-text mail over SMTP. Local development points it at a
// catcher such as Mailpit.
type Mailer struct {
	host string
	port int
	from string
}

// NewMailer constructs a Mailer.
func NewMailer(host string, port int, from string) *Mailer {
	return &Mailer{host: host, port: port, from: from}
}

// Send delivers one message. The context is honored up front only; net/smtp
// does not support mid-dial cancellation.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	return smtp.SendMail(addr, nil, m.from, []string{to}, []byte(msg.String()))
}
