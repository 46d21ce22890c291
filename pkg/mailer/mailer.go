package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
)

// AbsenceMail describes one absence alert to deliver.
type AbsenceMail struct {
	To           string
	StudentName  string
	CourseName   string
	AbsenceCount int
	Escalate     bool
}

// SMTPMailer delivers absence alerts over plain SMTP. When disabled it
// logs the message and reports success, which keeps development
// environments mail-free.
type SMTPMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

// NewSMTPMailer constructs the mailer.
func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// SendAbsenceAlert sends a warning or escalation mail depending on the
// Escalate flag. The returned message is surfaced in bulk results.
func (m *SMTPMailer) SendAbsenceAlert(ctx context.Context, mail AbsenceMail) (string, error) {
	subject, body := renderAbsenceMail(mail)

	if !m.cfg.Enabled {
		m.logger.Info("mail disabled, skipping delivery",
			zap.String("to", mail.To),
			zap.String("subject", subject),
		)
		return subject, nil
	}
	if mail.To == "" {
		return "", fmt.Errorf("recipient has no email address")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + mail.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{mail.To}, []byte(msg)); err != nil {
		return "", fmt.Errorf("send absence mail: %w", err)
	}
	return subject, nil
}

func renderAbsenceMail(mail AbsenceMail) (subject, body string) {
	name := mail.StudentName
	if name == "" {
		name = "student"
	}
	if mail.Escalate {
		subject = fmt.Sprintf("Attendance escalation: %d absences in %s", mail.AbsenceCount, mail.CourseName)
		body = fmt.Sprintf(
			"Dear %s,\n\nYou have been absent %d times in %s. Your enrollment is now under review. Please contact your teacher immediately.\n",
			name, mail.AbsenceCount, mail.CourseName)
		return subject, body
	}
	subject = fmt.Sprintf("Attendance warning: %d absences in %s", mail.AbsenceCount, mail.CourseName)
	body = fmt.Sprintf(
		"Dear %s,\n\nYou have been absent %d times in %s. Further absences may affect your standing in the course.\n",
		name, mail.AbsenceCount, mail.CourseName)
	return subject, body
}
