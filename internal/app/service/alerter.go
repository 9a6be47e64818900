package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/linkpulse/linkpulse/config"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"go.uber.org/zap"
)

// EmailSender is the mail transport behind spike alerts. Implementations
// report delivery acceptance only; there is no stronger guarantee.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SpikeAlerter composes and sends one spike alert e-mail.
type SpikeAlerter struct {
	logger  *zap.Logger
	sender  EmailSender
	baseURL string
}

// NewSpikeAlerter builds an alerter over the given transport. baseURL is
// used to render the short link in the message body.
func NewSpikeAlerter(logger *zap.Logger, sender EmailSender, baseURL string) *SpikeAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpikeAlerter{logger: logger, sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

// Alert sends the owner a notification about the earliest predicted spike.
// A transport failure is returned to the caller; deciding whether other
// links keep processing is the scheduler's job.
func (a *SpikeAlerter) Alert(ctx context.Context, owner *model.User, link *model.Link, point *model.ForecastPoint, baseline float64) error {
	subject := fmt.Sprintf("Traffic spike alert — %s", link.ShortCode)

	var b strings.Builder
	b.WriteString("A traffic spike is predicted for your link.\n\n")
	fmt.Fprintf(&b, "Link: %s/%s -> %s\n", a.baseURL, link.ShortCode, link.DestinationURL)
	fmt.Fprintf(&b, "Expected time: %s\n", point.PredictedAt.Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&b, "Predicted clicks: %d\n", point.PredictedClicks)
	fmt.Fprintf(&b, "Baseline avg/hr: %.1f\n", baseline)

	if err := a.sender.Send(ctx, owner.Email, subject, b.String()); err != nil {
		return fmt.Errorf("send spike alert: %w", err)
	}

	a.logger.Info("spike alert sent",
		zap.String("code", link.ShortCode),
		zap.String("recipient", owner.Email),
		zap.Int64("predicted_clicks", point.PredictedClicks),
		zap.Float64("baseline", baseline),
	)
	return nil
}

// smtpSender delivers mail over plain SMTP with AUTH PLAIN.
type smtpSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds the production EmailSender from config.
func NewSMTPSender(cfg config.SMTPConfig) EmailSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &smtpSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

func (s *smtpSender) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}
