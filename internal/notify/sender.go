package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"SMTS-backend/internal/platform/config"
)

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// 接続・各 SMTP コマンドの上限。ctx の期限が短ければそちらが優先
const smtpTimeout = 20 * time.Second

// SMTPSender は go-mail で送る（STARTTLS はサーバが対応していれば使う）
type SMTPSender struct {
	from    string
	deliver func(ctx context.Context, msgs ...*mail.Msg) error
}

func NewSMTPSender(c config.MailConfig) (*SMTPSender, error) {
	from := c.From
	if from == "" {
		from = c.User
	}
	opts := []mail.Option{
		mail.WithPort(c.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(smtpTimeout),
	}
	if c.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.User),
			mail.WithPassword(c.Password),
		)
	}
	client, err := mail.NewClient(c.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{from: from, deliver: client.DialAndSendWithContext}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("mail from %q: %w", s.from, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail to %v: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

// LogSender: メール未設定時。送信内容をログに出すだけ
type LogSender struct{ log *slog.Logger }

func NewLogSender(log *slog.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("mail not configured, skipping send", "to", msg.To, "subject", msg.Subject)
	return nil
}
