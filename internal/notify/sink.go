package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/iliyamo/grievance-portal/internal/config"
)

// Sink delivers a message.  It reports success and never returns an
// error: failures are logged at the sink boundary.
type Sink interface {
	Send(ctx context.Context, m Message) bool
}

// NewSink picks the SMTP transport when a host is configured and the
// outbox file otherwise.
func NewSink(cfg config.MailConfig, log *slog.Logger) (Sink, error) {
	if cfg.Host == "" {
		return NewFileSink(cfg.Outbox, log), nil
	}
	return NewSMTPSink(cfg, log)
}

// SMTPSink sends mail through an SMTP relay.
type SMTPSink struct {
	client *mail.Client
	from   string
	log    *slog.Logger
}

func NewSMTPSink(cfg config.MailConfig, log *slog.Logger) (*SMTPSink, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSink{client: c, from: cfg.From, log: log.With("component", "smtp")}, nil
}

func (s *SMTPSink) Send(ctx context.Context, m Message) bool {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		s.log.Error("invalid sender", "from", s.from, "err", err)
		return false
	}
	if err := msg.To(m.To); err != nil {
		s.log.Warn("invalid recipient", "to", m.To, "err", err)
		return false
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	if m.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.log.Warn("send failed", "to", m.To, "subject", m.Subject, "err", err)
		return false
	}
	s.log.Info("email sent", "to", m.To, "subject", m.Subject)
	return true
}

// FileSink appends each message to a local outbox file as a single line.
// It stands in for a mail relay in development.
type FileSink struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileSink(path string, log *slog.Logger) *FileSink {
	return &FileSink{
		path: path,
		log:  log.With("component", "outbox"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *FileSink) Send(_ context.Context, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLine(m); err != nil {
		s.log.Warn("write outbox failed", "path", s.path, "err", err)
		return false
	}
	return true
}

func (s *FileSink) appendLine(m Message) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir outbox: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Email | to=%s | subject=%q | body=%q\n",
		s.now().Format(time.RFC3339), m.To, m.Subject, strings.TrimSpace(m.Text))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}
