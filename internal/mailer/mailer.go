package mailer

import (
	"context"
	"time"

	mail "github.com/wneessen/go-mail"
)

// Email is a rendered confirmation message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends email through one transport, typically an SMTP relay
// guarded by a micro circuit breaker.
type Mailer interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, e Email) error
}

// SMTPMailer sends via a single SMTP relay using go-mail.
type SMTPMailer struct {
	name   string
	sender string
	client *mail.Client
	br     *MicroBreaker
}

func NewSMTPMailer(
	name, host string, port int,
	username, password, sender string,
	timeout time.Duration,
	failThreshold, openForMs int,
) (*SMTPMailer, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, err
	}

	return &SMTPMailer{
		name:   name,
		sender: sender,
		client: client,
		br:     NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}, nil
}

func (s *SMTPMailer) Name() string  { return s.name }
func (s *SMTPMailer) Ready() bool   { return s.br.Ready() }
func (s *SMTPMailer) Acquire() bool { return s.br.TryAcquire() }

func (s *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := s.send(ctx, e); err != nil {
		s.br.OnFailure()
		return err
	}

	s.br.OnSuccess()

	return nil
}

func (s *SMTPMailer) send(ctx context.Context, e Email) error {
	m := mail.NewMsg()
	if err := m.From(s.sender); err != nil {
		return err
	}
	if err := m.To(e.To); err != nil {
		return err
	}

	m.Subject(e.Subject)
	m.SetBodyString(mail.TypeTextPlain, e.Text)
	m.AddAlternativeString(mail.TypeTextHTML, e.HTML)

	return s.client.DialAndSendWithContext(ctx, m)
}
