package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 10 * time.Second

// Sender *mail.Client 实现了它，测试里替换成假的
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type SMTPGateway struct {
	Host     string
	Port     int
	Username string // 为空时不做 SMTP AUTH
	Password string
	From     string
	Timeout  time.Duration // 连接与读写超时，<=0 时 10s
	Renderer *Renderer
	Sender   Sender // nil 时按 Host/Port 新建 go-mail 客户端
}

func (g *SMTPGateway) timeout() time.Duration {
	if g.Timeout <= 0 {
		return defaultSMTPTimeout
	}
	return g.Timeout
}

func (g *SMTPGateway) sender() (Sender, error) {
	if g.Sender != nil {
		return g.Sender, nil
	}
	opts := []mail.Option{
		mail.WithPort(g.Port),
		mail.WithTimeout(g.timeout()),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if g.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.Username),
			mail.WithPassword(g.Password),
		)
	}
	c, err := mail.NewClient(g.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func (g *SMTPGateway) message(n Notification) (*mail.Msg, error) {
	subject, body, err := g.Renderer.Render(n)
	if err != nil {
		return nil, err
	}
	m := mail.NewMsg()
	if err := m.From(g.From); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", g.From, err)
	}
	if err := m.To(n.To); err != nil {
		return nil, fmt.Errorf("smtp to %q: %w", n.To, err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

// Dispatch 整个投递（拨号、AUTH、DATA）受 ctx 与 Timeout 约束
func (g *SMTPGateway) Dispatch(ctx context.Context, n Notification) error {
	m, err := g.message(n)
	if err != nil {
		return err
	}
	s, err := g.sender()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	if err := s.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", n.To, err)
	}
	return nil
}
