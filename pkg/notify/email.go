package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// Email sends trend update notifications over SMTP.
type Email struct {
	client *mail.Client
	from   string
}

// NewEmail creates an SMTP email notifier.
func NewEmail(host string, port int, username, password, from string) (*Email, error) {
	opts := []mail.Option{
		mail.WithPort(port),
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
		return nil, fmt.Errorf("create smtp client %s: %w", host, err)
	}
	return &Email{client: client, from: from}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, n *Notification) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("set from %s: %w", e.from, err)
	}
	if err := msg.To(n.Recipient); err != nil {
		return fmt.Errorf("set recipient %s: %w", n.Recipient, err)
	}

	msg.Subject(fmt.Sprintf("Trends Update for %s (version %d)", n.Query.Industry, n.Version))
	msg.SetBodyString(mail.TypeTextPlain, renderBody(n))

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", n.Recipient, err)
	}
	return nil
}

// renderBody builds the plain-text ranked trend list.
func renderBody(n *Notification) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Fresh trends for %s / %s / %s / %s (version %d):\n\n",
		n.Query.Industry, n.Query.Region, n.Query.Persona, n.Query.DateRange, n.Version)

	if len(n.Results) == 0 {
		b.WriteString("Nothing new was found this time around.\n")
	}
	for i, r := range n.Results {
		fmt.Fprintf(&b, "%d. %s (score %.2f)\n", i+1, r.Topic, r.FinalScore)
		if r.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", r.Summary)
		}
	}

	if n.DetailURL != "" {
		fmt.Fprintf(&b, "\nFull results: %s\n", n.DetailURL)
	}
	if n.UnsubscribeURL != "" {
		fmt.Fprintf(&b, "Unsubscribe: %s\n", n.UnsubscribeURL)
	}
	return b.String()
}
