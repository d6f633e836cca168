package smtpclient

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/jakechorley/volunteer-planner/internal/config"
	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

// Client delivers notify.Email messages over SMTP
type Client struct {
	client *mail.Client
}

func NewClient(cfg config.SMTPConfig) (*Client, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.TLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Client{client: client}, nil
}

// Send dials the server for every message
func (c *Client) Send(ctx context.Context, email notify.Email) error {
	msg, err := newMessage(email)
	if err != nil {
		return err
	}

	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func newMessage(email notify.Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(email.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if len(email.To) > 0 {
		if err := msg.To(email.To...); err != nil {
			return nil, fmt.Errorf("invalid to address: %w", err)
		}
	}
	if len(email.Bcc) > 0 {
		if err := msg.Bcc(email.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc address: %w", err)
		}
	}
	if len(email.ReplyTo) > 0 {
		if err := msg.ReplyTo(email.ReplyTo[0]); err != nil {
			return nil, fmt.Errorf("invalid reply-to address: %w", err)
		}
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	return msg, nil
}
