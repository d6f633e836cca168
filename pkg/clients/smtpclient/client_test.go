package smtpclient

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/jakechorley/volunteer-planner/internal/config"
	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

func TestNewMessage(t *testing.T) {
	msg, err := newMessage(notify.Email{
		From:    "planner@example.com",
		To:      []string{"ops@example.com"},
		Bcc:     []string{"ada@example.com", "bob@example.com"},
		ReplyTo: []string{"ops@example.com"},
		Subject: "Shift on 02.06.25 was cancelled",
		Body:    "The shift is off.",
	})
	require.NoError(t, err)

	recipients, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ops@example.com", "ada@example.com", "bob@example.com"}, recipients)
	assert.Equal(t, []string{"Shift on 02.06.25 was cancelled"}, msg.GetGenHeader(mail.HeaderSubject))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Reply-To: <ops@example.com>")
	assert.Contains(t, buf.String(), "The shift is off.")
}

func TestNewMessage_InvalidAddress(t *testing.T) {
	_, err := newMessage(notify.Email{From: "planner@example.com", To: []string{"not an address"}})
	assert.ErrorContains(t, err, "invalid to address")
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "planner", Password: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, c.client)
}
