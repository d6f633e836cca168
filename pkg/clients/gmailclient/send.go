package gmailclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

const EMAIL_INTERVAL = 3 * time.Second

// Send delivers email through the Gmail API
// Throttles requests to respect Gmail API rate limits; the wait is abandoned if ctx ends
func (c *Client) Send(ctx context.Context, email notify.Email) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if wait := c.interval - time.Since(c.lastSendTime); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	gmailMessage := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(buildMessage(email)),
	}

	err := c.sendRaw(ctx, gmailMessage)
	c.lastSendTime = time.Now()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// buildMessage renders email as an RFC 5322 message. Gmail drops the Bcc header on delivery.
func buildMessage(email notify.Email) []byte {
	var b strings.Builder
	header := func(name string, values ...string) {
		if len(values) == 0 || (len(values) == 1 && values[0] == "") {
			return
		}
		fmt.Fprintf(&b, "%s: %s\r\n", name, strings.Join(values, ", "))
	}

	header("From", email.From)
	header("To", email.To...)
	header("Bcc", email.Bcc...)
	header("Reply-To", email.ReplyTo...)
	header("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(email.Body)

	return []byte(b.String())
}
