package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client and implements notify.Mailer
type Client struct {
	userID   string
	interval time.Duration
	sendRaw  func(ctx context.Context, msg *gmail.Message) error

	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client that sends as userID ("me" for the token owner)
// The token must carry the gmail.send scope
func NewClient(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, userID string) (*Client, error) {
	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	c := &Client{userID: userID, interval: EMAIL_INTERVAL}
	c.sendRaw = func(ctx context.Context, msg *gmail.Message) error {
		_, err := service.Users.Messages.Send(c.userID, msg).Context(ctx).Do()
		return err
	}
	return c, nil
}
