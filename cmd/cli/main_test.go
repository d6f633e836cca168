package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

func TestExecute_ShutsDownAfterFailedCommand(t *testing.T) {
	var mu sync.Mutex
	var delivered []notify.Email
	mailer := notify.MailerFunc(func(ctx context.Context, email notify.Email) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, email)
		return nil
	})

	queue := notify.NewQueue(mailer, notify.QueueConfig{Size: 10, Workers: 1}, zap.NewNop(), nil)
	queue.Start()

	unregistered := false
	cancelled := false
	rt := &resources{
		queue:      queue,
		unregister: func() { unregistered = true },
		cancel:     func() { cancelled = true },
	}

	root := &cobra.Command{
		Use:           "cli",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			require.NoError(t, queue.Send(context.Background(), notify.Email{Subject: "Shift was changed"}))
			return errors.New("failed to commit transaction")
		},
	}
	root.SetArgs([]string{})

	err := execute(root, rt)
	assert.ErrorContains(t, err, "failed to commit transaction")

	assert.True(t, unregistered)
	assert.True(t, cancelled)
	assert.Equal(t, 0, queue.Len())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Shift was changed", delivered[0].Subject)
}

func TestShutdown_EmptyResources(t *testing.T) {
	assert.NotPanics(t, func() { shutdown(&resources{}) })
}
