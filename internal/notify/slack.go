// Package notify posts run summaries to an operator channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/history-sweeper/internal/sweep"
)

// Notifier delivers a run summary. Delivery failures are logged by the
// caller and never affect the run outcome.
type Notifier interface {
	Notify(ctx context.Context, sum *sweep.Summary) error
}

// SlackNotifier posts summaries to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier for the given bot token and channel.
func NewSlackNotifier(token, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Notify posts the summary as a single message.
func (n *SlackNotifier) Notify(ctx context.Context, sum *sweep.Summary) error {
	text := fmt.Sprintf("History sweeper finished: %s", sum.String())
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: post summary: %w", err)
	}
	n.logger.Debug().Str("channel", n.channel).Msg("summary posted")
	return nil
}
