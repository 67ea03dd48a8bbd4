package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

// slackAPI captures the subset of the Slack client we use so it can be
// mocked in tests.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackPublisher delivers alerts to a Slack channel.
type SlackPublisher struct {
	client  slackAPI
	channel string
}

func NewSlackPublisher(token, channel string) (*SlackPublisher, error) {
	if token == "" {
		return nil, errors.New("slack token is required")
	}
	return newSlackPublisher(slack.New(token), channel)
}

func newSlackPublisher(client slackAPI, channel string) (*SlackPublisher, error) {
	if channel == "" {
		return nil, errors.New("slack channel is required")
	}
	return &SlackPublisher{client: client, channel: channel}, nil
}

func (p *SlackPublisher) Name() string { return "slack" }

func (p *SlackPublisher) Publish(ctx context.Context, subject, message string) error {
	text := fmt.Sprintf("*%s*\n%s", subject, message)
	_, _, err := p.client.PostMessageContext(ctx, p.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", p.channel, err)
	}
	return nil
}
