package propagate

import (
	"context"

	"github.com/slack-go/slack"
)

// slackNotifier adapts a *slack.Client to ChatNotifier. Channel ids play
// the role the original coordinator gave numeric Telegram chat ids.
type slackNotifier struct {
	client *slack.Client
}

// NewSlackNotifier builds the production ChatNotifier.
func NewSlackNotifier(client *slack.Client) ChatNotifier {
	return &slackNotifier{client: client}
}

func (s *slackNotifier) Notify(ctx context.Context, channelID, body string) error {
	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(body, false))
	return err
}
