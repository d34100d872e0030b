package telegram

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// ShopUpdates are the update types the shop handles. Asking Telegram for
// nothing else keeps edited messages and chat member noise out of the bot.
var ShopUpdates = []string{"message", "callback_query"}

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
	// SecretToken is echoed by Telegram in every webhook request.
	SecretToken string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// AllowedUpdates defaults to ShopUpdates.
	AllowedUpdates []string
}

// BuildPoller returns the long poller or webhook selected by opts.RunMode.
func BuildPoller(opts PollerOptions) (tele.Poller, error) {
	allowed := opts.AllowedUpdates
	if len(allowed) == 0 {
		allowed = ShopUpdates
	}

	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		wh := opts.Webhook
		if strings.TrimSpace(wh.URL) == "" {
			return nil, errors.New("telegram: webhook mode needs a public URL")
		}
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			SecretToken:    wh.SecretToken,
			AllowedUpdates: allowed,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}, nil
	}

	timeout := defaultLongPoll
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowed}, nil
}
