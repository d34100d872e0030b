package bot

import (
	"context"
	"errors"

	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/internal/order"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the gateway uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Gateway delivers workflow notifications through Telegram.
type Gateway struct {
	bot  Sender
	disp *tgsender.Dispatcher
}

var _ order.Gateway = (*Gateway)(nil)

// NewGateway returns a Gateway. When disp is not nil, sends go through its
// retry policy.
func NewGateway(bot Sender, disp *tgsender.Dispatcher) *Gateway {
	return &Gateway{bot: bot, disp: disp}
}

// SendMessage delivers msg to recipientID. Attachments are re-sent by file
// reference with the text as caption; actions become inline buttons.
func (g *Gateway) SendMessage(ctx context.Context, recipientID int64, msg order.Message) error {
	if g == nil || g.bot == nil {
		return errors.New("bot: gateway not configured")
	}
	what, endpoint := content(msg)
	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if len(msg.Actions) > 0 {
		opts.ReplyMarkup = DecisionMarkup(msg.Actions)
	}
	send := func() error {
		_, err := g.bot.Send(tele.ChatID(recipientID), what, opts)
		return err
	}
	if g.disp == nil {
		return send()
	}
	return g.disp.Do(ctx, "notify", endpoint, send)
}

func content(msg order.Message) (interface{}, string) {
	if msg.Attachment == nil || msg.Attachment.Ref == "" {
		return msg.Text, "sendMessage"
	}
	file := tele.File{FileID: msg.Attachment.Ref}
	if msg.Attachment.Kind == order.AttachmentDocument {
		return &tele.Document{File: file, Caption: msg.Text, FileName: msg.Attachment.Name}, "sendDocument"
	}
	return &tele.Photo{File: file, Caption: msg.Text}, "sendPhoto"
}

// DecisionMarkup renders decision actions as one row of inline buttons.
func DecisionMarkup(actions []order.Action) *tele.ReplyMarkup {
	row := make([]keyboard.InlineBtn, 0, len(actions))
	for _, a := range actions {
		row = append(row, keyboard.InlineBtn{Text: a.Label, Unique: KeyDecide, Data: EncodeDecision(a)})
	}
	return keyboard.InlineButtonsRows(row)
}
