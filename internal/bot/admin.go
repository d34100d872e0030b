package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/internal/order"

	tele "gopkg.in/telebot.v4"
)

func (h *Handlers) onStatus(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "status")
	st, err := h.orders.Stats(ctx)
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	text := fmt.Sprintf(h.texts.StatusLine, st.Pending, st.Total)
	if h.visitors != nil {
		n, err := h.visitors.Count(ctx)
		if err != nil {
			logger.Warn(ctx, component, "visitor.count",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		} else {
			text += "\n" + fmt.Sprintf(h.texts.VisitorsLine, n)
		}
	}
	text += "\n" + fmt.Sprintf(h.texts.ProductsLine, h.catalog.Len())
	return tghelpers.SendText(c, text)
}

func (h *Handlers) onPending(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "pending")
	list, err := h.orders.ListPending(ctx)
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, h.texts.NoPending)
	}

	texts := h.orders.Texts()
	shown := list
	if len(shown) > h.pendingLimit {
		shown = shown[:h.pendingLimit]
	}
	for _, o := range shown {
		markup := DecisionMarkup([]order.Action{
			{Label: texts.ApproveLabel, OrderID: o.ID, Decision: order.DecisionApprove},
			{Label: texts.RejectLabel, OrderID: o.ID, Decision: order.DecisionReject},
		})
		if err := tghelpers.SendText(c, orderSummary(o, texts.Price(o.Product)), &tele.SendOptions{ReplyMarkup: markup}); err != nil {
			return err
		}
	}
	if rest := len(list) - len(shown); rest > 0 {
		return tghelpers.SendText(c, fmt.Sprintf(h.texts.MorePending, rest))
	}
	return nil
}

func (h *Handlers) onOrder(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "order")
	arg := strings.TrimPrefix(strings.TrimSpace(strings.Join(c.Args(), " ")), "#")
	id, err := order.ParseID(arg)
	if err != nil {
		return tghelpers.SendText(c, h.texts.OrderUsage)
	}
	ctx = tghelpers.WithOrder(c, int64(id))
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.decisionAnswer(id, err))
		return err
	}
	opts := &tele.SendOptions{}
	if o.Pending() {
		texts := h.orders.Texts()
		opts.ReplyMarkup = DecisionMarkup([]order.Action{
			{Label: texts.ApproveLabel, OrderID: o.ID, Decision: order.DecisionApprove},
			{Label: texts.RejectLabel, OrderID: o.ID, Decision: order.DecisionReject},
		})
	}
	return tghelpers.SendText(c, orderSummary(o, h.orders.Texts().Price(o.Product)), opts)
}
