package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/catalog"
	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/payment"
	"github.com/m3rciful/shopbot/internal/visitor"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.shop"

// StateAwaitingProof marks a buyer who was shown payment instructions.
const StateAwaitingProof state.State = "awaiting_proof"

const tempOrderID = "order_id"

// Orders is the workflow surface the handlers use.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (order.Order, error)
	SubmitProof(ctx context.Context, requesterID int64, proof order.Attachment) (order.Order, error)
	Decide(ctx context.Context, id order.ID, decision order.Decision, deciderID int64) (order.Result, error)
	Get(ctx context.Context, id order.ID) (order.Order, error)
	ListPending(ctx context.Context) ([]order.Order, error)
	Stats(ctx context.Context) (order.Stats, error)
	IsAdmin(principal int64) bool
	Texts() order.Texts
}

// Deps wires Handlers.
type Deps struct {
	Orders   Orders
	Catalog  *catalog.Catalog
	Payments *payment.Builder
	// Visitors is optional; without it every /start is a first visit.
	Visitors visitor.Store
	// FSM defaults to an in-memory manager.
	FSM   state.Manager
	Texts Texts
	// PendingLimit caps the orders listed by /pending.
	PendingLimit int
	// MenuColumns is the number of product buttons per menu row.
	MenuColumns int
}

// Handlers implements the shop conversation.
type Handlers struct {
	orders       Orders
	catalog      *catalog.Catalog
	payments     *payment.Builder
	visitors     visitor.Store
	fsm          state.Manager
	texts        Texts
	pendingLimit int
	menuColumns  int
}

// New validates deps and returns Handlers.
func New(d Deps) (*Handlers, error) {
	if d.Orders == nil {
		return nil, errors.New("bot: orders required")
	}
	if d.Catalog == nil {
		return nil, errors.New("bot: catalog required")
	}
	if d.Payments == nil {
		d.Payments = payment.NewBuilder(payment.Config{})
	}
	if d.FSM == nil {
		d.FSM = state.NewMemoryManager()
	}
	if d.PendingLimit <= 0 {
		d.PendingLimit = 20
	}
	h := &Handlers{
		orders:       d.Orders,
		catalog:      d.Catalog,
		payments:     d.Payments,
		visitors:     d.Visitors,
		fsm:          d.FSM,
		texts:        d.Texts.withDefaults(),
		pendingLimit: d.PendingLimit,
		menuColumns:  max(d.MenuColumns, 1),
	}
	h.fsm.Handle(StateAwaitingProof, h.onAwaitingProof)
	return h, nil
}

// Register adds the bot's commands and callbacks to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{
			Handler:     h.onStart,
			Description: "Show the catalog",
			Aliases:     []string{"menu"},
		}},
		{"/status", commands.Command{
			Handler:     h.onStatus,
			Description: "Order and visitor counters",
			AdminOnly:   true,
		}},
		{"/pending", commands.Command{
			Handler:     h.onPending,
			Description: "List pending orders",
			AdminOnly:   true,
		}},
		{"/order", commands.Command{
			Handler:     h.onOrder,
			Description: "Show an order: /order <id>",
			MinArgs:     1,
			Usage:       h.texts.OrderUsage,
			AdminOnly:   true,
		}},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, reg.RegisterCommand(c.name, c.cmd))
	}
	for _, key := range []string{KeyMenu, KeyProduct, KeyBuy, KeyDecide} {
		errs = append(errs, reg.RegisterCallback(key, h.onCallback))
	}
	return errors.Join(errs...)
}

// Routes returns every route of the bot. Register must run first.
func (h *Handlers) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin:       h.orders.IsAdmin,
		OnAdminReject: h.onAdminReject,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(h.fsm, reg, router.TextOptions{
		UnknownText: h.onUnknownText,
		Media:       h.onMedia,
	})...)
	return routes
}

// OnRateLimited answers throttled users.
func (h *Handlers) OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: h.texts.RateLimited})
	}
	return tghelpers.SendText(c, h.texts.RateLimited)
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	actor := ActorOf(c.Sender())

	first := true
	if h.visitors != nil && c.Sender() != nil {
		u := c.Sender()
		isNew, err := h.visitors.Register(ctx, visitor.Visitor{
			UserID:    u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			SeenAt:    time.Now().UTC(),
		})
		if err != nil {
			logger.Warn(ctx, component, "visitor.register",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		} else {
			first = isNew
		}
	}

	h.fsm.ClearState(actor.ID)

	name := ""
	if c.Sender() != nil {
		name = c.Sender().FirstName
	}
	if name == "" {
		name = actor.Name
	}
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{{Text: h.texts.MenuButton, Unique: KeyMenu}})
	return tghelpers.SendMD(c, h.texts.welcome(first, name), markup)
}

func (h *Handlers) onCallback(c tele.Context) error {
	ev, err := DecodeCallback(c)
	if err != nil {
		_ = c.Respond(&tele.CallbackResponse{Text: h.texts.GenericError})
		return err
	}
	ctx := tghelpers.BuildContext(c)

	switch e := ev.(type) {
	case MenuRequested:
		_ = c.Respond()
		return h.showMenu(c)
	case ProductSelected:
		_ = c.Respond()
		return h.showProduct(c, e.Key)
	case PurchaseIntent:
		_ = c.Respond()
		return h.purchase(ctx, c, e)
	case AdminDecision:
		return h.decide(tghelpers.WithOrder(c, int64(e.OrderID)), c, e)
	}
	_ = c.Respond()
	return nil
}

func (h *Handlers) price(p catalog.Product) string {
	return h.orders.Texts().Price(p.Snapshot())
}

func (h *Handlers) showMenu(c tele.Context) error {
	products := h.catalog.Products()
	if len(products) == 0 {
		return tghelpers.SendText(c, h.texts.EmptyCatalog)
	}
	buttons := make([]keyboard.InlineBtn, 0, len(products))
	for _, p := range products {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   productLabel(p, h.price(p)),
			Unique: KeyProduct,
			Data:   p.Key,
		})
	}
	return tghelpers.EditOrSendMD(c, h.texts.MenuTitle, keyboard.InlineButtonsNPerRow(buttons, h.menuColumns))
}

func (h *Handlers) showProduct(c tele.Context, key string) error {
	p, err := h.catalog.Lookup(key)
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: h.texts.BuyButton, Unique: KeyBuy, Data: p.Key}},
		[]keyboard.InlineBtn{{Text: h.texts.BackButton, Unique: KeyMenu}},
	)
	card := productCard(p, h.price(p))
	if p.Image != "" {
		return tghelpers.SendPhotoMD(c, p.Image, card, markup)
	}
	return tghelpers.EditOrSendMD(c, card, markup)
}

func (h *Handlers) purchase(ctx context.Context, c tele.Context, e PurchaseIntent) error {
	p, err := h.catalog.Lookup(e.Key)
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	o, err := h.orders.CreateOrder(ctx, order.CreateRequest{
		RequesterID:   e.Actor.ID,
		RequesterName: e.Actor.Name,
		Product:       p.Snapshot(),
	})
	if err != nil {
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	h.fsm.SetState(e.Actor.ID, StateAwaitingProof)
	h.fsm.SetTemp(e.Actor.ID, tempOrderID, int64(o.ID))

	price := h.orders.Texts().Price(o.Product)
	text := h.texts.paymentMessage(o, p.Description, price, h.payments.For(o.Product.Name, o.Product.Price))
	return tghelpers.SendMD(c, text)
}

func (h *Handlers) decide(ctx context.Context, c tele.Context, e AdminDecision) error {
	res, err := h.orders.Decide(ctx, e.OrderID, e.Decision, e.Actor.ID)
	if err != nil {
		_ = c.Respond(&tele.CallbackResponse{Text: h.texts.decisionAnswer(e.OrderID, err), ShowAlert: true})
		if errors.Is(err, order.ErrConflict) || errors.Is(err, order.ErrNotFound) {
			_ = c.Edit(&tele.ReplyMarkup{})
		}
		return err
	}
	h.fsm.ClearState(res.Order.RequesterID)

	tmpl := h.texts.Decided
	if res.NotifyErr != nil {
		tmpl = h.texts.DecidedNoReply
	}
	answer := fmt.Sprintf(tmpl, int64(res.Order.ID), res.Order.Status)
	_ = c.Respond(&tele.CallbackResponse{Text: answer})
	_ = c.Edit(&tele.ReplyMarkup{})
	return tghelpers.SendText(c, answer)
}

func (h *Handlers) onAwaitingProof(c tele.Context) error {
	if proof, ok := DecodeProof(ActorOf(c.Sender()), c.Message()); ok {
		return h.submitProof(c, proof)
	}
	id, _ := h.fsm.GetTempInt64(c.Sender().ID, tempOrderID)
	return tghelpers.SendText(c, fmt.Sprintf(h.texts.SendProof, id))
}

func (h *Handlers) onMedia(c tele.Context) error {
	proof, ok := DecodeProof(ActorOf(c.Sender()), c.Message())
	if !ok {
		return tghelpers.SendText(c, h.texts.UnknownText)
	}
	return h.submitProof(c, proof)
}

func (h *Handlers) submitProof(c tele.Context, proof ProofSubmitted) error {
	ctx := tghelpers.BuildContext(c)
	o, err := h.orders.SubmitProof(ctx, proof.Actor.ID, proof.Attachment)
	switch {
	case errors.Is(err, order.ErrNotFound):
		h.fsm.ClearState(proof.Actor.ID)
		return tghelpers.SendText(c, h.texts.NoPendingOrder)
	case errors.Is(err, order.ErrNotificationFailed):
		_ = tghelpers.SendText(c, h.texts.ProofRetry)
		return err
	case err != nil:
		_ = tghelpers.SendText(c, h.texts.GenericError)
		return err
	}
	h.fsm.ClearState(proof.Actor.ID)
	return tghelpers.SendText(c, fmt.Sprintf(h.texts.ProofReceived, int64(o.ID)))
}

func (h *Handlers) onUnknownText(c tele.Context) error {
	return tghelpers.SendText(c, h.texts.UnknownText)
}

func (h *Handlers) onAdminReject(c tele.Context) error {
	return tghelpers.SendText(c, h.texts.AdminOnly)
}
