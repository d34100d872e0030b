package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/core/telegram/format"
	"github.com/m3rciful/shopbot/internal/catalog"
	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/payment"
)

// Texts is the user-facing wording of the bot. Templates are Markdown and
// interpolated values are escaped before use.
type Texts struct {
	Welcome      string // name
	WelcomeBack  string // name
	MenuButton   string
	MenuTitle    string
	EmptyCatalog string
	BuyButton    string
	BackButton   string

	OrderCreated    string // order id, product, price
	NoPaymentMethod string
	SendProof       string // order id
	ProofReceived   string // order id
	ProofRetry      string
	NoPendingOrder  string
	UnknownText     string
	AdminOnly       string
	RateLimited     string

	Decided        string // order id, status
	DecidedNoReply string // order id, status
	UnknownOrder   string // order id
	AlreadyDecided string // order id
	InvalidAction  string
	GenericError   string

	// Administrator commands.
	StatusLine   string // pending, total
	VisitorsLine string // visitors
	ProductsLine string // products
	NoPending    string
	MorePending  string // orders not shown
	OrderUsage   string
}

// DefaultTexts returns the English texts.
func DefaultTexts() Texts {
	return Texts{
		Welcome:      "👋 Welcome, %s!\n\nBrowse the catalog and pay with PayPal, MB WAY or Skrill. Access is delivered here once the payment is confirmed.",
		WelcomeBack:  "👋 Welcome back, %s!",
		MenuButton:   "🛒 Products",
		MenuTitle:    "🛒 *Products*\n\nChoose a product:",
		EmptyCatalog: "The catalog is empty right now. Please come back later.",
		BuyButton:    "💳 Buy",
		BackButton:   "⬅️ Back",

		OrderCreated:    "🧾 *Order #%d*\n📺 %s\n💰 %s",
		NoPaymentMethod: "Payment details will be sent to you by support.",
		SendProof:       "📸 After paying, send a photo or document of the receipt here. Order #%d stays pending until the administrator confirms it.",
		ProofReceived:   "✅ Receipt for order #%d received. You will be notified once it is reviewed.",
		ProofRetry:      "⚠️ The receipt could not be forwarded right now. Please send it again in a moment.",
		NoPendingOrder:  "You have no pending order. Use /start to pick a product first.",
		UnknownText:     "I did not understand that. Use /start to see the products.",
		AdminOnly:       "This command is only available to the administrator.",
		RateLimited:     "⏳ Slow down a little, please.",

		Decided:        "Order #%d %s. The buyer was notified.",
		DecidedNoReply: "Order #%d %s, but the buyer could not be notified.",
		UnknownOrder:   "Order #%d does not exist.",
		AlreadyDecided: "Order #%d was already decided.",
		InvalidAction:  "Invalid decision.",
		GenericError:   "Something went wrong. Please try again later.",

		StatusLine:   "📊 Orders: %d pending / %d total",
		VisitorsLine: "👥 Visitors: %d",
		ProductsLine: "🛒 Products: %d",
		NoPending:    "No pending orders.",
		MorePending:  "…and %d more. Decide these first.",
		OrderUsage:   "Usage: /order <id>",
	}
}

func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&t.Welcome, d.Welcome)
	fill(&t.WelcomeBack, d.WelcomeBack)
	fill(&t.MenuButton, d.MenuButton)
	fill(&t.MenuTitle, d.MenuTitle)
	fill(&t.EmptyCatalog, d.EmptyCatalog)
	fill(&t.BuyButton, d.BuyButton)
	fill(&t.BackButton, d.BackButton)
	fill(&t.OrderCreated, d.OrderCreated)
	fill(&t.NoPaymentMethod, d.NoPaymentMethod)
	fill(&t.SendProof, d.SendProof)
	fill(&t.ProofReceived, d.ProofReceived)
	fill(&t.ProofRetry, d.ProofRetry)
	fill(&t.NoPendingOrder, d.NoPendingOrder)
	fill(&t.UnknownText, d.UnknownText)
	fill(&t.AdminOnly, d.AdminOnly)
	fill(&t.RateLimited, d.RateLimited)
	fill(&t.Decided, d.Decided)
	fill(&t.DecidedNoReply, d.DecidedNoReply)
	fill(&t.UnknownOrder, d.UnknownOrder)
	fill(&t.AlreadyDecided, d.AlreadyDecided)
	fill(&t.InvalidAction, d.InvalidAction)
	fill(&t.GenericError, d.GenericError)
	fill(&t.StatusLine, d.StatusLine)
	fill(&t.VisitorsLine, d.VisitorsLine)
	fill(&t.ProductsLine, d.ProductsLine)
	fill(&t.NoPending, d.NoPending)
	fill(&t.MorePending, d.MorePending)
	fill(&t.OrderUsage, d.OrderUsage)
	return t
}

func (t Texts) welcome(first bool, name string) string {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	if first {
		return fmt.Sprintf(t.Welcome, format.MD(name))
	}
	return fmt.Sprintf(t.WelcomeBack, format.MD(name))
}

func productLabel(p catalog.Product, price string) string {
	return fmt.Sprintf("%s · %s", p.Name, price)
}

func productCard(p catalog.Product, price string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", format.MD(p.Name))
	if d := strings.TrimSpace(p.Description); d != "" {
		fmt.Fprintf(&b, "\n%s\n", format.MD(d))
	}
	fmt.Fprintf(&b, "\n💰 %s", format.MD(price))
	return b.String()
}

// paymentMessage renders the order summary, the product description when
// there is one, and the payment methods.
func (t Texts) paymentMessage(o order.Order, description, price string, in payment.Instructions) string {
	var b strings.Builder
	fmt.Fprintf(&b, t.OrderCreated, int64(o.ID), format.MD(o.Product.Name), format.MD(price))
	b.WriteString("\n\n")
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString(format.MD(d))
		b.WriteString("\n\n")
	}
	if in.Empty() {
		b.WriteString(t.NoPaymentMethod)
	}
	for _, m := range in.Methods {
		fmt.Fprintf(&b, "• *%s*: %s\n", format.MD(m.Name), format.MD(m.Account))
		if m.Reference != "" {
			fmt.Fprintf(&b, "  Reference: %s\n", format.MD(m.Reference))
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, t.SendProof, int64(o.ID))
	return b.String()
}

func orderSummary(o order.Order, price string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Order #%d · %s\n", int64(o.ID), o.Status)
	fmt.Fprintf(&b, "👤 User: %d\n", o.RequesterID)
	fmt.Fprintf(&b, "📺 Product: %s\n", o.Product.Name)
	fmt.Fprintf(&b, "💰 Price: %s\n", price)
	fmt.Fprintf(&b, "🕒 Created: %s", o.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	if o.DecidedAt != nil {
		fmt.Fprintf(&b, "\n⚖️ Decided: %s by %d", o.DecidedAt.UTC().Format("2006-01-02 15:04 MST"), o.DecidedBy)
	}
	return b.String()
}

// decisionAnswer is the callback answer shown to the administrator.
func (t Texts) decisionAnswer(id order.ID, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, order.ErrUnauthorized):
		return t.AdminOnly
	case errors.Is(err, order.ErrNotFound):
		return fmt.Sprintf(t.UnknownOrder, int64(id))
	case errors.Is(err, order.ErrConflict):
		return fmt.Sprintf(t.AlreadyDecided, int64(id))
	case errors.Is(err, order.ErrValidation):
		return t.InvalidAction
	}
	return t.GenericError
}
