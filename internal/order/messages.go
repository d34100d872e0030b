package order

import (
	"fmt"
	"strings"
)

// Texts holds the wording of workflow notifications.
type Texts struct {
	Currency string

	NewOrder       string // order id, requester name, requester id, product, price
	ProofReceived  string // order id, requester id, product, price
	Approved       string // product, link
	ApprovedNoLink string // product
	Rejected       string // product
	ApproveLabel   string
	RejectLabel    string
}

// DefaultTexts returns English notification texts.
func DefaultTexts() Texts {
	return Texts{
		Currency:       "€",
		NewOrder:       "📦 New order #%d\n👤 User: %s (%d)\n📺 Product: %s\n💰 Price: %s\n⏳ Waiting for payment confirmation.",
		ProofReceived:  "🧾 Proof of payment for order #%d\n👤 User: %d\n📺 Product: %s\n💰 Price: %s",
		Approved:       "✅ Your payment for %s was approved.\n\n🔗 Access: %s",
		ApprovedNoLink: "✅ Your payment for %s was approved. Support will contact you with access details.",
		Rejected:       "❌ Your payment for %s was rejected. Contact support if you think this is a mistake.",
		ApproveLabel:   "✅ Approve",
		RejectLabel:    "❌ Reject",
	}
}

func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	set := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	set(&t.Currency, d.Currency)
	set(&t.NewOrder, d.NewOrder)
	set(&t.ProofReceived, d.ProofReceived)
	set(&t.Approved, d.Approved)
	set(&t.ApprovedNoLink, d.ApprovedNoLink)
	set(&t.Rejected, d.Rejected)
	set(&t.ApproveLabel, d.ApproveLabel)
	set(&t.RejectLabel, d.RejectLabel)
	return t
}

// Price formats an amount with the configured currency.
func (t Texts) Price(p Product) string {
	return p.Price.StringFixed(2) + t.Currency
}

func (t Texts) newOrder(o Order, requesterName string) Message {
	name := strings.TrimSpace(requesterName)
	if name == "" {
		name = "anonymous"
	}
	return Message{
		Text:    fmt.Sprintf(t.NewOrder, int64(o.ID), name, o.RequesterID, o.Product.Name, t.Price(o.Product)),
		Actions: t.decisionActions(o.ID),
	}
}

func (t Texts) proofReceived(o Order, proof Attachment) Message {
	att := proof
	return Message{
		Text:       fmt.Sprintf(t.ProofReceived, int64(o.ID), o.RequesterID, o.Product.Name, t.Price(o.Product)),
		Attachment: &att,
		Actions:    t.decisionActions(o.ID),
	}
}

func (t Texts) decided(o Order) Message {
	switch o.Status {
	case StatusApproved:
		if strings.TrimSpace(o.Product.Link) == "" {
			return Message{Text: fmt.Sprintf(t.ApprovedNoLink, o.Product.Name)}
		}
		return Message{Text: fmt.Sprintf(t.Approved, o.Product.Name, o.Product.Link)}
	default:
		return Message{Text: fmt.Sprintf(t.Rejected, o.Product.Name)}
	}
}

func (t Texts) decisionActions(id ID) []Action {
	return []Action{
		{Label: t.ApproveLabel, OrderID: id, Decision: DecisionApprove},
		{Label: t.RejectLabel, OrderID: id, Decision: DecisionReject},
	}
}
