// Package bot is the Telegram messaging gateway of the shop: it turns
// updates into workflow calls and delivers workflow notifications.
package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	"github.com/m3rciful/shopbot/internal/order"

	tele "gopkg.in/telebot.v4"
)

// Callback keys. Each is registered with the core registry and decoded by
// Decode; nothing else inspects callback data.
const (
	KeyMenu    = "menu"
	KeyProduct = "product"
	KeyBuy     = "buy"
	KeyDecide  = "decide"
)

// ErrUnknownCallback is returned by Decode for keys the bot never issues.
var ErrUnknownCallback = errors.New("bot: unknown callback")

// Actor is the Telegram user behind an update.
type Actor struct {
	ID   int64
	Name string
}

// ActorOf extracts the sender of an update.
func ActorOf(u *tele.User) Actor {
	if u == nil {
		return Actor{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		if name == "" {
			name = "@" + u.Username
		} else {
			name += " (@" + u.Username + ")"
		}
	}
	return Actor{ID: u.ID, Name: name}
}

// Event is an inbound gateway event.
type Event interface {
	From() Actor
}

// MenuRequested asks for the product list.
type MenuRequested struct{ Actor Actor }

// ProductSelected asks for a product card.
type ProductSelected struct {
	Actor Actor
	Key   string
}

// PurchaseIntent registers an order for a product.
type PurchaseIntent struct {
	Actor Actor
	Key   string
}

// AdminDecision approves or rejects an order.
type AdminDecision struct {
	Actor    Actor
	OrderID  order.ID
	Decision order.Decision
}

// ProofSubmitted carries a proof of payment sent by a requester.
type ProofSubmitted struct {
	Actor      Actor
	Attachment order.Attachment
}

func (e MenuRequested) From() Actor   { return e.Actor }
func (e ProductSelected) From() Actor { return e.Actor }
func (e PurchaseIntent) From() Actor  { return e.Actor }
func (e AdminDecision) From() Actor   { return e.Actor }
func (e ProofSubmitted) From() Actor  { return e.Actor }

// Decode turns a callback key and payload into an Event.
func Decode(actor Actor, key, payload string) (Event, error) {
	switch key {
	case KeyMenu:
		return MenuRequested{Actor: actor}, nil
	case KeyProduct, KeyBuy:
		k := strings.TrimSpace(payload)
		if k == "" {
			return nil, order.Validation("%s callback without product key", key)
		}
		if key == KeyProduct {
			return ProductSelected{Actor: actor, Key: k}, nil
		}
		return PurchaseIntent{Actor: actor, Key: k}, nil
	case KeyDecide:
		parts, err := callbacks.PayloadParts(payload, "|", 2)
		if err != nil {
			return nil, order.Validation("malformed decision payload %q", payload)
		}
		d, err := order.ParseDecision(parts[0])
		if err != nil {
			return nil, err
		}
		id, err := callbacks.PayloadInt64(parts[1])
		if err != nil || id <= 0 {
			return nil, order.Validation("invalid order id %q", parts[1])
		}
		return AdminDecision{Actor: actor, OrderID: order.ID(id), Decision: d}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, key)
}

// DecodeCallback decodes the callback of c.
func DecodeCallback(c tele.Context) (Event, error) {
	key, payload := callbacks.ParseCallbackData(c.Callback())
	return Decode(ActorOf(c.Sender()), key, payload)
}

// DecodeProof extracts a proof of payment from a photo or document message.
func DecodeProof(actor Actor, msg *tele.Message) (ProofSubmitted, bool) {
	if msg == nil {
		return ProofSubmitted{}, false
	}
	switch {
	case msg.Photo != nil && msg.Photo.FileID != "":
		return ProofSubmitted{Actor: actor, Attachment: order.Attachment{
			Ref:  msg.Photo.FileID,
			Kind: order.AttachmentPhoto,
		}}, true
	case msg.Document != nil && msg.Document.FileID != "":
		return ProofSubmitted{Actor: actor, Attachment: order.Attachment{
			Ref:  msg.Document.FileID,
			Kind: order.AttachmentDocument,
			Name: msg.Document.FileName,
		}}, true
	}
	return ProofSubmitted{}, false
}

// EncodeDecision is the callback payload of a decision button.
func EncodeDecision(a order.Action) string {
	return string(a.Decision) + "|" + a.OrderID.String()
}
