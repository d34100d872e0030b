// Package payment builds the manual payment instructions shown after a
// purchase intent.
package payment

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Config lists the merchant accounts. Methods with an empty account are
// not offered.
type Config struct {
	PayPalUser  string `yaml:"paypal_user" envconfig:"PAYMENT_PAYPAL_USER"`
	MBWayNumber string `yaml:"mbway_number" envconfig:"PAYMENT_MBWAY_NUMBER"`
	SkrillEmail string `yaml:"skrill_email" envconfig:"PAYMENT_SKRILL_EMAIL"`
	// ReferencePrefix prefixes the Skrill payment reference.
	ReferencePrefix string `yaml:"reference_prefix" envconfig:"PAYMENT_REFERENCE_PREFIX"`
}

// Method is one way to pay.
type Method struct {
	Name string
	// Account is the payee handle: a URL, phone number or e-mail.
	Account string
	// Reference is the memo the buyer should attach, if any.
	Reference string
}

// Instructions are the payment options for a single order.
type Instructions struct {
	Amount  decimal.Decimal
	Methods []Method
}

// Empty reports whether no method is configured.
func (in Instructions) Empty() bool { return len(in.Methods) == 0 }

// Builder renders Instructions from Config.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	cfg.PayPalUser = strings.TrimSpace(cfg.PayPalUser)
	cfg.MBWayNumber = strings.TrimSpace(cfg.MBWayNumber)
	cfg.SkrillEmail = strings.TrimSpace(cfg.SkrillEmail)
	cfg.ReferencePrefix = strings.TrimSpace(cfg.ReferencePrefix)
	return &Builder{cfg: cfg}
}

// For returns the instructions for paying amount for productName.
func (b *Builder) For(productName string, amount decimal.Decimal) Instructions {
	in := Instructions{Amount: amount}
	if b.cfg.PayPalUser != "" {
		in.Methods = append(in.Methods, Method{Name: "PayPal", Account: PayPalLink(b.cfg.PayPalUser, amount)})
	}
	if b.cfg.MBWayNumber != "" {
		in.Methods = append(in.Methods, Method{Name: "MB WAY", Account: b.cfg.MBWayNumber})
	}
	if b.cfg.SkrillEmail != "" {
		in.Methods = append(in.Methods, Method{
			Name:      "Skrill",
			Account:   b.cfg.SkrillEmail,
			Reference: b.reference(productName),
		})
	}
	return in
}

func (b *Builder) reference(productName string) string {
	if b.cfg.ReferencePrefix == "" {
		return productName
	}
	return fmt.Sprintf("%s - %s", b.cfg.ReferencePrefix, productName)
}

// PayPalLink returns the PayPal.me link for user and amount.
func PayPalLink(user string, amount decimal.Decimal) string {
	return "https://www.paypal.com/paypalme/" + url.PathEscape(user) + "/" + amount.StringFixed(2)
}
