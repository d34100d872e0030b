// Package order implements the order ledger and its approval workflow:
// purchase intents are recorded as pending orders and an administrator moves
// each of them exactly once to approved or rejected.
package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID identifies an order. IDs are issued in increasing order.
type ID int64

// String implements fmt.Stringer.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal order identifier.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, Validation("invalid order id %q", s)
	}
	return ID(v), nil
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is the administrator's verdict on a pending order.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision maps the wire form of a decision to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", Validation("unknown decision %q", s)
}

// Target returns the status a decision moves a pending order into.
func (d Decision) Target() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// Product is the snapshot of a catalog item copied into an order at purchase
// time. Later catalog edits never change it.
type Product struct {
	Key   string
	Name  string
	Price decimal.Decimal
	// Link is the fulfillment link or delivery note revealed on approval.
	Link string
}

// Order is one entry of the ledger.
type Order struct {
	ID          ID
	RequesterID int64
	Product     Product
	Status      Status
	CreatedAt   time.Time
	DecidedAt   *time.Time
	DecidedBy   int64
}

// Pending reports whether the order still awaits a decision.
func (o Order) Pending() bool {
	return o.Status == StatusPending
}

// Stats summarises the ledger.
type Stats struct {
	Pending int
	Total   int
}

// Attachment references a file already known to the messaging gateway,
// such as a proof-of-payment photo.
type Attachment struct {
	// Ref is the gateway-specific file reference.
	Ref  string
	Kind AttachmentKind
	Name string
}

// AttachmentKind distinguishes how an attachment is re-delivered.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)
