package order

import "context"

// Action is an interactive control attached to an outgoing message that lets
// the recipient decide an order.
type Action struct {
	Label    string
	OrderID  ID
	Decision Decision
}

// Message is the payload handed to the messaging gateway.
type Message struct {
	Text       string
	Attachment *Attachment
	Actions    []Action
}

// Gateway is the outbound capability of the messaging gateway.
type Gateway interface {
	SendMessage(ctx context.Context, recipientID int64, msg Message) error
}

// EventSink receives lifecycle events after they are committed.
type EventSink interface {
	OrderCreated(ctx context.Context, o Order) error
	OrderDecided(ctx context.Context, o Order) error
}

// Recorder collects workflow metrics.
type Recorder interface {
	OrderCreated()
	OrderDecided(d Decision)
	ProofForwarded()
	NotificationFailed(purpose string)
}

// Authorizer reports whether principal may decide orders.
type Authorizer func(principal int64) bool

// SingleAdmin authorizes exactly one principal.
func SingleAdmin(adminID int64) Authorizer {
	return func(principal int64) bool {
		return adminID != 0 && principal == adminID
	}
}

type nopSink struct{}

func (nopSink) OrderCreated(context.Context, Order) error { return nil }
func (nopSink) OrderDecided(context.Context, Order) error { return nil }

type nopRecorder struct{}

func (nopRecorder) OrderCreated()             {}
func (nopRecorder) OrderDecided(Decision)     {}
func (nopRecorder) ProofForwarded()           {}
func (nopRecorder) NotificationFailed(string) {}
