package state

import tele "gopkg.in/telebot.v4"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a user.
type Session struct {
	State    State
	TempData map[string]any
}

// Manager orchestrates user sessions and FSM state transitions.
type Manager interface {
	SetTemp(userID int64, key string, value any)
	GetTemp(userID int64, key string) (any, bool)
	GetTempInt64(userID int64, key string) (int64, bool)
	Clear(userID int64)

	SetState(userID int64, st State)
	GetState(userID int64) State
	ClearState(userID int64)

	// Handle binds a handler to a state. ManagerHandler dispatches to it.
	Handle(st State, h tele.HandlerFunc)
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}
