package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// ErrInvalidRegistration is returned for commands or callbacks that cannot
// be routed: empty names, missing handlers or duplicates.
var ErrInvalidRegistration = errors.New("telegram: invalid registration")

// Registry maps slash commands and callback keys to handlers.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty Registry that answers unknown callbacks
// with a short notice.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("%w: command %q needs a slash prefix", ErrInvalidRegistration, name)
	case cmd.Handler == nil || cmd.Description == "":
		return fmt.Errorf("%w: command %s needs a handler and a description", ErrInvalidRegistration, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("%w: command %s registered twice", ErrInvalidRegistration, name)
	}
	r.commands[name] = cmd
	return nil
}

// ListCommands returns the commands sorted by name. With visibleOnly,
// admin-only and hidden commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	return r.menu(func(c commands.Command) bool { return !visibleOnly || c.Listed() })
}

func (r *Registry) menu(keep func(commands.Command) bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		if cmd := r.commands[name]; keep(cmd) {
			list = append(list, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	return list
}

// LookupCommand resolves name or one of the aliases, with or without the
// leading slash, to the registered command.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = "/" + strings.TrimPrefix(strings.TrimSpace(name), "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if "/"+strings.TrimPrefix(alias, "/") == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// RegisterCallback routes callbacks with the unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return fmt.Errorf("%w: callback %q needs a key and a handler", ErrInvalidRegistration, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("%w: callback %s registered twice", ErrInvalidRegistration, key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler of key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback handles text that matches no command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// commandSetter is the part of *tele.Bot SetupCommands needs.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands publishes the public command menu and, when adminID is set,
// a menu with every non-hidden command scoped to the administrator's chat.
func SetupCommands(bot commandSetter, reg *Registry, adminID int64) {
	if bot == nil || reg == nil {
		return
	}
	public := reg.ListCommands(true)
	publish(bot, "default", public)
	if adminID != 0 {
		admin := reg.menu(func(c commands.Command) bool { return !c.Hidden })
		publish(bot, "admin", admin, tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminID})
	}
}

func publish(bot commandSetter, scope string, list []tele.Command, opts ...interface{}) {
	ctx := context.Background()
	if err := bot.SetCommands(append([]interface{}{list}, opts...)...); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "register.commands.set_failed",
			slog.String("scope", scope),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "register.commands.set",
		slog.String("scope", scope),
		slog.Int("count", len(list)),
	)
}
