package telegram

import (
	"errors"
	"testing"

	"github.com/m3rciful/shopbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	for name, cmd := range map[string]commands.Command{
		"/start":  {Handler: noop, Description: "Start", Aliases: []string{"menu"}},
		"/status": {Handler: noop, Description: "Stats", AdminOnly: true},
	} {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	for name, cmd := range map[string]commands.Command{
		"nosl":    {Handler: noop, Description: "skipped"},
		"/empty":  {Handler: noop},
		"/status": {Handler: noop, Description: "again"},
	} {
		if err := reg.RegisterCommand(name, cmd); !errors.Is(err, ErrInvalidRegistration) {
			t.Fatalf("%s: expected ErrInvalidRegistration, got %v", name, err)
		}
	}

	if got := len(reg.Commands()); got != 2 {
		t.Fatalf("expected 2 registered commands, got %d", got)
	}
	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "/start" {
		t.Fatalf("admin-only commands must be hidden, got %+v", visible)
	}
	if all := reg.ListCommands(false); len(all) != 2 || all[0].Text != "/start" || all[1].Text != "/status" {
		t.Fatalf("expected sorted full list, got %+v", all)
	}
	for _, name := range []string{"menu", "/menu", " start"} {
		if key, _, ok := reg.LookupCommand(name); !ok || key != "/start" {
			t.Fatalf("lookup %q failed: %q %v", name, key, ok)
		}
	}
	if _, _, ok := reg.LookupCommand("/unknown"); ok {
		t.Fatalf("unexpected lookup hit")
	}
}

type menuRecorder struct {
	calls [][]interface{}
}

func (m *menuRecorder) SetCommands(opts ...interface{}) error {
	m.calls = append(m.calls, opts)
	return nil
}

func TestSetupCommandsScopesAdminMenu(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"})
	_ = reg.RegisterCommand("/pending", commands.Command{Handler: noop, Description: "Pending", AdminOnly: true})
	_ = reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Debug", Hidden: true})

	rec := &menuRecorder{}
	SetupCommands(rec, reg, 7)
	if len(rec.calls) != 2 {
		t.Fatalf("expected public and admin menus, got %d calls", len(rec.calls))
	}
	if public := rec.calls[0][0].([]tele.Command); len(public) != 1 || public[0].Text != "/start" {
		t.Fatalf("unexpected public menu %+v", public)
	}
	admin := rec.calls[1][0].([]tele.Command)
	if len(admin) != 2 || admin[0].Text != "/pending" || admin[1].Text != "/start" {
		t.Fatalf("unexpected admin menu %+v", admin)
	}
	if scope, ok := rec.calls[1][1].(tele.CommandScope); !ok || scope.ChatID != 7 || scope.Type != tele.CommandScopeChat {
		t.Fatalf("admin menu not scoped to the admin chat: %#v", rec.calls[1])
	}

	rec = &menuRecorder{}
	SetupCommands(rec, reg, 0)
	if len(rec.calls) != 1 {
		t.Fatalf("without an admin only the public menu is set, got %d calls", len(rec.calls))
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("decide", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCallback("decide", noop); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected duplicate registration error")
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := reg.RegisterCallback("menu", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := reg.GetCallback("decide"); !ok {
		t.Fatalf("callback not found")
	}
	if keys := reg.ListCallbacks(); len(keys) != 2 || keys[0] != "decide" || keys[1] != "menu" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if reg.CallbackNotFound() == nil {
		t.Fatalf("default not-found handler missing")
	}
}
