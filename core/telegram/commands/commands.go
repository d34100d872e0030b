// Package commands describes slash commands registered with the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command and its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// MinArgs is the number of arguments Handler needs. With fewer, Usage
	// is sent back and Handler does not run.
	MinArgs int
	Usage   string
	// AdminOnly commands are guarded and never listed in the public menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}

// Guarded returns Handler behind the MinArgs check.
func (c Command) Guarded() tele.HandlerFunc {
	if c.MinArgs <= 0 || c.Handler == nil {
		return c.Handler
	}
	return func(ctx tele.Context) error {
		if len(ctx.Args()) >= c.MinArgs {
			return c.Handler(ctx)
		}
		if c.Usage == "" {
			return nil
		}
		return ctx.Send(c.Usage)
	}
}
