// Package keyboard builds inline keyboards from flat button lists.
package keyboard

import (
	"slices"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn is a callback button: Unique routes it, Data is its payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// InlineButtons puts every button on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsNPerRow(buttons, 1)
}

// InlineButtonsRows lays buttons out exactly as the rows given.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{InlineKeyboard: make([][]tele.InlineButton, 0, len(rows))}
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	return markup
}

// InlineButtonsNPerRow fills rows of n buttons; the last row may be shorter.
// n below one means one button per row.
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	return InlineButtonsRows(slices.Collect(slices.Chunk(buttons, max(n, 1)))...)
}
