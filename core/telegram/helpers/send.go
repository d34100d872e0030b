package helpers

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendMD sends a message with Markdown parse mode and optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm}
	return SendText(c, text, opts)
}

// EditOrSendMD edits the callback's message (Markdown) or sends a new one
// when there is nothing to edit or the edit fails, e.g. on photo messages.
func EditOrSendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm}
	if c.Callback() != nil {
		err := c.Edit(text, opts)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
	}
	return SendText(c, text, opts)
}

// SendPhotoMD sends a photo (URL, local file or file ID) with a Markdown caption.
func SendPhotoMD(c tele.Context, ref, caption string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	photo := &tele.Photo{File: PhotoFile(ref), Caption: caption}
	return sendAsync(c, "send.photo", "sendPhoto", func() error {
		return c.Send(photo, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm})
	})
}

// PhotoFile resolves ref as a URL, an existing local file, or otherwise a
// Telegram file ID.
func PhotoFile(ref string) tele.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tele.FromURL(ref)
	}
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		return tele.FromDisk(ref)
	}
	return tele.File{FileID: ref}
}
