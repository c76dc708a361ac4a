// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// send_cmd.go - One-shot send.
//
// Command: send, ask [--chat ID] <text...>
//
// The reply is streamed to stdout as it arrives. Without --chat a new
// conversation is created; the command then waits for its title.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/parley/internal/chat"
)

// HandleSend sends one message and prints the reply.
func HandleSend(ctx context.Context, app *App, args Args, std Streams) error {
	text := strings.TrimSpace(strings.Join(args.Positional, " "))
	if text == "" {
		piped, err := readAllStdin()
		if err != nil {
			return err
		}
		text = strings.TrimSpace(piped)
	}
	if text == "" {
		return fmt.Errorf("%w: nothing to send\nUsage: parley send [--chat ID] <text>", ErrUsage)
	}

	if err := loadChats(ctx, app); err != nil {
		return err
	}
	if args.ChatID != "" {
		id, err := resolveChat(app.Store.Snapshot(), args.ChatID)
		if err != nil {
			return err
		}
		if err := app.Store.Select(ctx, id); err != nil {
			return err
		}
	} else {
		app.Store.NewConversation()
	}

	var out io.Writer = std.Out
	if args.JSON {
		out = io.Discard
	}
	echo := newReplyEcho(out)
	cancel := app.Store.Subscribe(echo.observe)
	sendErr := app.Store.Send(ctx, text)
	cancel()
	echo.finish()

	if sendErr != nil {
		return sendErr
	}
	if args.ChatID == "" {
		app.Store.WaitTasks()
	}

	snap := app.Store.Snapshot()
	conv, _ := snap.Active()
	reply := ""
	if last := conv.LastMessage(); last != nil {
		reply = last.Text()
	}
	if args.JSON {
		return NewJSONResponse("send", SendData{ChatID: conv.ID, Title: conv.DisplayTitle(), Reply: reply}).PrintTo(std.Out)
	}
	if !args.Quiet {
		fmt.Fprintln(std.Err, DimStyle.Render(fmt.Sprintf("[%s] %s", conv.ID, conv.DisplayTitle())))
	}
	return nil
}

// =============================================================================
// STREAM ECHO
// =============================================================================

// replyEcho writes the growing reply of the active conversation as it
// streams. Only new text is written; the reload after the stream is not
// echoed.
type replyEcho struct {
	w io.Writer

	mu      sync.Mutex
	printed int
	started bool
}

func newReplyEcho(w io.Writer) *replyEcho {
	return &replyEcho{w: w}
}

// observe is a chat.Store subscriber.
func (e *replyEcho) observe(ev chat.Event) {
	if ev.Kind != chat.EventChanged || ev.Snapshot.Phase != chat.PhaseStreaming {
		return
	}
	conv, ok := ev.Snapshot.Active()
	if !ok {
		return
	}
	last := conv.LastMessage()
	if last == nil || !last.Streaming() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	text := last.Text()
	if len(text) <= e.printed {
		return
	}
	e.started = true
	fmt.Fprint(e.w, text[e.printed:])
	e.printed = len(text)
}

// finish ends the echoed reply with a newline.
func (e *replyEcho) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		fmt.Fprintln(e.w)
	}
}
