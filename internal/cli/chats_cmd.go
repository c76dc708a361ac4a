// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats_cmd.go - Conversation listing and editing.
//
// Command: list, ls [--search Q]
// Command: show <id|n>
// Command: rename <id|n> <title...>
// Command: delete, rm <id|n> [--yes]
//
// A conversation is named by its id or by its 1-based position in the
// unfiltered list.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/ui/styles"
	"github.com/jeranaias/parley/internal/util"
)

// loadChats checks the session and loads the conversation list.
func loadChats(ctx context.Context, app *App) error {
	if err := requireSession(app); err != nil {
		return err
	}
	return app.Store.Load(ctx)
}

// resolveChat maps ref to a conversation id.
func resolveChat(snap chat.Snapshot, ref string) (string, error) {
	if _, ok := snap.Find(ref); ok {
		return ref, nil
	}
	if i, ok := parseIndex(ref, len(snap.Conversations)); ok {
		return snap.Conversations[i].ID, nil
	}
	return "", fmt.Errorf("%w: %s", chat.ErrNotFound, ref)
}

// =============================================================================
// LIST
// =============================================================================

// HandleList prints the conversation list.
func HandleList(ctx context.Context, app *App, args Args, std Streams) error {
	if err := loadChats(ctx, app); err != nil {
		return err
	}
	search := args.Search
	if search == "" {
		search = strings.Join(args.Positional, " ")
	}
	app.Store.SetSearchQuery(search)
	snap := app.Store.Snapshot()
	convs := snap.Filtered()

	if args.JSON {
		data := make([]ConversationData, 0, len(convs))
		for _, c := range convs {
			data = append(data, toConversationData(c, false))
		}
		return NewJSONResponse("list", data).PrintTo(std.Out)
	}

	if len(convs) == 0 {
		if search != "" {
			fmt.Fprintf(std.Out, "No conversations match %q.\n", search)
		} else {
			fmt.Fprintln(std.Out, "No conversations yet. Start one with 'parley send' or 'parley chat'.")
		}
		return nil
	}
	printConversationTable(std.Out, snap, convs, GetTerminalWidth(), time.Now())
	return nil
}

// printConversationTable writes one line per conversation. The number is
// the position in the unfiltered list so it can be used as a reference.
func printConversationTable(w io.Writer, snap chat.Snapshot, convs []model.Conversation, width int, now time.Time) {
	position := make(map[string]int, len(snap.Conversations))
	for i, c := range snap.Conversations {
		position[c.ID] = i + 1
	}

	titleWidth := width - 4 - 2 - 12 - 2 - 10
	if titleWidth < 16 {
		titleWidth = 16
	}
	for _, c := range convs {
		marker := "  "
		title := util.PadRight(c.DisplayTitle(), titleWidth)
		if c.ID == snap.ActiveID {
			marker = HighlightStyle.Render("* ")
			title = HighlightStyle.Render(title)
		}
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n",
			marker,
			position[c.ID],
			title,
			DimStyle.Render(util.PadRight(c.ID, 12)),
			DimStyle.Render(formatAge(c.CreatedAt, now)))
	}
}

// =============================================================================
// SHOW
// =============================================================================

// HandleShow prints one conversation's messages.
func HandleShow(ctx context.Context, app *App, args Args, std Streams) error {
	if err := requireArgs(args, 1, "parley show <id|n>"); err != nil {
		return err
	}
	if err := loadChats(ctx, app); err != nil {
		return err
	}
	id, err := resolveChat(app.Store.Snapshot(), args.Positional[0])
	if err != nil {
		return err
	}
	if err := app.Store.Select(ctx, id); err != nil {
		return err
	}
	conv, ok := app.Store.Snapshot().Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrNotFound, id)
	}

	if args.JSON {
		return NewJSONResponse("show", toConversationData(conv, true)).PrintTo(std.Out)
	}
	md := newMarkdown(app, IsStdoutTTY())
	printConversation(std.Out, conv, md, GetTerminalWidth())
	return nil
}

// newMarkdown returns the reply renderer, or nil when markdown is off or
// output is not a terminal.
func newMarkdown(app *App, tty bool) *styles.Markdown {
	return styles.NewMarkdown(app.Config.UI.Markdown && tty, app.Config.UI.Theme)
}

func printConversation(w io.Writer, conv model.Conversation, md *styles.Markdown, width int) {
	fmt.Fprintln(w, TitleStyle.Render(conv.DisplayTitle()))
	if len(conv.Messages) == 0 {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for i, m := range conv.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printMessage(w, m, md, width)
	}
}

func printMessage(w io.Writer, m model.Message, md *styles.Markdown, width int) {
	if m.Author() == model.RoleUser {
		fmt.Fprintln(w, UserPromptStyle.Render(m.Author().DisplayName()+":"))
		fmt.Fprintln(w, m.Text())
		return
	}
	fmt.Fprintln(w, AssistantStyle.Render(m.Author().DisplayName()+":"))
	fmt.Fprintln(w, md.Render(m.Text(), width-2))
}

// =============================================================================
// RENAME / DELETE
// =============================================================================

// HandleRename sets a conversation's title.
func HandleRename(ctx context.Context, app *App, args Args, std Streams) error {
	if err := requireArgs(args, 2, "parley rename <id|n> <title>"); err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args.Positional[1:], " "))
	if title == "" {
		return fmt.Errorf("%w: title cannot be blank", ErrUsage)
	}
	if err := loadChats(ctx, app); err != nil {
		return err
	}
	id, err := resolveChat(app.Store.Snapshot(), args.Positional[0])
	if err != nil {
		return err
	}
	if err := app.Store.Rename(ctx, id, title); err != nil {
		return err
	}

	conv, _ := app.Store.Snapshot().Find(id)
	if args.JSON {
		return NewJSONResponse("rename", toConversationData(conv, false)).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s Renamed to %q\n", SuccessStyle.Render("[OK]"), conv.DisplayTitle())
	return nil
}

// HandleDelete removes a conversation after confirmation.
func HandleDelete(ctx context.Context, app *App, args Args, std Streams) error {
	if err := requireArgs(args, 1, "parley delete <id|n> [--yes]"); err != nil {
		return err
	}
	if err := loadChats(ctx, app); err != nil {
		return err
	}
	snap := app.Store.Snapshot()
	id, err := resolveChat(snap, args.Positional[0])
	if err != nil {
		return err
	}
	conv, _ := snap.Find(id)

	ok, err := RequireConfirmation(args.Yes, fmt.Sprintf("delete %q", conv.DisplayTitle()), args.JSON)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(std.Out, "Cancelled.")
		return nil
	}
	if err := app.Store.Delete(ctx, id); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("delete", map[string]string{"deleted": id}).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s Deleted %q\n", SuccessStyle.Render("[OK]"), conv.DisplayTitle())
	return nil
}
