// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat in line mode.
//
// Command: chat [--chat ID]
//
// Interactive Commands (during chat):
//   /new                Start a new conversation
//   /list [query]       List conversations
//   /open <id|n>        Switch conversation
//   /rename <title>     Rename the current conversation
//   /delete             Delete the current conversation
//   /logout             Log out everywhere
//   /help, /h           Show available commands
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the reply in progress
//   Ctrl+D              Exit chat
//
// The session follows other parley instances: a logout elsewhere brings back
// the login prompt, and their changes to the conversation list show up here.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/ui/styles"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history kept in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// ReadPassword reads a line without echo and without recording it.
func (c *ChatCLI) ReadPassword(prompt string) (string, error) {
	return c.line.PasswordPrompt(prompt)
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one interactive chat.
type chatSession struct {
	app   *App
	args  Args
	out   io.Writer
	input *ChatCLI
	md    *styles.Markdown

	// loggedOut is set when the store reports the session ended.
	loggedOut atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// HandleChat runs the interactive chat until /quit, Ctrl+C at the prompt or
// end of input.
func HandleChat(ctx context.Context, app *App, args Args, std Streams) error {
	s := &chatSession{
		app:   app,
		args:  args,
		out:   std.Out,
		input: NewChatCLI(),
		md:    newMarkdown(app, IsStdoutTTY()),
	}
	defer s.input.Close()

	unsubscribe := app.Store.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.EventLoggedOut {
			s.loggedOut.Store(true)
		}
	})
	defer unsubscribe()

	if err := app.StartSync(); err != nil {
		app.Logger.Warn("cross-instance sync unavailable", zap.Error(err))
	}

	stop := s.handleInterrupts()
	defer stop()

	if !app.Tokens.IsValid() {
		if err := s.login(ctx); err != nil {
			return err
		}
	}
	if err := s.open(ctx); err != nil {
		return err
	}
	if !args.Quiet {
		s.printWelcome()
	}

	for {
		if s.loggedOut.Swap(false) {
			fmt.Fprintln(s.out, WarningStyle.Render("[Session ended]"))
			if err := s.login(ctx); err != nil {
				return err
			}
			if err := s.open(ctx); err != nil {
				return err
			}
		}

		line, err := s.input.ReadInput(s.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of input
			fmt.Fprintln(s.out)
			return nil
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		case strings.HasPrefix(line, "/"):
			keepGoing, err := s.handleSlashCommand(ctx, line)
			if err != nil {
				s.printError(err)
			}
			if !keepGoing {
				return nil
			}
		default:
			if err := s.send(ctx, line); err != nil {
				s.printError(err)
			}
		}
	}
}

// open loads the conversation list and selects --chat if given.
func (s *chatSession) open(ctx context.Context) error {
	if err := s.app.Store.Load(ctx); err != nil {
		return err
	}
	if s.args.ChatID == "" {
		return nil
	}
	id, err := resolveChat(s.app.Store.Snapshot(), s.args.ChatID)
	if err != nil {
		return err
	}
	return s.app.Store.Select(ctx, id)
}

// login asks for credentials until a login succeeds or input ends.
func (s *chatSession) login(ctx context.Context) error {
	fmt.Fprintln(s.out, TitleStyle.Render("Log in to "+s.app.Client.BaseURL()))
	for {
		email := s.args.Email
		if email == "" {
			var err error
			if email, err = s.input.ReadInput("Email: "); err != nil {
				return ErrNotLoggedIn
			}
		}
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		password, err := s.input.ReadPassword("Password: ")
		if err != nil {
			return ErrNotLoggedIn
		}

		err = s.app.Login(ctx, s.args, email, password)
		if err == nil {
			s.loggedOut.Store(false)
			fmt.Fprintf(s.out, "%s Logged in as %s\n\n", SuccessStyle.Render("[OK]"), email)
			return nil
		}
		if errors.Is(err, auth.ErrEmptyToken) {
			return err
		}
		s.printError(err)
		s.args.Email = ""
	}
}

// =============================================================================
// SENDING
// =============================================================================

// handleInterrupts turns Ctrl+C during a send into cancellation of that
// send. At the prompt, liner handles Ctrl+C itself.
func (s *chatSession) handleInterrupts() (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigChan:
				s.mu.Lock()
				if s.cancel != nil {
					s.cancel()
					s.cancel = nil
				}
				s.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

func (s *chatSession) send(ctx context.Context, text string) error {
	sendCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	fmt.Fprintln(s.out, AssistantStyle.Render("Assistant:"))
	echo := newReplyEcho(s.out)
	unsubscribe := s.app.Store.Subscribe(echo.observe)
	start := time.Now()
	err := s.app.Store.Send(sendCtx, text)
	unsubscribe()
	echo.finish()

	if api.Classify(err) == api.KindCanceled {
		fmt.Fprintln(s.out, WarningStyle.Render("[Cancelled]"))
		return nil
	}
	if err != nil {
		return err
	}
	if s.md != nil {
		s.rerenderReply()
	}
	if !s.args.Quiet {
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("(%s)", formatDuration(time.Since(start)))))
	}
	return nil
}

// rerenderReply prints the finished reply again with markdown formatting.
func (s *chatSession) rerenderReply() {
	conv, ok := s.app.Store.Snapshot().Active()
	if !ok {
		return
	}
	last := conv.LastMessage()
	if last == nil || last.Streaming() {
		return
	}
	fmt.Fprintln(s.out, RenderSeparator(GetTerminalWidth()-4))
	printMessage(s.out, last, s.md, GetTerminalWidth())
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one /command. It returns false to end the chat.
func (s *chatSession) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
	store := s.app.Store

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp(s.out)

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		store.NewConversation()
		fmt.Fprintln(s.out, DimStyle.Render("[New conversation]"))

	case "/list", "/ls":
		if err := store.Refresh(ctx); err != nil {
			return true, err
		}
		store.SetSearchQuery(rest)
		snap := store.Snapshot()
		convs := snap.Filtered()
		store.SetSearchQuery("")
		if len(convs) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("(no conversations)"))
			return true, nil
		}
		printConversationTable(s.out, snap, convs, GetTerminalWidth(), time.Now())

	case "/open", "/o":
		if rest == "" {
			return true, fmt.Errorf("%w: /open <id|n>", ErrUsage)
		}
		id, err := resolveChat(store.Snapshot(), rest)
		if err != nil {
			return true, err
		}
		if err := store.Select(ctx, id); err != nil {
			return true, err
		}
		conv, _ := store.Snapshot().Find(id)
		printConversation(s.out, conv, s.md, GetTerminalWidth())

	case "/rename":
		id := store.Snapshot().ActiveID
		if id == "" {
			return true, errors.New("no conversation selected")
		}
		if rest == "" {
			return true, fmt.Errorf("%w: /rename <title>", ErrUsage)
		}
		if err := store.Rename(ctx, id, rest); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("[Renamed]"))

	case "/delete":
		conv, ok := store.Snapshot().Active()
		if !ok {
			return true, errors.New("no conversation selected")
		}
		answer, err := s.input.ReadInput(fmt.Sprintf("Delete %q? [y/N]: ", conv.DisplayTitle()))
		if err != nil {
			return true, nil
		}
		if ok, _ := ParseBoolString(answer); !ok {
			fmt.Fprintln(s.out, "Cancelled.")
			return true, nil
		}
		if err := store.Delete(ctx, conv.ID); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("[Deleted]"))

	case "/logout":
		if err := store.Logout(); err != nil {
			return true, err
		}

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) prompt() string {
	title := "new"
	if conv, ok := s.app.Store.Snapshot().Active(); ok {
		title = util.TruncateWidth(conv.DisplayTitle(), 24)
	}
	return fmt.Sprintf("[%s] > ", title)
}

func (s *chatSession) printError(err error) {
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render("[Error]"), Describe(err))
}

func (s *chatSession) printWelcome() {
	snap := s.app.Store.Snapshot()
	fmt.Fprintln(s.out, TitleStyle.Render("parley chat"))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Server:"), s.app.Client.BaseURL())
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Conversations:"), len(snap.Conversations))
	if conv, ok := snap.Active(); ok {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Continuing:"), conv.DisplayTitle())
	}
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

func printChatHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  /new                Start a new conversation
  /list [query]       List conversations
  /open <id|n>        Switch conversation
  /rename <title>     Rename the current conversation
  /delete             Delete the current conversation
  /logout             Log out everywhere
  /help               Show this help
  /quit               Exit
  Ctrl+C              Cancel the reply in progress`)
}
