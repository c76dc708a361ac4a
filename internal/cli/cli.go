// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command routing for parley.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdLogout
	CmdStatus
	CmdList
	CmdShow
	CmdSend
	CmdRename
	CmdDelete
	CmdExport
	CmdChat
	CmdConfig
	CmdVersion
	CmdHelp
)

// commandNames maps every accepted spelling to its command.
var commandNames = map[string]Command{
	"tui":     CmdTUI,
	"login":   CmdLogin,
	"logout":  CmdLogout,
	"status":  CmdStatus,
	"s":       CmdStatus,
	"list":    CmdList,
	"ls":      CmdList,
	"show":    CmdShow,
	"send":    CmdSend,
	"ask":     CmdSend,
	"rename":  CmdRename,
	"delete":  CmdDelete,
	"rm":      CmdDelete,
	"export":  CmdExport,
	"chat":    CmdChat,
	"config":  CmdConfig,
	"version": CmdVersion,
	"help":    CmdHelp,
}

// String returns the canonical command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdLogin:
		return "login"
	case CmdLogout:
		return "logout"
	case CmdStatus:
		return "status"
	case CmdList:
		return "list"
	case CmdShow:
		return "show"
	case CmdSend:
		return "send"
	case CmdRename:
		return "rename"
	case CmdDelete:
		return "delete"
	case CmdExport:
		return "export"
	case CmdChat:
		return "chat"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Verbose    bool
	Quiet      bool
	JSON       bool
	ConfigPath string
	Server     string

	// login
	Email      string
	NoRemember bool

	// list
	Search string

	// send
	ChatID string

	// delete
	Yes bool

	// export
	Format string
	Output string

	// config
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// HelpTopic names the command help was requested for.
	HelpTopic string

	// Positional holds arguments left after the command name and flags.
	Positional []string
}

// ErrUsage marks a command line that could not be parsed.
var ErrUsage = errors.New("usage error")

const usageText = `parley - terminal client for a remote chat backend

Usage:
  parley                          Start the TUI (default)
  parley login [--email E]        Log in and store the session
  parley logout                   Log out here and in every other instance
  parley status, s                Show server, session and storage status
  parley list, ls [--search Q]    List conversations
  parley show <id>                Print a conversation
  parley send [--chat ID] <text>  Send a message and stream the reply
  parley rename <id> <title>      Rename a conversation
  parley delete, rm <id> [--yes]  Delete a conversation
  parley export <id> [-f FORMAT]  Save a conversation as md, json or html
  parley chat                     Interactive chat (line mode)
  parley config [show|path|init|get|set]
  parley version
  parley help [command]

Global Flags:
  -v, --verbose        Log to stderr at debug level
  -q, --quiet          Minimal output
      --json           Machine-readable output where supported
      --config PATH    Use a specific config file
      --server URL     Override server.url

Environment:
  PARLEY_HOME          Config and state directory (default ~/.parley)
  PARLEY_SERVER_URL    Backend base URL
  PARLEY_PASSPHRASE    Passphrase when auth.seal = "passphrase"
  NO_COLOR             Disable colored output
`

// commandHelp holds the detailed help shown by "parley help <command>".
var commandHelp = map[Command]string{
	CmdLogin: `parley login - log in to the chat backend

Usage:
  parley login [--email EMAIL] [--no-remember]

The password is read from the terminal without echo, or from the first line
of stdin when stdin is not a terminal. By default the session is stored in
the shared state database so every parley instance uses it. --no-remember
keeps it in this process only, which is only useful inside 'parley chat'.`,

	CmdList: `parley list - list conversations

Usage:
  parley list [--search QUERY] [--json]

--search keeps conversations whose title contains QUERY, ignoring case.`,

	CmdSend: `parley send - send one message and stream the reply

Usage:
  parley send [--chat ID] <text...>
  echo "text" | parley send [--chat ID]

Without --chat a new conversation is created and titled automatically.`,

	CmdDelete: `parley delete - delete a conversation

Usage:
  parley delete <id> [--yes]

Asks for confirmation unless --yes is given.`,

	CmdExport: `parley export - save a conversation to a file

Usage:
  parley export <id|n> [--format md|json|html] [--output PATH]

Without --output the file is written to the current directory with a name
built from the title and the time. --output - prints to stdout.`,

	CmdChat: `parley chat - interactive chat in line mode

Usage:
  parley chat [--chat ID]

Commands while chatting:
  /new                Start a new conversation
  /list [query]       List conversations
  /open <id|n>        Switch conversation
  /rename <title>     Rename the current conversation
  /delete             Delete the current conversation
  /logout             Log out everywhere
  /help               Show commands
  /quit               Exit
  Ctrl+C              Cancel the reply in progress`,

	CmdConfig: `parley config - inspect and edit configuration

Usage:
  parley config show           Print the effective configuration
  parley config path           Print the config file path
  parley config init           Write a default config.toml
  parley config get <key>      Print one value (e.g. server.url)
  parley config set <key> <v>  Change one value and save`,
}

// =============================================================================
// PARSING
// =============================================================================

// valueFlags are global flags that consume the following argument.
var valueFlags = map[string]bool{"--config": true, "--server": true}

// Parse parses os.Args.
func Parse() (Command, Args, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name). The command is the first
// argument that is neither a flag nor a flag's value.
func ParseArgs(argv []string) (Command, Args, error) {
	cmd := CmdTUI
	cmdIndex := -1
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			break
		}
		if strings.HasPrefix(arg, "-") {
			if valueFlags[arg] {
				i++
			}
			continue
		}
		c, ok := commandNames[arg]
		if !ok {
			return CmdHelp, Args{}, fmt.Errorf("%w: unknown command %q", ErrUsage, arg)
		}
		cmd, cmdIndex = c, i
		break
	}

	rest := argv
	if cmdIndex >= 0 {
		rest = append(append([]string{}, argv[:cmdIndex]...), argv[cmdIndex+1:]...)
	}

	var args Args
	var help, version bool
	fs := newFlagSet(cmd.String())
	addGlobalFlags(fs, &args)
	addCommandFlags(fs, cmd, &args)
	fs.BoolVarP(&help, "help", "h", false, "show help")
	fs.BoolVar(&version, "version", false, "show version")

	if err := fs.Parse(rest); err != nil {
		return CmdHelp, args, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	args.Positional = fs.Args()

	switch {
	case version:
		return CmdVersion, args, nil
	case help:
		args.HelpTopic = cmd.String()
		return CmdHelp, args, nil
	case cmd == CmdHelp && len(args.Positional) > 0:
		args.HelpTopic = args.Positional[0]
	case cmd == CmdConfig:
		args.Subcommand = positionalAt(args.Positional, 0)
		args.ConfigKey = positionalAt(args.Positional, 1)
		args.ConfigVal = strings.Join(positionalFrom(args.Positional, 2), " ")
	}
	return cmd, args, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("parley "+name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)
	return fs
}

// =============================================================================
// HELP / VERSION
// =============================================================================

// PrintUsage writes the top-level usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintHelp writes help for topic, falling back to the top-level usage.
func PrintHelp(w io.Writer, topic string) {
	if c, ok := commandNames[topic]; ok {
		if text, ok := commandHelp[c]; ok {
			fmt.Fprintln(w, text)
			return
		}
	}
	PrintUsage(w)
}

// HandleVersion prints version information.
func HandleVersion(w io.Writer, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}).PrintTo(w)
	}
	fmt.Fprintf(w, "parley %s\n", Version)
	if !args.Quiet {
		fmt.Fprintf(w, "  commit:   %s\n", GitCommit)
		fmt.Fprintf(w, "  built:    %s\n", BuildDate)
		fmt.Fprintf(w, "  go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	return nil
}
