// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ErrUnknownFormat is returned for a format name ParseFormat does not know.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrNotLoaded is returned when the conversation's messages have not been
// fetched.
var ErrNotLoaded = errors.New("conversation has no messages")

// ParseFormat accepts the format names and common file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q (want md, json or html)", ErrUnknownFormat, s)
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export renders conv. now is recorded as the export time.
	Export(conv model.Conversation, now time.Time) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the title block, dates and message count.
	IncludeMetadata bool

	// IncludeTimestamps adds each message's creation time when known.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() Options {
	return Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

// New returns the exporter for format.
func New(format Format, opts Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownExporter{options: opts}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatHTML:
		return &HTMLExporter{options: opts}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// =============================================================================
// FILES
// =============================================================================

// WriteFile exports conv into dir under a generated name and returns the
// path written.
func WriteFile(conv model.Conversation, exp Exporter, dir string, now time.Time) (string, error) {
	path := filepath.Join(dir, Filename(conv, exp.FileExtension(), now))
	if err := WriteTo(conv, exp, path, now); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTo exports conv to path, creating parent directories as needed.
func WriteTo(conv model.Conversation, exp Exporter, path string, now time.Time) error {
	content, err := exp.Export(conv, now)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, content, 0644, 0755); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Filename returns "chat_<title>_<timestamp><ext>".
func Filename(conv model.Conversation, ext string, now time.Time) string {
	return fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(conv.DisplayTitle()),
		now.Format("20060102_150405"),
		ext)
}

// messages returns conv's log with any in-progress reply collapsed, or
// ErrNotLoaded when there is nothing to export.
func messages(conv model.Conversation) ([]model.Final, error) {
	if !conv.Loaded() {
		return nil, ErrNotLoaded
	}
	out := make([]model.Final, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, model.Collapse(m))
	}
	return out, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

const maxFilenameRunes = 50

// sanitizeFilename replaces characters that are invalid in filenames on
// Windows or Unix.
func sanitizeFilename(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxFilenameRunes {
		runes = runes[:maxFilenameRunes]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// roleLabel returns the heading used for a message author.
func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case "":
		return "Unknown"
	}
	runes := []rune(string(r))
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
