// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown.
type MarkdownExporter struct {
	options Options
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title    string `yaml:"title"`
	ID       string `yaml:"id"`
	Date     string `yaml:"date,omitempty"`
	Messages int    `yaml:"messages"`
	Exported string `yaml:"exported"`
}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv model.Conversation, now time.Time) ([]byte, error) {
	msgs, err := messages(conv)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:    conv.DisplayTitle(),
			ID:       conv.ID,
			Messages: len(msgs),
			Exported: now.Format(time.RFC3339),
		}
		if !conv.CreatedAt.IsZero() {
			fm.Date = conv.CreatedAt.Format(time.RFC3339)
		}
		// yaml handles quoting, so titles cannot inject keys
		header, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.DisplayTitle()))

	for i, msg := range msgs {
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role), formatTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}

		// Replies are already Markdown
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "---\n\n*Exported from parley on %s*\n", now.Format("January 2, 2006 at 3:04 PM"))
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"\n", " ",
		"\r", "",
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	).Replace(s)
}
