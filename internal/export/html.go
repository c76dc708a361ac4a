// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page.
type HTMLExporter struct {
	options Options
}

type htmlPage struct {
	Title     string
	Theme     string
	Metadata  bool
	Created   string
	Count     int
	Exported  string
	Generated string
	Messages  []htmlMessage
}

type htmlMessage struct {
	Class    string
	Label    string
	Time     string
	Failed   bool
	Segments []segment
}

// segment is a run of prose or one fenced code block.
type segment struct {
	Code       bool
	Lang       string
	Paragraphs []string
	Text       string
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv model.Conversation, now time.Time) ([]byte, error) {
	msgs, err := messages(conv)
	if err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	page := htmlPage{
		Title:    conv.DisplayTitle(),
		Theme:    theme,
		Metadata: e.options.IncludeMetadata,
		Count:    len(msgs),
		Exported: now.Format("January 2, 2006 at 3:04 PM"),
	}
	if !conv.CreatedAt.IsZero() {
		page.Created = formatTimestamp(conv.CreatedAt)
		page.Generated = conv.CreatedAt.Format(time.RFC3339)
	}
	for _, m := range msgs {
		hm := htmlMessage{
			Class:    roleClass(m.Role),
			Label:    roleLabel(m.Role),
			Failed:   m.Content == model.StreamFailedContent,
			Segments: splitSegments(m.Content),
		}
		if e.options.IncludeTimestamps && !m.CreatedAt.IsZero() {
			hm.Time = formatTimestamp(m.CreatedAt)
		}
		page.Messages = append(page.Messages, hm)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

func roleClass(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "user"
	case model.RoleAssistant:
		return "assistant"
	}
	return "other"
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// splitSegments splits Markdown-ish content into prose and fenced code
// blocks. An unterminated fence runs to the end of the content.
func splitSegments(content string) []segment {
	var (
		out   []segment
		prose []string
		code  []string
		lang  string
		open  bool
	)
	flushProse := func() {
		if paras := paragraphs(prose); len(paras) > 0 {
			out = append(out, segment{Paragraphs: paras})
		}
		prose = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if open {
				out = append(out, segment{Code: true, Lang: lang, Text: strings.Join(code, "\n")})
				code, lang, open = nil, "", false
			} else {
				flushProse()
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				open = true
			}
			continue
		}
		if open {
			code = append(code, line)
		} else {
			prose = append(prose, line)
		}
	}
	if open {
		out = append(out, segment{Code: true, Lang: lang, Text: strings.Join(code, "\n")})
	}
	flushProse()
	return out
}

// paragraphs groups lines into blank-line separated paragraphs.
func paragraphs(lines []string) []string {
	var out, cur []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, strings.TrimSpace(l))
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}

// =============================================================================
// TEMPLATE
// =============================================================================

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="parley">
{{- if .Generated}}
<meta name="date" content="{{.Generated}}">
{{- end}}
<title>{{.Title}}</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --border: #414868; --user: #7aa2f7; --assistant: #9ece6a; --failed: #f7768e; }
.light-theme { --bg: #ffffff; --panel: #f6f8fa; --text: #24292e; --muted: #6a737d; --border: #e1e4e8; --user: #0366d6; --assistant: #22863a; --failed: #d73a49; }
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6; color: var(--text); background: var(--bg); padding: 20px; }
.container { max-width: 900px; margin: 0 auto; }
header { padding: 24px 0; border-bottom: 1px solid var(--border); margin-bottom: 24px; }
header h1 { font-size: 26px; margin-bottom: 8px; }
.metadata { font-size: 14px; color: var(--muted); display: flex; gap: 16px; flex-wrap: wrap; }
.message { padding: 16px 20px; margin-bottom: 16px; background: var(--panel); border-left: 4px solid var(--border); border-radius: 6px; }
.message.user { border-left-color: var(--user); }
.message.assistant { border-left-color: var(--assistant); }
.message-header { display: flex; justify-content: space-between; font-size: 14px; margin-bottom: 8px; }
.role { font-weight: 600; }
.time { color: var(--muted); }
.message p { margin-bottom: 8px; white-space: pre-wrap; }
.failed p { color: var(--failed); font-style: italic; }
pre { background: var(--bg); border: 1px solid var(--border); border-radius: 6px; padding: 12px; overflow-x: auto; margin-bottom: 8px; }
code { font-family: "SF Mono", Menlo, Consolas, monospace; font-size: 14px; }
.code-lang { font-size: 12px; color: var(--muted); margin-bottom: 4px; }
footer { text-align: center; color: var(--muted); font-size: 13px; padding: 24px 0; }
</style>
</head>
<body class="{{.Theme}}-theme">
<div class="container">
{{- if .Metadata}}
<header>
<h1>{{.Title}}</h1>
<div class="metadata">
{{- if .Created}}
<span><strong>Created:</strong> {{.Created}}</span>
{{- end}}
<span><strong>Messages:</strong> {{.Count}}</span>
</div>
</header>
{{- end}}
<main>
{{- range .Messages}}
<div class="message {{.Class}}{{if .Failed}} failed{{end}}">
<div class="message-header"><span class="role">{{.Label}}</span>{{if .Time}}<span class="time">{{.Time}}</span>{{end}}</div>
{{- range .Segments}}
{{- if .Code}}
{{- if .Lang}}
<div class="code-lang">{{.Lang}}</div>
{{- end}}
<pre><code class="language-{{.Lang}}">{{.Text}}</code></pre>
{{- else}}
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
{{- end}}
{{- end}}
</div>
{{- end}}
</main>
<footer>Exported from <strong>parley</strong> on {{.Exported}}</footer>
</div>
</body>
</html>
`))
