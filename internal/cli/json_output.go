// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting.
//
// With --json every command prints exactly one JSONResponse on stdout;
// human-readable progress goes to stderr.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// JSONResponse is the envelope for all --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
func (r *JSONResponse) Print() error {
	return r.PrintTo(os.Stdout)
}

// PrintTo outputs the JSON response to w.
func (r *JSONResponse) PrintTo(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// StderrPrint prints a message to stderr (for human-readable output in JSON mode).
func StderrPrint(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData is the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// StatusData is the data returned by the status command.
type StatusData struct {
	Server    string     `json:"server"`
	Reachable *bool      `json:"reachable,omitempty"`
	Chats     int        `json:"conversations,omitempty"`
	LoggedIn  bool       `json:"logged_in"`
	Location  string     `json:"token_location"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Seal      string     `json:"seal"`
	StatePath string     `json:"state_path"`
	ConfigDir string     `json:"config_dir"`
	LastChat  string     `json:"last_chat_id,omitempty"`
}

// ConversationData describes one conversation.
type ConversationData struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
	Messages  []MessageData `json:"messages,omitempty"`
}

// MessageData describes one message.
type MessageData struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ExportData is the data returned by the export command.
type ExportData struct {
	ChatID string `json:"chat_id"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// SendData is the data returned by the send command.
type SendData struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
	Reply  string `json:"reply"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// toConversationData converts a conversation, including its cached log when
// withMessages is set.
func toConversationData(c model.Conversation, withMessages bool) ConversationData {
	data := ConversationData{
		ID:        c.ID,
		Title:     c.DisplayTitle(),
		CreatedAt: timePtr(c.CreatedAt),
	}
	if !withMessages {
		return data
	}
	for _, m := range c.Messages {
		md := MessageData{Role: m.Author().String(), Content: m.Text()}
		if f, ok := m.(model.Final); ok {
			md.CreatedAt = timePtr(f.CreatedAt)
		}
		data.Messages = append(data.Messages, md)
	}
	return data
}
