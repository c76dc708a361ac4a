// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// JSONExporter exports the complete conversation. It ignores Options.
type JSONExporter struct{}

type jsonDocument struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	ExportedAt time.Time     `json:"exported_at"`
	Messages   []model.Final `json:"messages"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv model.Conversation, now time.Time) ([]byte, error) {
	msgs, err := messages(conv)
	if err != nil {
		return nil, err
	}
	doc := jsonDocument{
		ID:         conv.ID,
		Title:      conv.DisplayTitle(),
		ExportedAt: now.UTC(),
		Messages:   msgs,
	}
	if !conv.CreatedAt.IsZero() {
		created := conv.CreatedAt
		doc.CreatedAt = &created
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
