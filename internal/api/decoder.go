// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// StreamDecoder turns a sequence of byte chunks into UTF-8 text. A
// multi-byte character split across chunks is held back until its remaining
// bytes arrive; invalid bytes become U+FFFD.
//
// A StreamDecoder is not safe for concurrent use.
type StreamDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

// NewStreamDecoder creates a decoder with no carried state.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text completed by chunk. The result may be empty when
// chunk only extends a partial character.
func (d *StreamDecoder) Decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	// Worst case every byte is invalid and expands to a 3-byte U+FFFD.
	if need := 3*len(src) + utf8.UTFMax; cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	dst := d.buf[:cap(d.buf)]

	nDst, nSrc, err := d.t.Transform(dst, src, false)
	if err != nil && !errors.Is(err, transform.ErrShortSrc) {
		// Unreachable with a correctly sized dst; keep the raw bytes flowing.
		return string(src)
	}
	if nSrc < len(src) {
		d.pending = append([]byte(nil), src[nSrc:]...)
	}
	return string(dst[:nDst])
}

// Flush ends the stream. A dangling partial character yields one U+FFFD.
func (d *StreamDecoder) Flush() string {
	defer d.Reset()
	if len(d.pending) == 0 {
		return ""
	}
	return string(utf8.RuneError)
}

// Pending reports how many bytes are held back awaiting completion.
func (d *StreamDecoder) Pending() int {
	return len(d.pending)
}

// Reset discards carried state.
func (d *StreamDecoder) Reset() {
	d.pending = nil
	d.t.Reset()
}
