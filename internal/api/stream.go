// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// streamReadSize is the read buffer for streamed bodies. Each successful
// read is delivered immediately, whatever its size.
const streamReadSize = 4096

// StreamError wraps a failure that happened after some text was delivered.
type StreamError struct {
	Delivered int // bytes of text already pushed to the callback
	Err       error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", e.Delivered, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error { return e.Err }

// StreamChat posts message to chat id and pushes the reply text to onChunk
// as it arrives. When the server answers with a single JSON document instead
// of a stream, its "response" field (or the whole document) is delivered as
// one chunk.
//
// On any failure onError (if non-nil) is called exactly once with the error,
// which is then returned. Cancel ctx to abandon the stream.
func (c *Client) StreamChat(ctx context.Context, id, message string, onChunk func(string), onError func(error)) (err error) {
	defer func() {
		if err != nil && onError != nil {
			onError(err)
		}
	}()

	cl := call{
		method:   http.MethodPost,
		path:     "/chat/" + url.PathEscape(id) + "/stream",
		body:     map[string]string{"message": message},
		auth:     true,
		fallback: "Stream failed",
	}
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return err
	}
	resp, err := c.send(c.stream, req, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isJSON(resp.Header.Get("Content-Type")) {
		return c.deliverDocument(resp, onChunk)
	}
	return c.deliverStream(ctx, resp.Body, onChunk)
}

// deliverStream reads body until EOF, decoding incrementally.
func (c *Client) deliverStream(ctx context.Context, body io.Reader, onChunk func(string)) error {
	dec := NewStreamDecoder()
	buf := make([]byte, streamReadSize)
	delivered := 0
	start := time.Now()

	emit := func(text string) {
		if text == "" || onChunk == nil {
			return
		}
		delivered += len(text)
		onChunk(text)
	}

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			emit(dec.Decode(buf[:n]))
		}
		if errors.Is(readErr, io.EOF) {
			emit(dec.Flush())
			c.logger.Debug("stream complete", zap.Int("bytes", delivered), zap.Duration("duration", time.Since(start)))
			return nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			} else {
				readErr = &TransportError{Op: "read stream", Err: readErr}
			}
			return &StreamError{Delivered: delivered, Err: readErr}
		}
	}
}

// deliverDocument handles the non-streaming fallback.
func (c *Client) deliverDocument(resp *http.Response, onChunk func(string)) error {
	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	text := string(body)
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err == nil {
		if raw, ok := doc["response"]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				text = s
			} else {
				text = string(bytes.TrimSpace(raw))
			}
		}
	}

	c.logger.Debug("stream fallback delivered as one chunk", zap.Int("bytes", len(text)))
	if text != "" && onChunk != nil {
		onChunk(text)
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
