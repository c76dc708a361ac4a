// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestStreamDecoder_SplitMultiByte(t *testing.T) {
	text := "héllo 世界 🎉 done"
	raw := []byte(text)

	// Every possible single split point
	for split := 0; split <= len(raw); split++ {
		d := NewStreamDecoder()
		got := d.Decode(raw[:split]) + d.Decode(raw[split:]) + d.Flush()
		if got != text {
			t.Fatalf("split at %d: got %q, want %q", split, got, text)
		}
	}
}

func TestStreamDecoder_OneByteChunks(t *testing.T) {
	text := "日本語のテキスト and ascii"
	d := NewStreamDecoder()

	var sb strings.Builder
	for _, b := range []byte(text) {
		out := d.Decode([]byte{b})
		assert.True(t, utf8.ValidString(out), "chunk output must be valid UTF-8")
		assert.NotContains(t, out, string(utf8.RuneError))
		sb.WriteString(out)
	}
	sb.WriteString(d.Flush())

	assert.Equal(t, text, sb.String())
}

func TestStreamDecoder_HoldsPartialSequence(t *testing.T) {
	d := NewStreamDecoder()
	euro := []byte("€") // 3 bytes

	assert.Equal(t, "", d.Decode(euro[:1]))
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, "", d.Decode(euro[1:2]))
	assert.Equal(t, "€", d.Decode(euro[2:]))
	assert.Equal(t, 0, d.Pending())
}

func TestStreamDecoder_InvalidAndDangling(t *testing.T) {
	d := NewStreamDecoder()

	assert.Equal(t, "a�b", d.Decode([]byte{'a', 0xff, 'b'}))

	d.Decode([]byte{0xe2, 0x82}) // first two bytes of €
	assert.Equal(t, "�", d.Flush(), "dangling partial character becomes one replacement")
	assert.Equal(t, "", d.Flush())
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

// chunkedHandler writes each part and flushes so the client sees separate
// network reads where the transport allows.
func chunkedHandler(t *testing.T, parts ...[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/c1/stream", r.URL.Path)
		assert.Equal(t, "hi", decodeBody(t, r)["message"])

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, p := range parts {
			w.Write(p)
			flusher.Flush()
		}
	}
}

func TestStreamChat_DeliversDecodedChunks(t *testing.T) {
	reply := []byte("Hello wörld, 你好")
	// Split inside ö and inside 你
	cut1 := strings.Index(string(reply), "ö") + 1
	cut2 := strings.Index(string(reply), "你") + 2

	c, _ := newTestClient(t, chunkedHandler(t, reply[:cut1], reply[cut1:cut2], reply[cut2:]), "tok")

	var chunks []string
	errCalls := 0
	err := c.StreamChat(context.Background(), "c1", "hi",
		func(s string) { chunks = append(chunks, s) },
		func(error) { errCalls++ })

	require.NoError(t, err)
	assert.Equal(t, 0, errCalls)
	assert.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch))
		assert.NotContains(t, ch, string(utf8.RuneError))
	}
	assert.Equal(t, string(reply), strings.Join(chunks, ""))
}

func TestStreamChat_JSONFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"response field", `{"response":"whole answer"}`, "whole answer"},
		{"no response field", `{"other":1}`, `{"other":1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}, "tok")

			var chunks []string
			err := c.StreamChat(context.Background(), "c1", "hi", func(s string) { chunks = append(chunks, s) }, nil)

			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, chunks, "fallback is delivered as exactly one chunk")
		})
	}
}

func TestStreamChat_ServerErrorCallsOnErrorOnce(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "tok")

	var seen []error
	err := c.StreamChat(context.Background(), "c1", "hi", func(string) {
		t.Error("no chunks expected")
	}, func(e error) { seen = append(seen, e) })

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Stream failed", apiErr.Message)
	require.Len(t, seen, 1)
	assert.Same(t, err, seen[0])
}

func TestStreamChat_UnauthorizedClearsTokens(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "tok")

	calls := 0
	err := c.StreamChat(context.Background(), "c1", "hi", nil, func(error) { calls++ })

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, tokens.clearCount())
}

func TestStreamChat_CanceledMidStream(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, "tok")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got strings.Builder
	calls := 0
	err := c.StreamChat(ctx, "c1", "hi", func(s string) {
		got.WriteString(s)
		cancel()
	}, func(error) { calls++ })

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, KindCanceled, Classify(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "partial", got.String())

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, len("partial"), se.Delivered)
}
