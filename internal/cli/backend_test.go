// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/auth"
)

// fakeBackend is an in-memory chat backend.
type fakeBackend struct {
	t     *testing.T
	srv   *httptest.Server
	token string
	reply string

	mu       sync.Mutex
	nextID   int
	order    []string
	titles   map[string]string
	messages map[string][]map[string]string
	deleted  []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:        t,
		token:    signedToken(t, "user-1", time.Now().Add(time.Hour)),
		reply:    "Hi there",
		titles:   make(map[string]string),
		messages: make(map[string][]map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.login)
	mux.HandleFunc("GET /chats", b.authed(b.list))
	mux.HandleFunc("GET /chats/{id}", b.authed(b.get))
	mux.HandleFunc("DELETE /chats/{id}", b.authed(b.delete))
	mux.HandleFunc("PATCH /chats/{id}/title", b.authed(b.rename))
	mux.HandleFunc("POST /chat", b.authed(b.post))
	mux.HandleFunc("POST /chat-title", b.authed(b.title))
	mux.HandleFunc("POST /chat/{id}/stream", b.authed(b.stream))
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func signedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

// addChat seeds a conversation with one exchange and returns its id.
func (b *fakeBackend) addChat(title string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("c%d", b.nextID)
	b.order = append([]string{id}, b.order...)
	b.titles[id] = title
	b.messages[id] = []map[string]string{
		{"role": "user", "content": "question about " + title},
		{"role": "assistant", "content": "answer about " + title},
	}
	return id
}

func (b *fakeBackend) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.token {
			http.Error(w, `{"detail":"Not authenticated"}`, http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	if body["password"] != "secret" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
		return
	}
	writeJSON(w, map[string]string{"access_token": b.token})
}

func (b *fakeBackend) list(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]string, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, map[string]string{"id": id, "title": b.titles[id], "created_at": "2025-01-02T03:04:05Z"})
	}
	writeJSON(w, out)
}

func (b *fakeBackend) get(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, ok := b.messages[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

func (b *fakeBackend) delete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.PathValue("id")
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	delete(b.messages, id)
	b.deleted = append(b.deleted, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) rename(w http.ResponseWriter, r *http.Request) {
	title, _ := decodeBody(r)["message"].(string)
	b.mu.Lock()
	b.titles[r.PathValue("id")] = title
	b.mu.Unlock()
	writeJSON(w, map[string]string{"title": title})
}

func (b *fakeBackend) post(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	msg, _ := body["message"].(string)
	id, _ := body["chat_id"].(string)

	b.mu.Lock()
	if id == "" {
		b.nextID++
		id = fmt.Sprintf("c%d", b.nextID)
		b.order = append([]string{id}, b.order...)
		b.titles[id] = ""
	}
	b.messages[id] = append(b.messages[id], map[string]string{"role": "user", "content": msg})
	b.mu.Unlock()
	writeJSON(w, map[string]string{"chat_id": id})
}

func (b *fakeBackend) title(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"title": "Title: Greeting"})
}

func (b *fakeBackend) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	b.messages[id] = append(b.messages[id], map[string]string{"role": "assistant", "content": b.reply})
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)
	for _, part := range strings.SplitAfter(b.reply, " ") {
		_, _ = w.Write([]byte(part))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (b *fakeBackend) titleOf(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.titles[id]
}

// =============================================================================
// TEST ENVIRONMENT
// =============================================================================

// isolate points parley at a fresh home directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("PARLEY_HOME", t.TempDir())
	for _, k := range []string{
		"PARLEY_SERVER_URL", "PARLEY_DATA_DIR", "PARLEY_LOG_LEVEL", "PARLEY_REMEMBER",
		"PARLEY_SEAL", "PARLEY_IDENTITY_FILE", "PARLEY_PASSWORD", "PARLEY_PASSPHRASE",
	} {
		t.Setenv(k, "")
	}
}

// testStreams returns streams reading input and capturing output.
func testStreams(input string) (Streams, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return Streams{In: bufio.NewReader(strings.NewReader(input)), Out: &out, Err: &errOut}, &out, &errOut
}

// openTestApp opens an App against b, logged in when loggedIn is set.
func openTestApp(t *testing.T, b *fakeBackend, loggedIn bool) *App {
	t.Helper()
	app, err := OpenApp(Args{Server: b.srv.URL, Quiet: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	if loggedIn {
		require.NoError(t, app.Tokens.Save(tokensFor(b), true))
	}
	return app
}

func tokensFor(b *fakeBackend) auth.Tokens {
	return auth.Tokens{AccessToken: b.token}
}
