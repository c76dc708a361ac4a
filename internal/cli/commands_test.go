// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/storage"
)

// decodeData parses a --json response and returns its data field.
func decodeData(t *testing.T, raw []byte, into any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp), string(raw))
	require.True(t, resp.Success, string(raw))
	require.NoError(t, json.Unmarshal(resp.Data, into))
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func TestRun_LoginStoresDurableSession(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	t.Setenv(PasswordEnv, "secret")

	std, out, _ := testStreams("")
	err := Run(context.Background(), CmdLogin, Args{Server: b.srv.URL, Email: "me@example.com", JSON: true}, std)
	require.NoError(t, err)

	var data LoginData
	decodeData(t, out.Bytes(), &data)
	assert.Equal(t, "me@example.com", data.Email)
	assert.Equal(t, string(auth.LocationDurable), data.Location)
	assert.Equal(t, "user-1", data.Subject)
	assert.NotNil(t, data.ExpiresAt)

	// A later process sees the session
	app := openTestApp(t, b, false)
	assert.True(t, app.Tokens.IsValid())
	assert.Equal(t, auth.LocationDurable, app.Tokens.Location())
}

func TestHandleLogin_PasswordFromStdin(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)

	std, out, _ := testStreams("me@example.com\nsecret\n")
	require.NoError(t, HandleLogin(context.Background(), app, Args{}, std))
	assert.Contains(t, out.String(), "Logged in as me@example.com")
	assert.True(t, app.Tokens.IsValid())
}

func TestHandleLogin_NoRememberKeepsSessionInMemory(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)
	t.Setenv(PasswordEnv, "secret")

	std, _, _ := testStreams("")
	require.NoError(t, HandleLogin(context.Background(), app, Args{Email: "me@example.com", NoRemember: true}, std))
	assert.Equal(t, auth.LocationSession, app.Tokens.Location())

	_, found, err := app.Durable.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHandleLogin_NoRememberReplacesDurableSession(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)
	stale := signedToken(t, "someone-else", time.Now().Add(time.Hour))
	require.NoError(t, app.Tokens.Save(auth.Tokens{AccessToken: stale}, true))
	t.Setenv(PasswordEnv, "secret")

	std, _, _ := testStreams("")
	require.NoError(t, HandleLogin(context.Background(), app, Args{Email: "me@example.com", NoRemember: true}, std))

	assert.Equal(t, auth.LocationSession, app.Tokens.Location())
	tok, ok := app.Tokens.Token()
	require.True(t, ok)
	assert.Equal(t, b.token, tok)

	_, found, err := app.Durable.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHandleLogin_BadPassword(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)
	t.Setenv(PasswordEnv, "wrong")

	std, _, _ := testStreams("")
	err := HandleLogin(context.Background(), app, Args{Email: "me@example.com"}, std)
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", Describe(err))
	assert.Equal(t, ExitNetworkError, GetExitCode(err))
	assert.False(t, app.Tokens.IsValid())
}

func TestHandleLogin_JSONNeedsEmail(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)

	std, _, _ := testStreams("")
	err := HandleLogin(context.Background(), app, Args{JSON: true}, std)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestHandleLogout_MarksLogoutForOtherInstances(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, true)
	require.NoError(t, app.Durable.Set(storage.KeyLastChatID, "c1"))

	std, out, _ := testStreams("")
	require.NoError(t, HandleLogout(app, Args{}, std))
	assert.Contains(t, out.String(), "Logged out")

	_, ok := app.Tokens.Token()
	assert.False(t, ok)
	_, found, err := app.Durable.Get(storage.KeyAuthClearedAt)
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = app.Durable.Get(storage.KeyLastChatID)
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestCommands_RequireLogin(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)
	ctx := context.Background()
	std, _, _ := testStreams("")

	assert.ErrorIs(t, HandleList(ctx, app, Args{}, std), ErrNotLoggedIn)
	assert.ErrorIs(t, HandleSend(ctx, app, Args{Positional: []string{"hi"}}, std), ErrNotLoggedIn)
	assert.ErrorIs(t, HandleShow(ctx, app, Args{Positional: []string{"1"}}, std), ErrNotLoggedIn)
}

func TestHandleList_JSONWithSearch(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	b.addChat("Go generics")
	b.addChat("Sourdough")
	b.addChat("go modules")
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleList(context.Background(), app, Args{JSON: true, Search: "GO"}, std))

	var convs []ConversationData
	decodeData(t, out.Bytes(), &convs)
	require.Len(t, convs, 2)
	assert.Equal(t, "go modules", convs[0].Title)
	assert.Equal(t, "Go generics", convs[1].Title)
	assert.NotNil(t, convs[0].CreatedAt)
}

func TestHandleList_Table(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	id := b.addChat("Weekend plans")
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleList(context.Background(), app, Args{}, std))
	assert.Contains(t, out.String(), "Weekend plans")
	assert.Contains(t, out.String(), id)
}

func TestHandleShow_ByPosition(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	b.addChat("Older")
	id := b.addChat("Newer")
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleShow(context.Background(), app, Args{JSON: true, Positional: []string{"1"}}, std))

	var conv ConversationData
	decodeData(t, out.Bytes(), &conv)
	assert.Equal(t, id, conv.ID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "answer about Newer", conv.Messages[1].Content)

	last, found, err := app.Durable.Get(storage.KeyLastChatID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, last)
}

func TestHandleShow_Unknown(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, true)

	std, _, _ := testStreams("")
	err := HandleShow(context.Background(), app, Args{Positional: []string{"nope"}}, std)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleRename(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	id := b.addChat("Old title")
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleRename(context.Background(), app, Args{Positional: []string{id, "New", "title"}}, std))
	assert.Equal(t, "New title", b.titleOf(id))
	assert.Contains(t, out.String(), `"New title"`)

	_, found, err := app.Durable.Get(storage.KeyChatsUpdatedAt)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestHandleDelete(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	id := b.addChat("Doomed")
	app := openTestApp(t, b, true)
	ctx := context.Background()

	std, _, _ := testStreams("")
	err := HandleDelete(ctx, app, Args{JSON: true, Positional: []string{id}}, std)
	assert.ErrorIs(t, err, ErrUsage)
	assert.Empty(t, b.deleted)

	std, out, _ := testStreams("")
	require.NoError(t, HandleDelete(ctx, app, Args{Yes: true, Positional: []string{id}}, std))
	assert.Equal(t, []string{id}, b.deleted)
	assert.Contains(t, out.String(), "Deleted")
	_, ok := app.Store.Snapshot().Find(id)
	assert.False(t, ok)
}

// =============================================================================
// SEND
// =============================================================================

func TestHandleSend_NewConversation(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleSend(context.Background(), app, Args{JSON: true, Positional: []string{"hello", "there"}}, std))

	var data SendData
	decodeData(t, out.Bytes(), &data)
	assert.Equal(t, "c1", data.ChatID)
	assert.Equal(t, "Greeting", data.Title)
	assert.Equal(t, "Hi there", data.Reply)
	assert.Equal(t, "Greeting", b.titleOf("c1"))
}

func TestHandleSend_StreamsToExistingConversation(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	id := b.addChat("Existing")
	b.reply = "streamed reply text"
	app := openTestApp(t, b, true)

	std, out, errOut := testStreams("")
	require.NoError(t, HandleSend(context.Background(), app, Args{ChatID: id, Positional: []string{"more"}}, std))
	assert.Equal(t, "streamed reply text\n", out.String())
	assert.Contains(t, errOut.String(), "Existing")
	assert.Equal(t, "Existing", b.titleOf(id))

	conv, ok := app.Store.Snapshot().Find(id)
	require.True(t, ok)
	assert.Len(t, conv.Messages, 4)
}

func TestHandleSend_NothingToSend(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, true)

	std, _, _ := testStreams("")
	err := HandleSend(context.Background(), app, Args{Positional: []string{"   "}}, std)
	assert.ErrorIs(t, err, ErrUsage)
}

// =============================================================================
// STATUS / CONFIG
// =============================================================================

func TestHandleStatus(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	b.addChat("One")
	app := openTestApp(t, b, true)

	std, out, _ := testStreams("")
	require.NoError(t, HandleStatus(context.Background(), app, Args{JSON: true}, std))

	var data StatusData
	decodeData(t, out.Bytes(), &data)
	assert.Equal(t, b.srv.URL, data.Server)
	require.NotNil(t, data.Reachable)
	assert.True(t, *data.Reachable)
	assert.Equal(t, 1, data.Chats)
	assert.True(t, data.LoggedIn)
	assert.Equal(t, "user-1", data.Subject)
	assert.Equal(t, config.SealNone, data.Seal)
}

func TestHandleStatus_RejectedToken(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)
	stale := signedToken(t, "someone-else", time.Now().Add(time.Hour))
	require.NoError(t, app.Tokens.Save(auth.Tokens{AccessToken: stale}, true))

	std, out, _ := testStreams("")
	require.NoError(t, HandleStatus(context.Background(), app, Args{JSON: true}, std))

	var data StatusData
	decodeData(t, out.Bytes(), &data)
	require.NotNil(t, data.Reachable)
	assert.True(t, *data.Reachable)
	assert.False(t, data.LoggedIn)
	assert.Equal(t, string(auth.LocationNone), data.Location)
}

func TestHandleStatus_NotLoggedInSkipsProbe(t *testing.T) {
	isolate(t)
	b := newFakeBackend(t)
	app := openTestApp(t, b, false)

	std, out, _ := testStreams("")
	require.NoError(t, HandleStatus(context.Background(), app, Args{}, std))
	assert.Contains(t, out.String(), "not checked")
	assert.Contains(t, out.String(), "not logged in")
}

func TestHandleConfig_InitSetGet(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	std, _, _ := testStreams("")
	require.NoError(t, HandleConfig(std, Args{ConfigPath: path, Subcommand: "init"}))
	_, err := os.Stat(path)
	require.NoError(t, err)

	std, _, _ = testStreams("")
	err = HandleConfig(std, Args{ConfigPath: path, Subcommand: "init"})
	assert.Error(t, err)

	std, _, _ = testStreams("")
	require.NoError(t, HandleConfig(std, Args{ConfigPath: path, Subcommand: "set", ConfigKey: "server.url", ConfigVal: "https://chat.example.com"}))

	cfg := config.Default()
	require.NoError(t, config.LoadTOML(cfg, path))
	assert.Equal(t, "https://chat.example.com", cfg.Server.URL)

	std, out, _ := testStreams("")
	require.NoError(t, HandleConfig(std, Args{ConfigPath: path, Subcommand: "get", ConfigKey: "server.url"}))
	assert.Contains(t, out.String(), "https://chat.example.com")
}

func TestHandleConfig_SetRejectsInvalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	std, _, _ := testStreams("")
	require.NoError(t, HandleConfig(std, Args{ConfigPath: path, Subcommand: "init"}))

	std, _, _ = testStreams("")
	err := HandleConfig(std, Args{ConfigPath: path, Subcommand: "set", ConfigKey: "server.url", ConfigVal: "not a url"})
	assert.Equal(t, ExitConfigError, GetExitCode(err))

	std, _, _ = testStreams("")
	err = HandleConfig(std, Args{ConfigPath: path, Subcommand: "get", ConfigKey: "no.such.key"})
	assert.ErrorIs(t, err, ErrUsage)
}
