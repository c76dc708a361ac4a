// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side key/value tiers for parley.
//
// Two tiers exist, mirroring how a browser separates durable and per-tab
// storage:
//
//   - SQLiteTier: durable, shared by every parley process on the machine.
//     Each write is recorded in a change log tagged with the writer's
//     origin id so other processes can observe it.
//   - MemoryTier: per-process, discarded when the process exits.
//
// # Change Feed
//
// A ChangeWatcher follows the SQLite change log and reports writes made by
// OTHER processes. It prefers fsnotify on the database directory and falls
// back to polling when file notifications are unavailable.
//
//	durable, err := storage.OpenSQLite(filepath.Join(dataDir, "parley.db"))
//	w, err := storage.StartWatcher(durable, storage.WatchConfig{}, func(ev storage.Event) {
//	    fmt.Println(ev.Key, "changed elsewhere")
//	}, logger)
//	defer w.Close()
//
// # Storage Location
//
// The durable tier lives in ~/.parley/parley.db unless configured otherwise.
package storage
