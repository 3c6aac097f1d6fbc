// Package credential persists the single credential token a goConsole
// Store keeps across process restarts.
//
// Three backends are provided: [MemoryStore] for tests and short-lived
// processes, [FileStore] for CLIs and desktop shells, and [RedisStore] for
// server-rendered consoles that run more than one replica.
//
// Every backend stores exactly one token under one key. Load returns
// [ErrNotFound] when nothing is stored; Clear on an empty backend succeeds.
package credential
