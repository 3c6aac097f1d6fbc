// Package bootstrap wires a [goConsole.Store] from configuration for the
// commands under cmd/.
//
// It loads .env files, builds the slog logger, opens the redis client for
// the redis credential backend and assembles the HTTP API client.
package bootstrap
