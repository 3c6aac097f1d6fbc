// Package internal holds goConsole packages that are private to the module.
//
// # Sub-packages
//
//   - bootstrap: builds a Store from configuration for the commands
//   - events: async session event dispatch (Dispatcher + Sink implementations)
//   - logging: slog construction and shared attribute helpers
//   - rate: redis-backed failed-login throttling for the dev admin API
package internal
