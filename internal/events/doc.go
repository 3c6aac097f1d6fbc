// Package events implements async dispatching of session transition events.
//
// The Store hands every event to a [Dispatcher], which forwards it on a
// single goroutine to the configured [Sink]. When the buffer is full the
// dispatcher either drops (counting the drop) or blocks until the caller's
// context is done.
package events
