// Package events is the in-process notification bus for orchestration events.
//
// Publishers emit an Event after releasing their own locks. Delivery is
// synchronous, in subscription order, to the subscribers registered at the
// moment Publish is called. A panicking handler is recovered and does not stop
// delivery to the remaining subscribers.
package events
