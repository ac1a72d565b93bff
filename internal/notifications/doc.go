// Package notifications pushes operator alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured so
// callers never need to branch on whether notifications are enabled.
package notifications
