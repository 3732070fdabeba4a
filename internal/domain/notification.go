package domain

import "fmt"

// NotificationKind classifies a user-facing toast.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationWarning NotificationKind = "warning"
)

// Toast durations in milliseconds.
const (
	SuccessDurationMs = 2000
	WarningDurationMs = 3000
)

// Notification is a transient message for the UI.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	DurationMs int              `json:"durationMs"`
}

// AddedToCart is emitted when an add completed without clamping.
func AddedToCart(name string) Notification {
	return Notification{
		Kind:       NotificationSuccess,
		Message:    fmt.Sprintf("Added %s to cart", name),
		DurationMs: SuccessDurationMs,
	}
}

// InsufficientStock is emitted when a requested quantity was reduced to the available stock.
func InsufficientStock(name string, stock int) Notification {
	return Notification{
		Kind:       NotificationWarning,
		Message:    fmt.Sprintf("Only %d of %s left in stock", stock, name),
		DurationMs: WarningDurationMs,
	}
}
