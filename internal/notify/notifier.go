package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Notification is a user-facing message about an order.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationStore persists notifications.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is the fallback when no
// hub or store is configured.
type LogNotifier struct {
	logf func(format string, args ...any)
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logf func(format string, args ...any)) *LogNotifier {
	if logf == nil {
		logf = log.Printf
	}
	return &LogNotifier{logf: logf}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logf("notify %s: %s", userID, message)
	return nil
}

// HubNotifier broadcasts notifications to the hub's WebSocket clients.
type HubNotifier struct {
	hub *Hub
	now func() time.Time
}

// NewHubNotifier constructs a HubNotifier.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub, now: time.Now}
}

func (n *HubNotifier) Notify(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		CreatedAt: n.now().UTC(),
	})
	if err != nil {
		return err
	}
	n.hub.Broadcast(payload)
	return nil
}

// StoreNotifier persists notifications so a user who was offline can still
// read them later.
type StoreNotifier struct {
	store NotificationStore
	now   func() time.Time
}

// NewStoreNotifier constructs a StoreNotifier.
func NewStoreNotifier(store NotificationStore) *StoreNotifier {
	return &StoreNotifier{store: store, now: time.Now}
}

func (n *StoreNotifier) Notify(ctx context.Context, userID, message string) error {
	return n.store.SaveNotification(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		CreatedAt: n.now().UTC(),
	})
}

// Notifier informs a user about their order.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Fanout delivers each notification to every target and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, userID, message string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, userID, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
