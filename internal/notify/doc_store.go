package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
)

// CollectionNotifications is the document collection notifications live in.
const CollectionNotifications = "notifications"

// DocNotificationStore keeps notifications in a document store.
type DocNotificationStore struct {
	docs docstore.Store
}

// NewDocNotificationStore constructs a DocNotificationStore.
func NewDocNotificationStore(docs docstore.Store) *DocNotificationStore {
	return &DocNotificationStore{docs: docs}
}

func (s *DocNotificationStore) SaveNotification(ctx context.Context, n Notification) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	return s.docs.Put(ctx, CollectionNotifications, n.ID, doc)
}

// Notifications returns every stored notification for a user.
func (s *DocNotificationStore) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	ids, err := s.docs.Keys(ctx, CollectionNotifications)
	if err != nil {
		return nil, err
	}

	var out []Notification
	for _, id := range ids {
		doc, ok, err := s.docs.Get(ctx, CollectionNotifications, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var n Notification
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", id, err)
		}
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}
