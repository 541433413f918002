package lists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/storage"
)

// LocalBackend persists lists in the embedded SQLite database. It needs no
// external dependency and is the fallback tier when the remote store is
// unconfigured or down.
type LocalBackend struct {
	resolver.TierState
	store *storage.Store
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend wraps the shared store as the fallback tier.
func NewLocalBackend(store *storage.Store) *LocalBackend {
	return &LocalBackend{
		TierState: resolver.NewTierState("local", 1),
		store:     store,
	}
}

func (b *LocalBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.store == nil {
			return fmt.Errorf("no storage configured")
		}
		return nil
	})
}

func (b *LocalBackend) Health(ctx context.Context) bool {
	return b.store != nil && b.store.DB().PingContext(ctx) == nil
}

func (b *LocalBackend) CreateList(ctx context.Context, ownerID, name string) (string, error) {
	now := time.Now().UTC()
	l := storage.List{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Items:     "[]",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.store.CreateList(l); err != nil {
		return "", fmt.Errorf("creating local list: %w", err)
	}
	return l.ID, nil
}

func (b *LocalBackend) Lists(ctx context.Context, ownerID string) ([]List, error) {
	stored, err := b.store.ListsForOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("reading local lists: %w", err)
	}
	lists := make([]List, len(stored))
	for i, l := range stored {
		var items []string
		if err := json.Unmarshal([]byte(l.Items), &items); err != nil {
			return nil, fmt.Errorf("decoding items for list %s: %w", l.ID, err)
		}
		if items == nil {
			items = []string{}
		}
		lists[i] = List{
			ID:        l.ID,
			OwnerID:   l.OwnerID,
			Name:      l.Name,
			Items:     items,
			CreatedAt: l.CreatedAt,
			UpdatedAt: l.UpdatedAt,
		}
	}
	return lists, nil
}

func (b *LocalBackend) UpdateItems(ctx context.Context, id string, items []string) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	err = b.store.UpdateListItems(id, string(encoded))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("list %s: %w", id, resolver.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating local list: %w", err)
	}
	return nil
}

func (b *LocalBackend) DeleteList(ctx context.Context, id string) error {
	err := b.store.DeleteList(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("list %s: %w", id, resolver.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting local list: %w", err)
	}
	return nil
}
