package lists

import (
	"context"
	"errors"
	"fmt"

	"github.com/penny-assistant/penny/internal/resolver"
)

// RemoteBackend serves lists from the remote document store.
type RemoteBackend struct {
	resolver.TierState
	client     DocstoreClient
	collection string
}

var _ Backend = (*RemoteBackend)(nil)

// NewRemoteBackend wraps a document-store client as the preferred tier.
func NewRemoteBackend(client DocstoreClient, collection string) *RemoteBackend {
	if collection == "" {
		collection = "user_lists"
	}
	return &RemoteBackend{
		TierState:  resolver.NewTierState("remote", 0),
		client:     client,
		collection: collection,
	}
}

// Initialize verifies the store is reachable. An unreachable store demotes
// this tier for the facade's lifetime.
func (b *RemoteBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.client == nil {
			return fmt.Errorf("no document-store client configured")
		}
		if !b.client.Ping(ctx) {
			return fmt.Errorf("document store unreachable")
		}
		return nil
	})
}

func (b *RemoteBackend) Health(ctx context.Context) bool {
	return b.client != nil && b.client.Ping(ctx)
}

func (b *RemoteBackend) CreateList(ctx context.Context, ownerID, name string) (string, error) {
	id, err := b.client.Create(ctx, b.collection, Document{
		OwnerID: ownerID,
		Name:    name,
		Items:   []string{},
	})
	if err != nil {
		return "", fmt.Errorf("creating remote list: %w", err)
	}
	return id, nil
}

func (b *RemoteBackend) Lists(ctx context.Context, ownerID string) ([]List, error) {
	docs, err := b.client.QueryByOwner(ctx, b.collection, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying remote lists: %w", err)
	}
	lists := make([]List, len(docs))
	for i, d := range docs {
		items := d.Items
		if items == nil {
			items = []string{}
		}
		lists[i] = List{
			ID:        d.ID,
			OwnerID:   d.OwnerID,
			Name:      d.Name,
			Items:     items,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		}
	}
	return lists, nil
}

func (b *RemoteBackend) UpdateItems(ctx context.Context, id string, items []string) error {
	err := b.client.Update(ctx, b.collection, id, items)
	if errors.Is(err, ErrDocumentMissing) {
		return fmt.Errorf("list %s: %w", id, resolver.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating remote list: %w", err)
	}
	return nil
}

func (b *RemoteBackend) DeleteList(ctx context.Context, id string) error {
	err := b.client.Delete(ctx, b.collection, id)
	if errors.Is(err, ErrDocumentMissing) {
		return fmt.Errorf("list %s: %w", id, resolver.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting remote list: %w", err)
	}
	return nil
}
