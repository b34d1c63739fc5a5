package expiry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/storage"
	logx "fooddates/pkg/logx"

	"github.com/google/uuid"
)

var (
	ErrInvalidItem = errors.New("invalid item")
	ErrAmbiguousID = errors.New("ambiguous item id")
)

const maxItemNameRunes = 80

// ItemStore is the part of storage.Store the item service needs.
type ItemStore interface {
	PutItem(ctx context.Context, it storage.Item) error
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context) ([]storage.Item, error)
}

// Items manages tracked food items.
type Items struct {
	store ItemStore
	now   func() time.Time
	log   logx.Logger
}

func NewItems(store ItemStore, log logx.Logger) *Items {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Items{store: store, now: time.Now, log: log.With(logx.String("comp", "items"))}
}

// Add stores a new item expiring on the calendar date of expiresOn.
func (s *Items) Add(ctx context.Context, name string, expiresOn time.Time) (storage.Item, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return storage.Item{}, fmt.Errorf("%w: name required", ErrInvalidItem)
	}
	if len([]rune(name)) > maxItemNameRunes {
		return storage.Item{}, fmt.Errorf("%w: name longer than %d characters", ErrInvalidItem, maxItemNameRunes)
	}
	if expiresOn.IsZero() {
		return storage.Item{}, fmt.Errorf("%w: expiry date required", ErrInvalidItem)
	}
	it := storage.Item{
		ID:        uuid.NewString(),
		Name:      name,
		ExpiresOn: storage.DateOf(expiresOn),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutItem(ctx, it); err != nil {
		return storage.Item{}, fmt.Errorf("add item: %w", err)
	}
	s.log.Info("item added", logx.String("id", it.ID), logx.String("name", it.Name), logx.String("expires", it.ExpiresOn.Format(storage.DateLayout)))
	return it, nil
}

// List returns all items sorted by expiry date, then name.
func (s *Items) List(ctx context.Context) ([]storage.Item, error) {
	return s.store.ListItems(ctx)
}

// Remove deletes the item whose id equals idOrPrefix or uniquely starts
// with it.
func (s *Items) Remove(ctx context.Context, idOrPrefix string) (storage.Item, error) {
	it, err := s.Find(ctx, idOrPrefix)
	if err != nil {
		return storage.Item{}, err
	}
	if err := s.store.DeleteItem(ctx, it.ID); err != nil {
		return storage.Item{}, fmt.Errorf("remove item: %w", err)
	}
	s.log.Info("item removed", logx.String("id", it.ID), logx.String("name", it.Name))
	return it, nil
}

// Find resolves a full id or a unique id prefix.
func (s *Items) Find(ctx context.Context, idOrPrefix string) (storage.Item, error) {
	key := strings.ToLower(strings.TrimSpace(idOrPrefix))
	if key == "" {
		return storage.Item{}, fmt.Errorf("%w: id required", ErrInvalidItem)
	}
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return storage.Item{}, err
	}
	var match []storage.Item
	for _, it := range items {
		if it.ID == key {
			return it, nil
		}
		if strings.HasPrefix(it.ID, key) {
			match = append(match, it)
		}
	}
	switch len(match) {
	case 0:
		return storage.Item{}, storage.ErrNotFound
	case 1:
		return match[0], nil
	default:
		return storage.Item{}, fmt.Errorf("%w: %q matches %d items", ErrAmbiguousID, idOrPrefix, len(match))
	}
}

// ShortID is the id prefix shown to users.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
