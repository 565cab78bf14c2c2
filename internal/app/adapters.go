package app

import (
	"context"
	"fmt"

	"github.com/five82/kiosk/internal/cache"
	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

// collectionBackend submits coordinator mutations to one customer collection.
type collectionBackend struct {
	client shop.CollectionClient
	kind   shop.Kind
}

func (b collectionBackend) Submit(ctx context.Context, m optimistic.Mutation) ([]state.Entry, error) {
	var (
		coll shop.Collection
		err  error
	)
	switch m.Op {
	case optimistic.OpAdd:
		coll, err = b.client.AddItem(ctx, b.kind, m.ProductID, m.VariantID, m.Quantity)
	case optimistic.OpRemove:
		coll, err = b.client.RemoveItem(ctx, b.kind, m.ItemID)
	case optimistic.OpUpdateQuantity:
		coll, err = b.client.UpdateItem(ctx, b.kind, m.ItemID, m.Quantity)
	case optimistic.OpClear:
		coll, err = b.client.ClearCollection(ctx, b.kind)
	default:
		return nil, fmt.Errorf("unsupported mutation %q", m.Op)
	}
	if err != nil {
		return nil, err
	}
	return itemsToEntries(coll.Items), nil
}

func (b collectionBackend) Load(ctx context.Context) ([]state.Entry, error) {
	coll, err := b.client.FetchCollection(ctx, b.kind)
	if err != nil {
		return nil, err
	}
	return itemsToEntries(coll.Items), nil
}

func itemsToEntries(items []shop.Item) []state.Entry {
	entries := make([]state.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, state.Entry{
			ID:          it.ID,
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			Quantity:    it.Quantity,
			Name:        it.Name,
			VariantName: it.VariantName,
			Price:       it.Price,
			ImageURL:    it.ImageURL,
			State:       state.Confirmed,
		})
	}
	return entries
}

type productClient interface {
	shop.ProductFetcher
	UploadImage(ctx context.Context, productID, imageURL string) (*shop.Product, error)
}

// catalogService reads the product list through the query cache.
type catalogService struct {
	client productClient
	cache  *cache.Cache
	scope  cache.Scope
}

func newCatalogService(client productClient, c *cache.Cache) *catalogService {
	return &catalogService{client: client, cache: c, scope: c.Scope(cache.ScopeProducts)}
}

// Products returns the cached product list, fetching it when missing or stale.
func (s *catalogService) Products(ctx context.Context) ([]shop.Product, error) {
	return cache.Load(ctx, s.cache, s.scope.ListKey(), s.client.FetchProducts)
}

// Lookup resolves display fields from the last product list without fetching.
func (s *catalogService) Lookup(productID, variantID string) (optimistic.Listing, bool) {
	value, _, ok := s.cache.Peek(s.scope.ListKey())
	if !ok {
		return optimistic.Listing{}, false
	}
	products, ok := value.([]shop.Product)
	if !ok {
		return optimistic.Listing{}, false
	}
	for _, p := range products {
		if p.ID != productID {
			continue
		}
		v, ok := p.Variant(variantID)
		if !ok {
			return optimistic.Listing{}, false
		}
		price := v.Price
		if price == 0 {
			price = p.Price
		}
		return optimistic.Listing{Name: p.Name, VariantName: v.Name, Price: price, ImageURL: p.ImageURL}, true
	}
	return optimistic.Listing{}, false
}

// UploadImage attaches an image and marks the product stale.
func (s *catalogService) UploadImage(ctx context.Context, productID, imageURL string) (*shop.Product, error) {
	product, err := s.client.UploadImage(ctx, productID, imageURL)
	if err != nil {
		return nil, err
	}
	s.scope.InvalidateDetail(productID)
	s.scope.InvalidateList()
	return product, nil
}
