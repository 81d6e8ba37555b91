// Package products keeps the user-built product records that feed catalog
// generation.
package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/statestore"
)

const defaultCurrency = "USD"

var (
	ErrNotFound       = errors.New("products: product not found")
	ErrInvalidProduct = errors.New("products: invalid product")
)

// Product is one catalog entry.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	SKU         string   `json:"sku,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Service mutates product lists through a statestore.Store.
type Service struct {
	store statestore.Store
	now   func() time.Time
	newID func() string
	mu    sync.Mutex
}

func NewService(store statestore.Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns products in insertion order.
func (s *Service) List(ctx context.Context, owner string) ([]Product, error) {
	return s.load(ctx, owner)
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, owner, id string) (Product, error) {
	items, err := s.load(ctx, owner)
	if err != nil {
		return Product{}, err
	}
	for _, p := range items {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

// Create appends a new product.
func (s *Service) Create(ctx context.Context, owner string, p Product) (Product, error) {
	p, err := normalize(p)
	if err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(ctx, owner)
	if err != nil {
		return Product{}, err
	}
	stamp := s.now().Format(time.RFC3339)
	p.ID = s.newID()
	p.CreatedAt, p.UpdatedAt = stamp, stamp
	items = append(items, p)
	if err := s.save(ctx, owner, items); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Update replaces the editable fields of an existing product.
func (s *Service) Update(ctx context.Context, owner, id string, p Product) (Product, error) {
	p, err := normalize(p)
	if err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(ctx, owner)
	if err != nil {
		return Product{}, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		p.ID = id
		p.CreatedAt = items[i].CreatedAt
		p.UpdatedAt = s.now().Format(time.RFC3339)
		items[i] = p
		if err := s.save(ctx, owner, items); err != nil {
			return Product{}, err
		}
		return p, nil
	}
	return Product{}, ErrNotFound
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(ctx, owner)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			items = append(items[:i], items[i+1:]...)
			return s.save(ctx, owner, items)
		}
	}
	return ErrNotFound
}

func normalize(p Product) (Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	p.SKU = strings.TrimSpace(p.SKU)
	p.Category = strings.TrimSpace(p.Category)
	images := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	p.Images = images
	return p, nil
}

func (s *Service) load(ctx context.Context, owner string) ([]Product, error) {
	raw, err := s.store.Get(ctx, owner, statestore.KeyProducts)
	if err != nil {
		return nil, err
	}
	items := []Product{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("products: decode stored list: %w", err)
	}
	return items, nil
}

func (s *Service) save(ctx context.Context, owner string, items []Product) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("products: encode list: %w", err)
	}
	return s.store.Put(ctx, owner, statestore.KeyProducts, raw)
}
