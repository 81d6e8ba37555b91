// Package gallery keeps the per-client list of saved tool outputs. The list is
// capped, ordered newest first and always rewritten as a whole.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/statestore"
)

// MaxItems is the gallery capacity; older items are dropped past it.
const MaxItems = 30

// Type tags the tool an item came from.
type Type string

const (
	TypeVirtualTryOn         Type = "virtual-tryon"
	TypeBackgroundRemoval    Type = "background-removal"
	TypeBackgroundGeneration Type = "background-generation"
	TypeModelGeneration      Type = "model-generation"
	TypeImageTagging         Type = "image-tagging"
	TypeImageEditor          Type = "image-editor"
	TypeUpscale              Type = "upscale"
	TypeProductCatalog       Type = "product-catalog"
)

var knownTypes = map[Type]struct{}{
	TypeVirtualTryOn: {}, TypeBackgroundRemoval: {}, TypeBackgroundGeneration: {},
	TypeModelGeneration: {}, TypeImageTagging: {}, TypeImageEditor: {},
	TypeUpscale: {}, TypeProductCatalog: {},
}

var (
	ErrNotFound    = errors.New("gallery: item not found")
	ErrInvalidItem = errors.New("gallery: invalid item")
	// ErrTooOld rejects an item that would sort past MaxItems and be dropped.
	ErrTooOld = errors.New("gallery: item is older than every stored item in a full gallery")
)

// Item is one saved output.
type Item struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Date            string   `json:"date"`
	Provider        string   `json:"provider"`
	ThumbnailURL    string   `json:"thumbnailUrl"`
	Images          []string `json:"images"`
	ModelImageURL   string   `json:"modelImageUrl,omitempty"`
	GarmentImageURL string   `json:"garmentImageUrl,omitempty"`
	FullPrompt      string   `json:"fullPrompt,omitempty"`
	Type            Type     `json:"type"`
}

func (it Item) time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, it.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Service mutates galleries through a statestore.Store.
type Service struct {
	store statestore.Store
	now   func() time.Time
	newID func() string

	// serialises read-modify-write per process
	mu sync.Mutex
}

func NewService(store statestore.Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns the stored items, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]Item, error) {
	return s.load(ctx, owner)
}

// Add normalises item, inserts it (replacing an item with the same id) and
// rewrites the list, keeping at most MaxItems. When the gallery is full and
// item would be cut off, nothing is written and ErrTooOld is returned.
func (s *Service) Add(ctx context.Context, owner string, item Item) (Item, error) {
	item, err := s.normalize(item)
	if err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(ctx, owner)
	if err != nil {
		return Item{}, err
	}
	next := Insert(items, item)
	if !contains(next, item.ID) {
		return Item{}, ErrTooOld
	}
	if err := s.save(ctx, owner, next); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Remove deletes one item by id.
func (s *Service) Remove(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(ctx, owner)
	if err != nil {
		return err
	}
	kept := items[:0]
	found := false
	for _, it := range items {
		if it.ID == id {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return ErrNotFound
	}
	return s.save(ctx, owner, kept)
}

// Clear drops the whole gallery.
func (s *Service) Clear(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, owner, statestore.KeyGallery)
}

// Insert returns items with item placed by date (newest first), any previous
// entry with the same id removed and the result cut to MaxItems.
func Insert(items []Item, item Item) []Item {
	out := make([]Item, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if it.ID != item.ID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].time().After(out[j].time())
	})
	if len(out) > MaxItems {
		out = out[:MaxItems]
	}
	return out
}

func contains(items []Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) normalize(item Item) (Item, error) {
	item.Type = Type(strings.ToLower(strings.TrimSpace(string(item.Type))))
	if _, ok := knownTypes[item.Type]; !ok {
		return Item{}, fmt.Errorf("%w: unknown type %q", ErrInvalidItem, item.Type)
	}
	images := make([]string, 0, len(item.Images))
	for _, img := range item.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return Item{}, fmt.Errorf("%w: at least one image is required", ErrInvalidItem)
	}
	item.Images = images
	if strings.TrimSpace(item.ID) == "" {
		item.ID = s.newID()
	}
	if item.Date == "" {
		item.Date = s.now().Format(time.RFC3339Nano)
	} else if _, err := time.Parse(time.RFC3339Nano, item.Date); err != nil {
		return Item{}, fmt.Errorf("%w: date must be RFC 3339", ErrInvalidItem)
	}
	if strings.TrimSpace(item.Title) == "" {
		item.Title = cases.Title(language.English).String(strings.ReplaceAll(string(item.Type), "-", " "))
	}
	if item.ThumbnailURL == "" {
		item.ThumbnailURL = images[0]
	}
	return item, nil
}

func (s *Service) load(ctx context.Context, owner string) ([]Item, error) {
	raw, err := s.store.Get(ctx, owner, statestore.KeyGallery)
	if err != nil {
		return nil, err
	}
	items := []Item{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("gallery: decode stored list: %w", err)
	}
	return items, nil
}

func (s *Service) save(ctx context.Context, owner string, items []Item) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("gallery: encode list: %w", err)
	}
	return s.store.Put(ctx, owner, statestore.KeyGallery, raw)
}
