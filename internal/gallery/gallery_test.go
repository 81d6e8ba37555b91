package gallery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"studio/internal/statestore"
)

func newTestService() (*Service, *time.Time) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(statestore.NewMemory())
	n := 0
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	svc.newID = func() string {
		n++
		return fmt.Sprintf("item-%02d", n)
	}
	return svc, &clock
}

func TestAddCapsAtThirtyNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < 45; i++ {
		if _, err := svc.Add(ctx, "client", Item{Type: TypeBackgroundRemoval, Images: []string{fmt.Sprintf("https://img/%d.png", i)}}); err != nil {
			t.Fatalf("Add %d error: %v", i, err)
		}
		items, err := svc.List(ctx, "client")
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if len(items) > MaxItems {
			t.Fatalf("gallery has %d items after insert %d", len(items), i)
		}
		for j := 1; j < len(items); j++ {
			if items[j-1].time().Before(items[j].time()) {
				t.Fatalf("items not newest first at %d: %s before %s", j, items[j-1].Date, items[j].Date)
			}
		}
	}
	items, _ := svc.List(ctx, "client")
	if len(items) != MaxItems {
		t.Fatalf("len = %d, want %d", len(items), MaxItems)
	}
	if items[0].ID != "item-45" || items[len(items)-1].ID != "item-16" {
		t.Fatalf("kept range %s..%s, want item-45..item-16", items[0].ID, items[len(items)-1].ID)
	}
}

func TestAddDefaults(t *testing.T) {
	svc, _ := newTestService()
	item, err := svc.Add(context.Background(), "c", Item{Type: "Virtual-TryOn", Images: []string{" ", "https://img/a.png"}, Provider: "fashn"})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if item.ID != "item-01" || item.Title != "Virtual Tryon" || item.ThumbnailURL != "https://img/a.png" {
		t.Fatalf("item = %+v", item)
	}
	if len(item.Images) != 1 {
		t.Fatalf("blank images should be dropped: %v", item.Images)
	}
	if _, err := time.Parse(time.RFC3339Nano, item.Date); err != nil {
		t.Fatalf("date %q: %v", item.Date, err)
	}
}

func TestAddReplacesSameID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Add(ctx, "c", Item{ID: "x", Type: TypeUpscale, Images: []string{"https://a"}})
	_, _ = svc.Add(ctx, "c", Item{ID: "y", Type: TypeUpscale, Images: []string{"https://b"}})
	_, _ = svc.Add(ctx, "c", Item{ID: "x", Type: TypeUpscale, Images: []string{"https://c"}})

	items, _ := svc.List(ctx, "c")
	if len(items) != 2 || items[0].ID != "x" || items[0].Images[0] != "https://c" {
		t.Fatalf("items = %+v", items)
	}
}

func TestInsertOlderDateSortsBelowNewer(t *testing.T) {
	items := []Item{
		{ID: "new", Date: "2025-03-02T00:00:00Z"},
		{ID: "old", Date: "2025-01-01T00:00:00Z"},
	}
	out := Insert(items, Item{ID: "mid", Date: "2025-02-01T00:00:00Z"})
	got := []string{out[0].ID, out[1].ID, out[2].ID}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAddRejectsInvalidItems(t *testing.T) {
	svc, _ := newTestService()
	cases := []Item{
		{Type: "unknown", Images: []string{"https://a"}},
		{Type: TypeUpscale},
		{Type: TypeUpscale, Images: []string{"https://a"}, Date: "yesterday"},
	}
	for _, item := range cases {
		if _, err := svc.Add(context.Background(), "c", item); !errors.Is(err, ErrInvalidItem) {
			t.Fatalf("Add(%+v) error = %v, want ErrInvalidItem", item, err)
		}
	}
}

func TestRemoveAndClear(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a, _ := svc.Add(ctx, "c", Item{Type: TypeImageTagging, Images: []string{"https://a"}})
	_, _ = svc.Add(ctx, "c", Item{Type: TypeImageTagging, Images: []string{"https://b"}})

	if err := svc.Remove(ctx, "c", a.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := svc.Remove(ctx, "c", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove error = %v, want ErrNotFound", err)
	}
	items, _ := svc.List(ctx, "c")
	if len(items) != 1 {
		t.Fatalf("len = %d", len(items))
	}
	if err := svc.Clear(ctx, "c"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	items, _ = svc.List(ctx, "c")
	if len(items) != 0 {
		t.Fatalf("len after clear = %d", len(items))
	}
}

func TestAddRejectsItemOlderThanFullGallery(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < MaxItems; i++ {
		if _, err := svc.Add(ctx, "c", Item{Type: TypeUpscale, Images: []string{"https://a"}}); err != nil {
			t.Fatalf("Add %d error: %v", i, err)
		}
	}
	before, _ := svc.List(ctx, "c")
	oldest := before[len(before)-1].time()

	_, err := svc.Add(ctx, "c", Item{ID: "old", Type: TypeUpscale, Images: []string{"https://b"}, Date: oldest.Add(-time.Hour).Format(time.RFC3339Nano)})
	if !errors.Is(err, ErrTooOld) {
		t.Fatalf("Add error = %v, want ErrTooOld", err)
	}
	after, _ := svc.List(ctx, "c")
	if len(after) != MaxItems || after[len(after)-1].ID != before[len(before)-1].ID {
		t.Fatalf("gallery changed: len %d, last %s", len(after), after[len(after)-1].ID)
	}

	// Room left: an old item is kept at the end.
	_ = svc.Remove(ctx, "c", after[0].ID)
	saved, err := svc.Add(ctx, "c", Item{ID: "old", Type: TypeUpscale, Images: []string{"https://b"}, Date: oldest.Add(-time.Hour).Format(time.RFC3339Nano)})
	if err != nil || saved.ID != "old" {
		t.Fatalf("Add with room = %+v, %v", saved, err)
	}
	items, _ := svc.List(ctx, "c")
	if items[len(items)-1].ID != "old" {
		t.Fatalf("last item = %s, want old", items[len(items)-1].ID)
	}
}
