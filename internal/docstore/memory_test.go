package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryGetSetDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var missing widget
	if err := store.Get(ctx, "widgets", "a", &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, "widgets", "a", widget{Name: "first", Count: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got widget
	if err := store.Get(ctx, "widgets", "a", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "first" || got.Count != 1 {
		t.Errorf("got %+v", got)
	}

	// Set is a full overwrite.
	if err := store.Set(ctx, "widgets", "a", widget{Name: "second"}); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if err := store.Get(ctx, "widgets", "a", &got); err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got.Name != "second" || got.Count != 0 {
		t.Errorf("overwrite left %+v", got)
	}

	if err := store.Delete(ctx, "widgets", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Get(ctx, "widgets", "a", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting what is not there is fine.
	if err := store.Delete(ctx, "widgets", "a"); err != nil {
		t.Errorf("Delete missing = %v", err)
	}
}

func TestMemoryListIsolatesCollections(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Set(ctx, "widgets", "a", widget{Name: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "widgets/a/parts", "p", widget{Name: "p"}); err != nil {
		t.Fatalf("Set nested: %v", err)
	}

	docs, err := store.List(ctx, "widgets")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("List(widgets) = %d docs, want 1", len(docs))
	}
	nested, err := store.List(ctx, "widgets/a/parts")
	if err != nil {
		t.Fatalf("List nested: %v", err)
	}
	if len(nested) != 1 {
		t.Errorf("List(widgets/a/parts) = %d docs, want 1", len(nested))
	}
}

func TestMemoryWatch(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	updates, cancel, err := store.Watch(ctx, "widgets")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()

	if err := store.Set(ctx, "widgets", "a", widget{Name: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case snapshot := <-updates:
		if _, ok := snapshot["a"]; !ok {
			t.Errorf("snapshot missing key: %v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after Set")
	}

	if err := store.Delete(ctx, "widgets", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case snapshot := <-updates:
		if len(snapshot) != 0 {
			t.Errorf("snapshot after delete = %v, want empty", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after Delete")
	}
}

func TestMemoryWatchCancel(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	updates, cancel, err := store.Watch(ctx, "widgets")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	if err := store.Set(ctx, "widgets", "a", widget{Name: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case snapshot := <-updates:
		t.Errorf("update after cancel: %v", snapshot)
	case <-time.After(50 * time.Millisecond):
	}
}
