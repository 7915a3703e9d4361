package servicestate

import (
	"context"
	"testing"

	"github.com/ischyrus/lokad-cloud-storage/memstore"
)

func TestStoreToggleReadDelete(t *testing.T) {
	ctx := context.Background()
	blobs := memstore.NewBlobStore()
	store, err := New(blobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok, err := store.Read(ctx, "worker-a"); err != nil || ok {
		t.Fatalf("expected no recorded state yet, ok=%v err=%v", ok, err)
	}

	if err := store.Toggle(ctx, "worker-a", Started); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	state, ok, err := store.Read(ctx, "worker-a")
	if err != nil || !ok || state != Started {
		t.Fatalf("state=%v ok=%v err=%v", state, ok, err)
	}

	if err := store.Toggle(ctx, "worker-a", Stopped); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	state, ok, err = store.Read(ctx, "worker-a")
	if err != nil || !ok || state != Stopped {
		t.Fatalf("state=%v ok=%v err=%v", state, ok, err)
	}

	if err := store.Delete(ctx, "worker-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.Read(ctx, "worker-a"); err != nil || ok {
		t.Fatalf("expected state gone after delete, ok=%v err=%v", ok, err)
	}
}

func TestStoreListEnumeratesServices(t *testing.T) {
	ctx := context.Background()
	blobs := memstore.NewBlobStore()
	store, err := New(blobs, WithPrefix("services"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"worker-a", "worker-b"} {
		if err := store.Toggle(ctx, name, Started); err != nil {
			t.Fatalf("Toggle(%s): %v", name, err)
		}
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 services, got %v", names)
	}
}
