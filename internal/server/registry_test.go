package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newRecord(id string) *Client {
	return NewClient(nil, id, "127.0.0.1:1", "", nil, nil)
}

func TestRegistryAddAndSnapshotOrder(t *testing.T) {
	r := NewRegistry()

	for _, id := range []string{"c", "a", "b"} {
		if _, err := r.Add(newRecord(id)); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	snap := r.Snapshot()
	want := Snapshot{
		{ID: "c", Nickname: "User_c"},
		{ID: "a", Nickname: "User_a"},
		{ID: "b", Nickname: "User_b"},
	}
	if fmt.Sprint(snap) != fmt.Sprint(want) {
		t.Fatalf("snapshot = %v, want %v", snap, want)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
}

func TestRegistryAddRejectsDuplicateAndNil(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add(newRecord("dup")); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if _, err := r.Add(newRecord("dup")); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := r.Add(nil); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryRename(t *testing.T) {
	r := NewRegistry()
	a := newRecord("a")
	b := newRecord("b")
	_, _ = r.Add(a)
	_, _ = r.Add(b)

	snap, err := r.Rename("a", "Alice")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if snap[0] != (ClientEntry{ID: "a", Nickname: "Alice"}) {
		t.Fatalf("renamed entry should keep its position, got %v", snap)
	}
	if a.Nickname() != "Alice" {
		t.Fatalf("client nickname = %q, want Alice", a.Nickname())
	}

	if _, err := r.Rename("a", ""); !errors.Is(err, ErrEmptyNickname) {
		t.Fatalf("expected ErrEmptyNickname, got %v", err)
	}
	if _, err := r.Rename("missing", "Bob"); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
	if got := r.Snapshot()[0].Nickname; got != "Alice" {
		t.Fatalf("failed renames must not change the entry, got %q", got)
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Add(newRecord("a"))
	_, _ = r.Add(newRecord("b"))

	snap, removed := r.Remove("a")
	if !removed {
		t.Fatal("expected first Remove to report removal")
	}
	if len(snap) != 1 || snap[0].ID != "b" {
		t.Fatalf("snapshot after remove = %v", snap)
	}

	if _, removed := r.Remove("a"); removed {
		t.Fatal("second Remove should be a no-op")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("removed client still retrievable")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Add(newRecord("a"))

	snap := r.Snapshot()
	snap[0].Nickname = "mutated"

	if got := r.Snapshot()[0].Nickname; got != "User_a" {
		t.Fatalf("registry changed through snapshot: %q", got)
	}
}

func TestRegistryEmptySnapshotEncodesAsArray(t *testing.T) {
	frame, err := encodeEvent(EventUpdateClientList, NewRegistry().Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != `{"type":"updateClientList","payload":[]}` {
		t.Fatalf("unexpected frame %s", frame)
	}
}

// TestRegistryConcurrentMutations checks that concurrent add/rename/remove
// leaves exactly the surviving records.
func TestRegistryConcurrentMutations(t *testing.T) {
	r := NewRegistry()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id%02d", i)
			if _, err := r.Add(newRecord(id)); err != nil {
				t.Errorf("Add(%s): %v", id, err)
				return
			}
			if _, err := r.Rename(id, "nick"+id); err != nil {
				t.Errorf("Rename(%s): %v", id, err)
			}
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	if len(snap) != n/2 {
		t.Fatalf("expected %d survivors, got %d", n/2, len(snap))
	}
	for _, e := range snap {
		if e.Nickname != "nick"+e.ID {
			t.Errorf("entry %s has nickname %q", e.ID, e.Nickname)
		}
		if _, ok := r.Get(e.ID); !ok {
			t.Errorf("snapshot entry %s missing from Get", e.ID)
		}
	}
	if len(r.Clients()) != len(snap) {
		t.Fatalf("Clients() and Snapshot() disagree")
	}
}
