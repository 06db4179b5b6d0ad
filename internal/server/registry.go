package server

import "sync"

type registryEntry struct {
	client   *Client
	nickname string
}

// Registry is the authoritative id -> nickname map of open connections.
// Every mutator returns the snapshot taken under the same lock, so callers
// broadcast exactly the state their mutation produced.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Add registers c under its id with its current nickname.
func (r *Registry) Add(c *Client) (Snapshot, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[c.id]; exists {
		return nil, ErrDuplicateID
	}
	r.entries[c.id] = &registryEntry{client: c, nickname: c.Nickname()}
	r.order = append(r.order, c.id)
	return r.snapshotLocked(), nil
}

// Rename sets the nickname of a registered client. Join order is kept.
func (r *Registry) Rename(id, nickname string) (Snapshot, error) {
	if nickname == "" {
		return nil, ErrEmptyNickname
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrUnknownClient
	}
	entry.nickname = nickname
	entry.client.setNickname(nickname)
	return r.snapshotLocked(), nil
}

// Remove deletes id. Removing an absent id is a no-op reported by false.
func (r *Registry) Remove(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return r.snapshotLocked(), false
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return r.snapshotLocked(), true
}

// Snapshot returns the current (id, nickname) pairs in join order.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := make(Snapshot, 0, len(r.order))
	for _, id := range r.order {
		snap = append(snap, ClientEntry{ID: id, Nickname: r.entries[id].nickname})
	}
	return snap
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.client, true
}

// Clients returns the registered clients in join order.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		clients = append(clients, r.entries[id].client)
	}
	return clients
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
