package canvas

import "sync"

// Registry maps room names to rooms, creating them lazily on first use.
// Rooms live for the process lifetime and are never evicted, even when
// empty; nothing persists across restarts anyway.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for name, creating it on first use. The
// same name always yields the same room instance.
func (reg *Registry) GetOrCreate(name string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[name]
	if !ok {
		room = NewRoom(name)
		reg.rooms[name] = room
	}
	return room
}

// Names lists all rooms created so far.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	return names
}
