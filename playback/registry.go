package playback

import (
	"fmt"
	"sync"
	"time"
)

// Role identifies what a sounding note is for.
type Role int

const (
	RoleBass Role = iota
	RoleTenor
	RoleAlto
	RoleSoprano
	RoleEmbellishment
	RoleMelody
)

var roleNames = [...]string{"bass", "tenor", "alto", "soprano", "embellishment", "melody"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// Structural reports whether the role counts toward the four-voice
// invariant. Embellishments and melody notes never do.
func (r Role) Structural() bool {
	return r >= RoleBass && r <= RoleSoprano
}

// Handle describes one currently-sounding note. The ID is minted by
// the playback device and is opaque to the core. A Handle is owned by
// the Registry from the moment Register succeeds until its release
// removes it; after that the entry is gone and the caller owns the
// returned copy.
type Handle struct {
	ID             string
	Pitch          uint8
	Role           Role
	Region         int // region index, -1 for melody notes
	MelodyIndex    int // melody event index, -1 for chord notes
	ScheduledOnset time.Time
	Run            uint64
}

// Registry is the single source of truth for what should currently be
// sounding. It keeps structural voices, embellishments and melody
// notes in separate tables so the four-voice invariant can be checked
// without counting doublings, and indexes chord handles by region for
// O(1) transition sweeps.
type Registry struct {
	mu         sync.Mutex
	structural map[string]Handle
	embellish  map[string]Handle
	melody     map[string]Handle
	byRegion   map[int]map[string]bool // structural + embellishment ids
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		structural: make(map[string]Handle),
		embellish:  make(map[string]Handle),
		melody:     make(map[string]Handle),
		byRegion:   make(map[int]map[string]bool),
	}
}

// Register inserts a handle into the table matching its role. A
// duplicate id means the backend produced a handle collision; the
// insert is refused and an error returned so the caller can log it.
// Silent overwrite would leak the note already stored under that id.
func (g *Registry) Register(h Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.present(h.ID) {
		return fmt.Errorf("handle %s already registered", h.ID)
	}

	switch {
	case h.Role.Structural():
		g.structural[h.ID] = h
		g.indexRegion(h)
	case h.Role == RoleEmbellishment:
		g.embellish[h.ID] = h
		g.indexRegion(h)
	case h.Role == RoleMelody:
		g.melody[h.ID] = h
	default:
		return fmt.Errorf("handle %s has unknown role %v", h.ID, h.Role)
	}
	return nil
}

func (g *Registry) present(id string) bool {
	if _, ok := g.structural[id]; ok {
		return true
	}
	if _, ok := g.embellish[id]; ok {
		return true
	}
	_, ok := g.melody[id]
	return ok
}

func (g *Registry) indexRegion(h Handle) {
	ids := g.byRegion[h.Region]
	if ids == nil {
		ids = make(map[string]bool)
		g.byRegion[h.Region] = ids
	}
	ids[h.ID] = true
}

// Release removes and returns the handle with the given id. The second
// return is false if the registry never saw the id; backends may
// report releases for notes they stole internally, so callers treat
// that as an integrity warning, not a fault.
func (g *Registry) Release(id string) (Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.structural[id]; ok {
		delete(g.structural, id)
		g.unindexRegion(h)
		return h, true
	}
	if h, ok := g.embellish[id]; ok {
		delete(g.embellish, id)
		g.unindexRegion(h)
		return h, true
	}
	if h, ok := g.melody[id]; ok {
		delete(g.melody, id)
		return h, true
	}
	return Handle{}, false
}

func (g *Registry) unindexRegion(h Handle) {
	if ids := g.byRegion[h.Region]; ids != nil {
		delete(ids, h.ID)
		if len(ids) == 0 {
			delete(g.byRegion, h.Region)
		}
	}
}

// ReleaseRegion atomically removes and returns every structural and
// embellishment handle tagged with the region. Used for the
// region-transition handoff and end-of-run cleanup.
func (g *Registry) ReleaseRegion(region int) []Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := g.byRegion[region]
	if len(ids) == 0 {
		return nil
	}
	out := make([]Handle, 0, len(ids))
	for id := range ids {
		if h, ok := g.structural[id]; ok {
			delete(g.structural, id)
			out = append(out, h)
		} else if h, ok := g.embellish[id]; ok {
			delete(g.embellish, id)
			out = append(out, h)
		}
	}
	delete(g.byRegion, region)
	return out
}

// ReleaseAll removes and returns every handle in every table. Used by
// the cancellation sweep.
func (g *Registry) ReleaseAll() []Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Handle, 0, len(g.structural)+len(g.embellish)+len(g.melody))
	for _, h := range g.structural {
		out = append(out, h)
	}
	for _, h := range g.embellish {
		out = append(out, h)
	}
	for _, h := range g.melody {
		out = append(out, h)
	}
	g.structural = make(map[string]Handle)
	g.embellish = make(map[string]Handle)
	g.melody = make(map[string]Handle)
	g.byRegion = make(map[int]map[string]bool)
	return out
}

// StructuralCount returns the number of active structural voices for a
// region. Must never exceed VoicesPerChord.
func (g *Registry) StructuralCount(region int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for id := range g.byRegion[region] {
		if _, ok := g.structural[id]; ok {
			n++
		}
	}
	return n
}

// MelodyCount returns the number of active melody notes.
func (g *Registry) MelodyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.melody)
}

// ActiveCount returns the total number of registered handles.
func (g *Registry) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.structural) + len(g.embellish) + len(g.melody)
}

// Snapshot returns a copy of every registered handle, for diagnostics
// and presentation queries.
func (g *Registry) Snapshot() []Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Handle, 0, len(g.structural)+len(g.embellish)+len(g.melody))
	for _, h := range g.structural {
		out = append(out, h)
	}
	for _, h := range g.embellish {
		out = append(out, h)
	}
	for _, h := range g.melody {
		out = append(out, h)
	}
	return out
}
