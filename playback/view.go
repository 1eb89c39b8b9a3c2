package playback

// RegionView is the pull-based presentation state for one chord
// region: computed real-time bounds plus whether it is audible right
// now. Display layers poll these; the core pushes nothing.
type RegionView struct {
	Index           int     `json:"index"`
	Label           string  `json:"label"`
	OnsetSeconds    float64 `json:"onsetSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	Voices          []uint8 `json:"voices"`
	Sounding        bool    `json:"sounding"`
	Skipped         bool    `json:"skipped"`
}

// MelodyView is the pull-based presentation state for one melody event.
type MelodyView struct {
	Index           int     `json:"index"`
	Pitch           uint8   `json:"pitch"`
	OnsetSeconds    float64 `json:"onsetSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	Sounding        bool    `json:"sounding"`
}

// RegionViews returns the current lifecycle view of every scheduled
// region.
func (c *Conductor) RegionViews() []RegionView {
	c.mu.Lock()
	regions := c.regions
	c.mu.Unlock()

	views := make([]RegionView, len(regions))
	for i, r := range regions {
		views[i] = RegionView{
			Index:           i,
			Label:           r.Label,
			OnsetSeconds:    c.clock.SecondsFromTicks(r.StartTick),
			DurationSeconds: c.clock.SecondsFromTicks(r.DurationTicks),
			Voices:          r.Voices,
			Sounding:        c.reg.StructuralCount(i) > 0,
			Skipped:         !r.Playable(),
		}
	}
	return views
}

// MelodyViews returns the current lifecycle view of every scheduled
// melody event. A sustained event shows as sounding through the handle
// of the note it extended.
func (c *Conductor) MelodyViews() []MelodyView {
	c.mu.Lock()
	melody := c.melody
	c.mu.Unlock()

	active := make(map[int]bool)
	for _, h := range c.reg.Snapshot() {
		if h.Role == RoleMelody {
			active[h.MelodyIndex] = true
		}
	}

	views := make([]MelodyView, len(melody))
	for i, n := range melody {
		views[i] = MelodyView{
			Index:           i,
			Pitch:           n.Pitch,
			OnsetSeconds:    c.clock.SecondsFromTicks(n.StartTick),
			DurationSeconds: c.clock.SecondsFromTicks(n.DurationTicks),
			Sounding:        active[i],
		}
	}
	return views
}
