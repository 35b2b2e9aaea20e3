package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/chase3718/lou-lights/note"
)

// ActiveNote is a sounding note and its envelope state. Config is a copy of
// the catalog entry.
type ActiveNote struct {
	Config         note.Config
	Intensity      uint8
	BirthIntensity uint8
	Birth          time.Time

	// seq orders notes struck at the same instant by insertion.
	seq uint64
}

func (a ActiveNote) ID() note.ID { return a.Config.ID }

// Snapshot is a point-in-time copy of the registry, ordered oldest first.
type Snapshot struct {
	Time      time.Time
	Sustained bool
	Notes     []ActiveNote
}

func (s Snapshot) Len() int { return len(s.Notes) }

// Registry owns the set of active notes. It is not safe for concurrent use;
// the Driver is its only writer.
type Registry struct {
	env   Envelope
	notes map[note.ID]*ActiveNote
	seq   uint64
}

func NewRegistry(env Envelope) *Registry {
	return &Registry{
		env:   env,
		notes: make(map[note.ID]*ActiveNote),
	}
}

// NoteOn inserts cfg or replaces the existing entry for its id, resetting
// the envelope.
func (r *Registry) NoteOn(cfg *note.Config, velocity uint8, now time.Time) {
	velocity = min(velocity, r.env.Max)
	r.seq++
	r.notes[cfg.ID] = &ActiveNote{
		Config:         *cfg,
		Intensity:      velocity,
		BirthIntensity: velocity,
		Birth:          now,
		seq:            r.seq,
	}
}

// NoteOff removes id. It reports whether the note was active.
func (r *Registry) NoteOff(id note.ID) bool {
	if _, ok := r.notes[id]; !ok {
		return false
	}
	delete(r.notes, id)
	return true
}

// Advance recomputes every intensity at now and drops the notes that
// reached zero. It returns the ids that expired.
func (r *Registry) Advance(now time.Time) []note.ID {
	var expired []note.ID
	for id, n := range r.notes {
		v := r.env.Intensity(n.BirthIntensity, now.Sub(n.Birth))
		// Guard monotonicity against a clock that steps backwards.
		n.Intensity = min(v, n.Intensity)
		if n.Intensity == 0 {
			delete(r.notes, id)
			expired = append(expired, id)
		}
	}
	slices.Sort(expired)
	return expired
}

// EnforceCap evicts the oldest notes until at most limit remain. Notes born at
// the same instant are evicted in insertion order. It returns the evicted ids
// oldest first.
func (r *Registry) EnforceCap(limit int) []note.ID {
	limit = max(limit, 0)
	if len(r.notes) <= limit {
		return nil
	}
	ordered := r.ordered()
	victims := ordered[:len(ordered)-limit]
	evicted := make([]note.ID, 0, len(victims))
	for _, n := range victims {
		delete(r.notes, n.Config.ID)
		evicted = append(evicted, n.Config.ID)
	}
	return evicted
}

// Snapshot copies the active notes, oldest first. Nothing in the returned
// value aliases registry or catalog state.
func (r *Registry) Snapshot() Snapshot {
	ordered := r.ordered()
	s := Snapshot{Notes: make([]ActiveNote, len(ordered))}
	for i, n := range ordered {
		s.Notes[i] = *n
	}
	return s
}

func (r *Registry) Get(id note.ID) (ActiveNote, bool) {
	n, ok := r.notes[id]
	if !ok {
		return ActiveNote{}, false
	}
	return *n, true
}

func (r *Registry) Len() int { return len(r.notes) }

func (r *Registry) ordered() []*ActiveNote {
	out := make([]*ActiveNote, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *ActiveNote) int {
		if c := a.Birth.Compare(b.Birth); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}
