package domain

import "github.com/samber/lo"

// Roster is the set of participants currently present in the room.
// It mirrors the transport's membership as of the last processed event and
// never holds speculative entries. Add and Remove are idempotent so that
// duplicated or reordered transport events cannot corrupt it.
type Roster struct {
	local   *Participant
	remotes map[string]Participant
	order   []string // join order of remotes
}

func NewRoster() *Roster {
	return &Roster{remotes: make(map[string]Participant)}
}

// Seed replaces the whole roster with the snapshot taken at connect time.
// A reconnection may land in a different population, hence no merge.
func (r *Roster) Seed(local Participant, remotes []Participant) {
	local.IsLocal = true
	r.local = &local
	r.remotes = make(map[string]Participant, len(remotes))
	r.order = r.order[:0]
	for _, p := range remotes {
		r.Add(p)
	}
}

// Add inserts a remote participant. It returns false when the id is already
// known, or when it is the local participant echoed back by the transport.
func (r *Roster) Add(p Participant) bool {
	if r.local != nil && r.local.ID == p.ID {
		return false
	}
	if _, ok := r.remotes[p.ID]; ok {
		return false
	}
	p.IsLocal = false
	r.remotes[p.ID] = p
	r.order = append(r.order, p.ID)
	return true
}

// Remove drops a remote participant and returns it. Absent ids are a no-op.
func (r *Roster) Remove(id string) (Participant, bool) {
	p, ok := r.remotes[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.remotes, id)
	r.order = lo.Without(r.order, id)
	return p, true
}

// Lookup finds a participant, local one included.
func (r *Roster) Lookup(id string) (Participant, bool) {
	if r.local != nil && r.local.ID == id {
		return *r.local, true
	}
	p, ok := r.remotes[id]
	return p, ok
}

// LookupIdentity finds the first participant using identity.
func (r *Roster) LookupIdentity(identity string) (Participant, bool) {
	return lo.Find(r.Snapshot(), func(p Participant) bool {
		return p.Identity == identity
	})
}

// Local returns the local participant, if the roster has been seeded.
func (r *Roster) Local() (Participant, bool) {
	if r.local == nil {
		return Participant{}, false
	}
	return *r.local, true
}

// UpdateLocal applies fn to the local participant.
func (r *Roster) UpdateLocal(fn func(p *Participant)) bool {
	if r.local == nil {
		return false
	}
	fn(r.local)
	return true
}

// SetQuality records the connection quality of any known participant.
func (r *Roster) SetQuality(id string, q ConnectionQuality) bool {
	if r.local != nil && r.local.ID == id {
		r.local.Quality = q
		return true
	}
	p, ok := r.remotes[id]
	if !ok {
		return false
	}
	p.Quality = q
	r.remotes[id] = p
	return true
}

// Snapshot lists the local participant first, then remotes in join order.
// Any display sort is left to the caller.
func (r *Roster) Snapshot() []Participant {
	out := make([]Participant, 0, r.Len())
	if r.local != nil {
		out = append(out, *r.local)
	}
	return append(out, lo.Map(r.order, func(id string, _ int) Participant {
		return r.remotes[id]
	})...)
}

func (r *Roster) Len() int {
	n := len(r.remotes)
	if r.local != nil {
		n++
	}
	return n
}

// Clear empties the roster, local participant included.
func (r *Roster) Clear() {
	r.local = nil
	r.remotes = make(map[string]Participant)
	r.order = nil
}
