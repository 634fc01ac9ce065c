package roster

import (
	"github.com/dkeye/huddle/internal/domain"
)

// Roster is one client's view of the room: an implicit local entry plus one
// entry per remote participant, kept in join order.
type Roster struct {
	local  domain.Participant
	remote map[domain.ConnectionID]*domain.Participant
	order  []domain.ConnectionID
}

func New() *Roster {
	return &Roster{remote: make(map[domain.ConnectionID]*domain.Participant)}
}

func (r *Roster) SetLocal(p domain.Participant) { r.local = p }
func (r *Roster) Local() domain.Participant     { return r.local }

// Add inserts p. An existing entry for the same id is refreshed in place.
func (r *Roster) Add(p domain.Participant) bool {
	if p.ConnectionID == "" || p.ConnectionID == r.local.ConnectionID {
		return false
	}
	if cur, ok := r.remote[p.ConnectionID]; ok {
		pinned := cur.IsPinned
		*cur = p
		cur.IsPinned = pinned
		return false
	}
	cp := p
	r.remote[p.ConnectionID] = &cp
	r.order = append(r.order, p.ConnectionID)
	return true
}

func (r *Roster) Remove(id domain.ConnectionID) (domain.Participant, bool) {
	p, ok := r.remote[id]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.remote, id)
	for i, cur := range r.order {
		if cur == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *p, true
}

func (r *Roster) Get(id domain.ConnectionID) (domain.Participant, bool) {
	if id != "" && id == r.local.ConnectionID {
		return r.local, true
	}
	p, ok := r.remote[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (r *Roster) Has(id domain.ConnectionID) bool {
	_, ok := r.remote[id]
	return ok
}

func (r *Roster) SetMuted(id domain.ConnectionID, muted bool) bool {
	if id != "" && id == r.local.ConnectionID {
		r.local.IsMuted = muted
		return true
	}
	p, ok := r.remote[id]
	if !ok {
		return false
	}
	p.IsMuted = muted
	return true
}

// Pin marks id as the single pinned participant; pinning it again unpins it.
func (r *Roster) Pin(id domain.ConnectionID) bool {
	if _, ok := r.Get(id); !ok {
		return false
	}
	cur, _ := r.Pinned()
	target := id
	if cur == id {
		target = ""
	}
	r.local.IsPinned = target != "" && target == r.local.ConnectionID
	for cid, p := range r.remote {
		p.IsPinned = cid == target
	}
	return true
}

func (r *Roster) Pinned() (domain.ConnectionID, bool) {
	if r.local.IsPinned {
		return r.local.ConnectionID, true
	}
	for _, id := range r.order {
		if r.remote[id].IsPinned {
			return id, true
		}
	}
	return "", false
}

// Remote returns the remote entries in join order.
func (r *Roster) Remote() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.remote[id])
	}
	return out
}

func (r *Roster) Len() int { return len(r.remote) }

// HostName finds the host's display name, local entry included.
func (r *Roster) HostName() string {
	if r.local.IsHost {
		return r.local.DisplayName
	}
	for _, id := range r.order {
		if p := r.remote[id]; p.IsHost {
			return p.DisplayName
		}
	}
	return ""
}

// Reset drops every remote entry. The local entry is kept.
func (r *Roster) Reset() {
	r.remote = make(map[domain.ConnectionID]*domain.Participant)
	r.order = nil
}
