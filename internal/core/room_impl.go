package core

import (
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	mu            sync.RWMutex
	room          *domain.Room
	byConn        map[domain.ConnectionID]MemberSession
	transcription bool
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:          room,
		byConn:        make(map[domain.ConnectionID]MemberSession),
		transcription: room.Settings.AutoTranscription,
	}
}

func (r *roomImpl) Room() *domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r.room
	return &cp
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) Member(id domain.ConnectionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byConn[id]
	return ms, ok
}

// Admit admits ms. The first member claiming host becomes the room host;
// later claims from other users are downgraded.
func (r *roomImpl) Admit(ms MemberSession, announce Announce) (Admission, error) {
	meta := ms.Meta()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room.Ended() {
		return Admission{}, ErrRoomEnded
	}
	if len(r.byConn) >= r.room.MaxParticipants {
		return Admission{}, ErrRoomFull
	}
	if meta.IsHost {
		switch r.room.HostID {
		case "":
			r.room.HostID = meta.User.ID
			r.room.HostName = meta.User.Username
		case meta.User.ID:
		default:
			meta.IsHost = false
		}
	}
	if meta.JoinedAt.IsZero() {
		meta.JoinedAt = time.Now()
	}

	adm := Admission{Existing: make([]domain.Participant, 0, len(r.byConn))}
	for _, m := range r.byConn {
		adm.Existing = append(adm.Existing, m.Meta().Participant)
	}
	r.byConn[meta.ConnectionID] = ms
	r.room.Activate()
	log.Info().Str("module", "core.room").Str("room", string(r.room.Code)).Str("conn_id", string(meta.ConnectionID)).Bool("host", meta.IsHost).Msg("member added")

	if announce != nil {
		frame, err := announce(meta.Participant)
		if err != nil {
			log.Error().Err(err).Str("module", "core.room").Msg("encode announcement")
			return adm, nil
		}
		adm.Announced = r.broadcastLocked(meta.ConnectionID, frame)
	}
	return adm, nil
}

func (r *roomImpl) RemoveMember(id domain.ConnectionID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[id]
	if ok {
		delete(r.byConn, id)
		log.Info().Str("module", "core.room").Str("room", string(r.room.Code)).Str("conn_id", string(id)).Msg("member removed")
	}
	return ms, ok
}

func (r *roomImpl) SetMuted(id domain.ConnectionID, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[id]
	if !ok {
		return false
	}
	ms.Meta().IsMuted = muted
	return true
}

func (r *roomImpl) IsHost(id domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byConn[id]
	return ok && ms.Meta().IsHost
}

func (r *roomImpl) TranscriptionEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcription
}

func (r *roomImpl) SetTranscription(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription = enabled
}

func (r *roomImpl) End() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room.End()
}

func (r *roomImpl) Broadcast(from domain.ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(from, data)
}

// broadcastLocked needs r.mu held in either mode.
func (r *roomImpl) broadcastLocked(from domain.ConnectionID, data Frame) PublishResult {
	res := PublishResult{}
	for id, m := range r.byConn {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(to domain.ConnectionID, data Frame) error {
	r.mu.RLock()
	m, ok := r.byConn[to]
	r.mu.RUnlock()
	if !ok {
		return ErrNoMember
	}
	return m.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.byConn))
	for _, ms := range r.byConn {
		out = append(out, ms.Meta().Participant)
	}
	return out
}
