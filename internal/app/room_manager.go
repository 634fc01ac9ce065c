package app

import (
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

type RoomManagerImpl struct {
	mu              sync.RWMutex
	rooms           map[domain.RoomCode]core.RoomService
	maxParticipants int
	settings        domain.RoomSettings
}

func NewRoomManager(maxParticipants int, settings domain.RoomSettings) core.RoomManager {
	return &RoomManagerImpl{
		rooms:           make(map[domain.RoomCode]core.RoomService),
		maxParticipants: maxParticipants,
		settings:        settings,
	}
}

func (f *RoomManagerImpl) GetOrCreate(code domain.RoomCode) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[code]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[code]; ok {
		return room
	}
	room = core.NewRoomService(domain.NewRoom(code, f.maxParticipants, f.settings))
	f.rooms[code] = room
	return room
}

func (f *RoomManagerImpl) GetRoom(code domain.RoomCode) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[code]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, RoomInfoOf(r))
	}
	return out
}

func RoomInfoOf(r core.RoomService) core.RoomInfo {
	room := r.Room()
	return core.RoomInfo{
		Code:            room.Code,
		Status:          room.Status,
		HostName:        room.HostName,
		MemberCount:     r.MemberCount(),
		MaxParticipants: room.MaxParticipants,
	}
}
