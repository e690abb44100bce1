package service

import (
	"context"
	"errors"

	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

// CreateRoom opens a TopPic lobby hosted by hostID under a fresh room code
func (s *Service) CreateRoom(ctx context.Context, hostID, hostName string, settings toppic.Settings) (RoomSnapshot, error) {
	deck := s.newDeck()
	for try := 0; try < roomCodeTries; try++ {
		code, err := s.newCode()
		if err != nil {
			return RoomSnapshot{}, err
		}
		room, err := toppic.NewRoom(code, hostID, hostName, settings, deck, s.now())
		if err != nil {
			return RoomSnapshot{}, err
		}
		rec, err := s.store.CreateRoom(ctx, room)
		if errors.Is(err, dal.ErrExists) {
			s.log.Debug("Room code collision", "code", code)
			continue
		}
		if err != nil {
			return RoomSnapshot{}, storeErr(err)
		}
		s.log.Info("Room created", "room", code, "host", hostID, "scoring", settings.ScoringMode)
		snap := RoomSnapshot{Room: rec.Room, Version: rec.Version}
		s.publishRoom(snap)
		return snap, nil
	}
	return RoomSnapshot{}, engine.ErrConflict
}

func (s *Service) GetRoom(ctx context.Context, code string) (RoomSnapshot, error) {
	rec, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return RoomSnapshot{}, storeErr(err)
	}
	return RoomSnapshot{Room: rec.Room, Version: rec.Version}, nil
}

// RoomAction applies a lobby or game action with the same retry discipline
// as draft actions
func (s *Service) RoomAction(ctx context.Context, code string, a toppic.Action, actor string) (RoomSnapshot, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		rec, err := s.store.GetRoom(ctx, code)
		if err != nil {
			return RoomSnapshot{}, storeErr(err)
		}

		events, next, err := toppic.Apply(rec.Room, a, actor, s.now())
		if err != nil {
			s.log.Debug("Room action rejected", "room", code, "action", a.Type, "reason", reason(err))
			return RoomSnapshot{}, err
		}
		if len(events) == 0 {
			return RoomSnapshot{Room: rec.Room, Version: rec.Version}, nil
		}

		committed, err := s.store.SwapRoom(ctx, code, rec.Version, next)
		if errors.Is(err, dal.ErrConflict) {
			s.log.Debug("Room write conflict, retrying", "room", code, "attempt", attempt)
			continue
		}
		if err != nil {
			return RoomSnapshot{}, storeErr(err)
		}

		s.log.Info("Room updated", "room", code, "action", a.Type, "version", committed.Version, "status", next.Status)
		snap := RoomSnapshot{Room: committed.Room, Version: committed.Version, Events: events}
		s.publishRoom(snap)
		if next.Status == models.RoomEnded && rec.Room.Status != models.RoomEnded {
			s.log.Info("Room game ended", "room", code, "rounds", len(next.Game.History))
		}
		return snap, nil
	}
	s.log.Warn("Room write conflict budget exhausted", "room", code, "attempts", s.retries)
	return RoomSnapshot{}, engine.ErrConflict
}

func (s *Service) publishRoom(snap RoomSnapshot) {
	if s.pub == nil {
		return
	}
	ev, err := snap.Event()
	if err != nil {
		s.log.Error("Room snapshot encode failed", "room", snap.Room.Code, "error", err)
		return
	}
	s.pub.Publish(ev)
}
