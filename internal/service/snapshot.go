package service

import (
	"encoding/json"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/toppic"
)

const (
	EventDraftSnapshot  = "draft.snapshot"
	EventDraftCancelled = "draft.cancelled"
	EventRoomSnapshot   = "room.snapshot"
)

// DraftSnapshot is the full state pushed to clients. Clients count the turn
// down locally from DeadlineAt; the server stays authoritative.
type DraftSnapshot struct {
	Session           models.DraftSession `json:"session"`
	Version           int64               `json:"version"`
	Status            models.Status       `json:"status"`
	TurnIndex         int                 `json:"turnIndex"`
	ActiveParticipant int                 `json:"activeParticipant"`
	TurnStartedAt     time.Time           `json:"turnStartedAt"`
	DeadlineAt        *time.Time          `json:"deadlineAt"`
	Events            []engine.Event      `json:"events,omitempty"`
}

// NewDraftSnapshot derives the turn view of a stored record
func NewDraftSnapshot(rec dal.DraftRecord, events []engine.Event) DraftSnapshot {
	s := rec.Session
	snap := DraftSnapshot{
		Session:       s,
		Version:       rec.Version,
		Status:        s.Saved.Status(),
		TurnIndex:     engine.TurnIndex(s),
		TurnStartedAt: s.TurnStartedAt,
		Events:        events,
	}
	if !engine.IsComplete(s) {
		snap.ActiveParticipant = engine.ActiveParticipant(s)
	}
	if at, ok := engine.Deadline(s); ok {
		snap.DeadlineAt = &at
	}
	return snap
}

// Event encodes the snapshot for the session topic; cancelled sessions get
// the terminal event type
func (d DraftSnapshot) Event() (pubsub.Event, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return pubsub.Event{}, err
	}
	typ := EventDraftSnapshot
	if d.Status == models.StatusCancelled {
		typ = EventDraftCancelled
	}
	return pubsub.Event{Topic: pubsub.DraftTopic(d.Session.ID), Type: typ, Version: d.Version, Payload: data}, nil
}

// RoomSnapshot is the full room state pushed to clients
type RoomSnapshot struct {
	Room    models.RoomSession `json:"room"`
	Version int64              `json:"version"`
	Events  []toppic.Event     `json:"events,omitempty"`
}

// Event encodes the snapshot for the room topic
func (r RoomSnapshot) Event() (pubsub.Event, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return pubsub.Event{}, err
	}
	return pubsub.Event{Topic: pubsub.RoomTopic(r.Room.Code), Type: EventRoomSnapshot, Version: r.Version, Payload: data}, nil
}
