package engine

import (
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

const (
	MaxParticipants        = 20
	MaxSlotsPerParticipant = 30
)

// SessionConfig is what a caller supplies to open a draft
type SessionConfig struct {
	League              models.League     `json:"league"`
	Mode                models.Mode       `json:"mode"`
	ParticipantCount    int               `json:"participantCount"`
	SlotsPerParticipant int               `json:"slotsPerParticipant"`
	Rules               models.RuleConfig `json:"rules"`
	Online              *OnlineConfig     `json:"online,omitempty"`
}

// OnlineConfig seats the host at participant 1; other seats start open
type OnlineConfig struct {
	RoomCode        string `json:"roomCode"`
	HostUserID      string `json:"hostUserId"`
	HostDisplayName string `json:"hostDisplayName"`
}

// NewSession builds an empty draft from cfg
func NewSession(id string, cfg SessionConfig, now time.Time) (models.DraftSession, error) {
	if !cfg.League.Valid() {
		return models.DraftSession{}, Reject(ReasonInvalidAction, "unknown league %q", cfg.League)
	}
	if cfg.ParticipantCount < 1 || cfg.ParticipantCount > MaxParticipants {
		return models.DraftSession{}, Reject(ReasonInvalidAction, "participantCount %d", cfg.ParticipantCount)
	}
	if cfg.SlotsPerParticipant < 1 || cfg.SlotsPerParticipant > MaxSlotsPerParticipant {
		return models.DraftSession{}, Reject(ReasonInvalidAction, "slotsPerParticipant %d", cfg.SlotsPerParticipant)
	}
	mode := cfg.Mode
	switch mode {
	case "":
		mode = models.ModeClassic
	case models.ModeClassic, models.ModeCasual, models.ModeFree:
	default:
		return models.DraftSession{}, Reject(ReasonInvalidAction, "unknown mode %q", cfg.Mode)
	}

	s := models.DraftSession{
		ID:                  id,
		League:              cfg.League,
		Mode:                mode,
		ParticipantCount:    cfg.ParticipantCount,
		SlotsPerParticipant: cfg.SlotsPerParticipant,
		Picks:               []models.Pick{},
		Rules:               cfg.Rules,
		Saved:               models.NewSavedState(models.StatusInProgress),
		TurnStartedAt:       now,
		CreatedAt:           now,
	}
	if cfg.Online != nil {
		if cfg.Online.HostUserID == "" {
			return models.DraftSession{}, Reject(ReasonInvalidAction, "online session needs a host")
		}
		seats := make([]string, cfg.ParticipantCount)
		names := make([]string, cfg.ParticipantCount)
		seats[0] = cfg.Online.HostUserID
		names[0] = cfg.Online.HostDisplayName
		s.Online = &models.OnlineMeta{
			RoomCode:         cfg.Online.RoomCode,
			HostUserID:       cfg.Online.HostUserID,
			SeatAssignments:  seats,
			SeatDisplayNames: names,
		}
	}
	return s, nil
}
