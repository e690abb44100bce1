package engine

import (
	"fmt"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// TurnIndex is the zero-based index of the turn on the clock
func TurnIndex(s models.DraftSession) int {
	return len(s.Picks)
}

// ActiveParticipant returns the 1-based participant whose turn it is.
// Turn order is strict round-robin on the number of picks made.
func ActiveParticipant(s models.DraftSession) int {
	if s.ParticipantCount <= 0 {
		return 0
	}
	return len(s.Picks)%s.ParticipantCount + 1
}

// ParticipantForSlot maps a 1-based slot to the participant owning its block
func ParticipantForSlot(s models.DraftSession, slot int) int {
	if s.SlotsPerParticipant <= 0 || slot < 1 {
		return 0
	}
	return (slot-1)/s.SlotsPerParticipant + 1
}

// SlotFor is the slot of participant p's k-th pick (k is zero-based)
func SlotFor(s models.DraftSession, p, k int) int {
	return (p-1)*s.SlotsPerParticipant + k + 1
}

// IsComplete reports whether every slot has been filled
func IsComplete(s models.DraftSession) bool {
	return len(s.Picks) >= s.TotalSlots()
}

// LowestOpenSlot scans participant p's block and returns the first empty slot
func LowestOpenSlot(s models.DraftSession, p int) (int, bool) {
	filled := filledSlots(s)
	for k := 0; k < s.SlotsPerParticipant; k++ {
		slot := SlotFor(s, p, k)
		if !filled[slot] {
			return slot, true
		}
	}
	return 0, false
}

// Deadline returns when the current turn expires. There is no deadline when
// the timer is off, the draft is paused, finished or cancelled.
func Deadline(s models.DraftSession) (time.Time, bool) {
	d, ok := s.Rules.Timer()
	if !ok || IsComplete(s) || s.Saved.Status() != models.StatusInProgress {
		return time.Time{}, false
	}
	return s.TurnStartedAt.Add(d), true
}

func filledSlots(s models.DraftSession) map[int]bool {
	filled := make(map[int]bool, len(s.Picks))
	for _, p := range s.Picks {
		filled[p.Slot] = true
	}
	return filled
}

// Validate checks the structural invariants every stored session must hold
func Validate(s models.DraftSession) error {
	total := s.TotalSlots()
	if s.ParticipantCount <= 0 || s.SlotsPerParticipant <= 0 {
		return fmt.Errorf("%w: participantCount=%d slotsPerParticipant=%d", ErrCorruptState, s.ParticipantCount, s.SlotsPerParticipant)
	}
	if len(s.Picks) > total {
		return fmt.Errorf("%w: %d picks exceed %d slots", ErrCorruptState, len(s.Picks), total)
	}
	slots := make(map[int]bool, len(s.Picks))
	for _, p := range s.Picks {
		if p.Slot < 1 || p.Slot > total {
			return fmt.Errorf("%w: slot %d outside [1,%d]", ErrCorruptState, p.Slot, total)
		}
		if slots[p.Slot] {
			return fmt.Errorf("%w: slot %d filled twice", ErrCorruptState, p.Slot)
		}
		slots[p.Slot] = true
	}
	if s.Online != nil && len(s.Online.SeatAssignments) > 0 && len(s.Online.SeatAssignments) != s.ParticipantCount {
		return fmt.Errorf("%w: %d seats for %d participants", ErrCorruptState, len(s.Online.SeatAssignments), s.ParticipantCount)
	}
	return nil
}
