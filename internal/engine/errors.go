package engine

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable code carried by a rejected action
type Reason string

const (
	ReasonSessionComplete     Reason = "SessionComplete"
	ReasonSessionCancelled    Reason = "SessionCancelled"
	ReasonGameEnded           Reason = "GameEnded"
	ReasonNotYourTurn         Reason = "NotYourTurn"
	ReasonNoSlotAvailable     Reason = "NoSlotAvailable"
	ReasonInvalidSlot         Reason = "InvalidSlot"
	ReasonEntityAlreadyPicked Reason = "EntityAlreadyPicked"
	ReasonAlreadySubmitted    Reason = "AlreadySubmitted"
	ReasonNotHost             Reason = "NotHost"
	ReasonConflict            Reason = "Conflict"
	ReasonUpstreamUnavailable Reason = "UpstreamUnavailable"
	ReasonRematchUnavailable  Reason = "RematchUnavailable"
	ReasonNotSeated           Reason = "NotSeated"
	ReasonSeatTaken           Reason = "SeatTaken"
	ReasonSessionStarted      Reason = "SessionStarted"
	ReasonRoomFull            Reason = "RoomFull"
	ReasonNotParticipant      Reason = "NotParticipant"
	ReasonInvalidAction       Reason = "InvalidAction"
)

// Rejection is an ordinary rule violation. It is never fatal.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return fmt.Sprintf("rejected: %s: %s", r.Reason, r.Detail)
	}
	return "rejected: " + string(r.Reason)
}

// Is matches any rejection carrying the same reason
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

// Reject builds a rejection with extra context for logs
func Reject(reason Reason, format string, args ...any) error {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrSessionComplete     = &Rejection{Reason: ReasonSessionComplete}
	ErrSessionCancelled    = &Rejection{Reason: ReasonSessionCancelled}
	ErrGameEnded           = &Rejection{Reason: ReasonGameEnded}
	ErrNotYourTurn         = &Rejection{Reason: ReasonNotYourTurn}
	ErrNoSlotAvailable     = &Rejection{Reason: ReasonNoSlotAvailable}
	ErrInvalidSlot         = &Rejection{Reason: ReasonInvalidSlot}
	ErrEntityAlreadyPicked = &Rejection{Reason: ReasonEntityAlreadyPicked}
	ErrAlreadySubmitted    = &Rejection{Reason: ReasonAlreadySubmitted}
	ErrNotHost             = &Rejection{Reason: ReasonNotHost}
	ErrConflict            = &Rejection{Reason: ReasonConflict}
	ErrUpstreamUnavailable = &Rejection{Reason: ReasonUpstreamUnavailable}
	ErrRematchUnavailable  = &Rejection{Reason: ReasonRematchUnavailable}
	ErrNotSeated           = &Rejection{Reason: ReasonNotSeated}
	ErrSeatTaken           = &Rejection{Reason: ReasonSeatTaken}
	ErrSessionStarted      = &Rejection{Reason: ReasonSessionStarted}
	ErrRoomFull            = &Rejection{Reason: ReasonRoomFull}
	ErrNotParticipant      = &Rejection{Reason: ReasonNotParticipant}
	ErrInvalidAction       = &Rejection{Reason: ReasonInvalidAction}
)

// ErrCorruptState marks a stored record that breaks a structural invariant.
// It is an internal failure, not a rejection.
var ErrCorruptState = errors.New("corrupt session state")

// ReasonOf extracts the rejection reason from err
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
