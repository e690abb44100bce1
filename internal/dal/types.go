package dal

import (
	"context"
	"errors"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for the id
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the stored version moved on since it was read
	ErrConflict = errors.New("version conflict")
	// ErrExists is returned when creating a record whose id is taken
	ErrExists = errors.New("record already exists")
)

// DraftRecord is a stored draft plus the version used for compare-and-swap
type DraftRecord struct {
	Session models.DraftSession
	Version int64
}

// RoomRecord is a stored room plus its version
type RoomRecord struct {
	Room    models.RoomSession
	Version int64
}

// DraftStore owns the canonical draft records. Every write after creation
// goes through SwapDraft, which only succeeds against the version the caller read.
type DraftStore interface {
	GetDraft(ctx context.Context, id string) (DraftRecord, error)
	CreateDraft(ctx context.Context, s models.DraftSession) (DraftRecord, error)
	SwapDraft(ctx context.Context, id string, expected int64, next models.DraftSession) (DraftRecord, error)
	// ListActiveDrafts returns every draft whose status is in_progress
	ListActiveDrafts(ctx context.Context) ([]DraftRecord, error)
}

// RoomStore owns the TopPic room records, keyed by room code
type RoomStore interface {
	GetRoom(ctx context.Context, code string) (RoomRecord, error)
	CreateRoom(ctx context.Context, r models.RoomSession) (RoomRecord, error)
	SwapRoom(ctx context.Context, code string, expected int64, next models.RoomSession) (RoomRecord, error)
}

// Store is what a storage backend provides to the service layer
type Store interface {
	DraftStore
	RoomStore
	Ping(ctx context.Context) error
	Close() error
}
