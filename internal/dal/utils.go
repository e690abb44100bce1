package dal

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	roomCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength  = 6
)

// NewID returns a fresh record id
func NewID() string {
	return uuid.NewString()
}

// NewRoomCode generates a short human-shareable code using crypto/rand.
// Ambiguous characters (0/O, 1/I) are left out of the alphabet.
func NewRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeCharset[n.Int64()]
	}
	return string(code), nil
}
