// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxRoomIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrRoomRequired    = errors.New("room id empty")
	ErrRoomTooLong     = errors.New("room id too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// User is a committed identity: it exists from the moment a join commits
// until the owning connection leaves or drops.
type User struct {
	Username string    `json:"username"`
	RoomID   RoomID    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username string, room RoomID) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateRoomID(room); err != nil {
		return nil, err
	}
	return &User{Username: username, RoomID: room, JoinedAt: time.Now()}, nil
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func ValidateRoomID(room RoomID) error {
	if len(room) == 0 {
		return ErrRoomRequired
	}
	if len(room) > MaxRoomIDLen {
		return ErrRoomTooLong
	}
	return nil
}
