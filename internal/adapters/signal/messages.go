package signal

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound payloads, one variant per event name. Each is validated at the
// boundary; a malformed payload never reaches the coordinator.

var validate = validator.New()

type joinRequest struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId" validate:"required,max=36"`
	Username string `json:"username" validate:"required,max=36"`
}

type codeChange struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId" validate:"required,max=36"`
	Code      string          `json:"code"`
	CursorPos json.RawMessage `json:"cursorPos,omitempty"`
	FilePath  string          `json:"filePath,omitempty"`
}

type chatMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId" validate:"required,max=36"`
	Text   string `json:"text" validate:"required"`
}

type drawEvent struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId" validate:"required,max=36"`
	Stroke json.RawMessage `json:"stroke" validate:"required"`
}

// decode unmarshals and validates a tagged payload in one step.
func decode[T any](data []byte) (*T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &p, nil
}
