package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendPayload struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"max=10"`
	Type       string `json:"type" validate:"omitempty,oneof=text image"`
}

func TestStructUsesJSONNames(t *testing.T) {
	err := Struct(sendPayload{Content: "way too long for this", Type: "gif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receiverId is required")
	assert.Contains(t, err.Error(), "content must be at most 10")
	assert.Contains(t, err.Error(), "type must be one of [text image]")
}

func TestStructValid(t *testing.T) {
	assert.NoError(t, Struct(sendPayload{ReceiverID: "u2", Content: "hi", Type: "text"}))
}
