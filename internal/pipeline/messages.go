package pipeline

import (
	"errors"
	"fmt"

	"github.com/gzhole/voxsh/internal/llm"
	"github.com/gzhole/voxsh/internal/speech"
	"github.com/gzhole/voxsh/internal/validator"
)

const (
	MsgRejected        = "Script execution aborted due to security concerns."
	MsgInvalidResponse = "Invalid response from the language model."
	MsgNoSpeech        = "No speech detected"
)

// UserMessage is the one place errors become what the user sees and hears.
func UserMessage(err error) string {
	var rejected *validator.RejectedError
	var genErr *llm.GenerationError
	switch {
	case errors.As(err, &rejected):
		return MsgRejected
	case errors.As(err, &genErr):
		return MsgInvalidResponse
	case errors.Is(err, speech.ErrNoSpeech):
		return MsgNoSpeech
	}
	return fmt.Sprintf("Error executing command: %v", err)
}
