package jobs

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces opaque job identifiers.
type IDGenerator func() (string, error)

// NewJobID returns a random identifier of the form job_<32 hex chars>.
func NewJobID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}
	return "job_" + strings.ReplaceAll(id.String(), "-", ""), nil
}

// NewCallbackToken returns the secret the engine must echo on the completion callback.
func NewCallbackToken() (string, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate callback token: %w", err)
	}
	return token.String(), nil
}
