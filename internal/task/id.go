package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a task identifier of the form {kind}_{unix_ts}_{8hex}.
// Ids sort lexicographically by creation second within a kind.
func NewID(kind Kind) string {
	return newIDAt(kind, time.Now())
}

func newIDAt(kind Kind, at time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", kind, at.Unix(), random)
}
