package utils

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a timestamp-based ID for uploaded file names.
func GenerateID() int64 {
	return time.Now().UnixNano()
}

// GenerateJobID returns a random ID for batch jobs.
func GenerateJobID() string {
	return uuid.NewString()
}
