package common

import (
	"time"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// Seconds helper function converting a config value in seconds into a time.Duration
func Seconds(sec int) time.Duration {
	return time.Second * time.Duration(sec)
}
