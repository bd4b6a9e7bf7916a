// Package fileio provides naming helpers for the shared scratch directory.
package fileio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunToken returns a name component unique to one pipeline run. Every temp
// artifact of a run embeds it, so concurrent jobs sharing the scratch
// directory cannot collide.
func RunToken() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
