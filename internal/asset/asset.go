// Package asset holds the data model shared by the archive pipeline stages.
package asset

import (
	"fmt"
	"strings"
)

// Descriptor identifies one remote media asset to include in an archive.
// Filename is caller supplied and not necessarily filesystem safe.
type Descriptor struct {
	Filename  string `json:"filename"`
	SourceURL string `json:"r2SignedUrl"`
}

// StoreConfig carries the object store credentials for one job. Treated as a
// secret; never log it in full.
type StoreConfig struct {
	AccountID       string `json:"accountId"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucketName"`
}

// Redacted returns a loggable representation that omits the secret key.
func (c StoreConfig) Redacted() string {
	id := c.AccessKeyID
	if len(id) > 4 {
		id = id[:4] + "****"
	}
	return fmt.Sprintf("%s/%s/%s", c.AccountID, c.Bucket, id)
}

// Job describes one archive run. It lives for exactly one pipeline run and is
// never persisted.
type Job struct {
	ID              string
	ProjectID       string
	UserID          string
	ProductCode     string
	Assets          []Descriptor
	Store           StoreConfig
	NotificationURL string
}

// SafeFilename maps a caller supplied filename to an archive entry name by
// replacing every character outside [A-Za-z0-9._-] with an underscore. The
// mapping is total and idempotent. Distinct inputs may collide after
// sanitization; collisions are not deduplicated and the last entry written
// wins. That matches the historical behavior and stays until product says
// otherwise.
func SafeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
