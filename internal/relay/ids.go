package relay

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewToken returns a fresh opaque session token: a v4 UUID in simple form
// (32 hex chars, no dashes). Tokens are credentials; never log them whole.
func NewToken() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewConnID returns a new ULID string (26 chars) used to identify a single
// connection in logs. ULIDs are lexicographically sortable, which keeps
// per-connection log lines easy to correlate.
func NewConnID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
