// ABOUTME: ULID generation helper using crypto/rand for monotonic IDs.
// ABOUTME: Used for event ordering; request/task/message identifiers use uuid instead (spec.md §3).
package runtime

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID generates a new ULID using crypto/rand entropy; IDs made within
// the same millisecond increase monotonically.
func NewULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy)
}
