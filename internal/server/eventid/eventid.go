// Package eventid generates the sortable identifiers stamped on every
// event, thread and suggestion. Ids are ULIDs: a 48-bit millisecond
// timestamp followed by 80 random bits, encoded as 26 characters of
// Crockford base32, so lexicographic order tracks creation order.
package eventid

import (
	"crypto/rand"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh id. Monotonic entropy guarantees that ids
// generated by this process within the same millisecond still sort in
// generation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// Time extracts the embedded timestamp from an id.
func Time(s string) (time.Time, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id: %w", err)
	}
	ms := id.Time()
	if ms/1000 > uint64(math.MaxInt64) {
		return time.Time{}, fmt.Errorf("id timestamp %d exceeds int64 range", ms)
	}
	return time.Unix(int64(ms/1000), int64(ms%1000)*1e6), nil
}

// Valid reports whether s is a well-formed id.
func Valid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}
