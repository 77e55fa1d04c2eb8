// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/artpar/coworkbill/ports"
	"github.com/google/uuid"
)

// UUID generates random UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)

// cycleNamespace scopes invoice cycle keys.
var cycleNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("coworkbill:invoice-cycle"))

// CycleKey derives the document key of the invoice for one billing cycle.
// The cycle start is truncated to step, so every caller computing the same
// cycle for the same tenant and resource gets the same key.
func CycleKey(tenantID, resource string, start time.Time, step time.Duration) string {
	if step > 0 {
		start = start.UTC().Truncate(step)
	}
	name := tenantID + "\x00" + resource + "\x00" + start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(cycleNamespace, []byte(name)).String()
}
