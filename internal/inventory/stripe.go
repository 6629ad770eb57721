package inventory

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutex stripes guarding product mutations.
// Distinct products may share a stripe; a given product always maps to the
// same one.
const lockStripes = 64

func (l *Ledger) stripeFor(productID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(productID))
	return &l.stripes[h.Sum32()%lockStripes]
}
