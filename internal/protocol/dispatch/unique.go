package dispatch

import (
	"fmt"

	"github.com/danmuck/ucan/internal/protocol"
)

// CheckUnique fails with ErrDuplicateID if any id appears twice across the
// given tables, within one table or across them. Startup-only: pairwise scan.
func CheckUnique(tables ...*Table) error {
	ids := make([]uint32, 0)
	for _, t := range tables {
		ids = append(ids, t.IDs()...)
	}
	return CheckDisjoint(ids)
}

// CheckDisjoint fails with ErrDuplicateID on the first repeated id.
func CheckDisjoint(ids []uint32) error {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				return fmt.Errorf("%w: 0x%03X", protocol.ErrDuplicateID, ids[i])
			}
		}
	}
	return nil
}
