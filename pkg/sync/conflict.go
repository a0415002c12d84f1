package sync

import "fmt"

// Conflict records a path whose content diverged on both backends
// without a resolvable "one side is stale" relationship, the Go
// counterpart of SyncConflict.
type Conflict struct {
	Path       string
	Backend1ID string
	Backend2ID string
}

// Equal reports equality ignoring which side is "1" and which is "2",
// mirroring SyncConflict.__eq__.
func (c Conflict) Equal(o Conflict) bool {
	if c.Path != o.Path {
		return false
	}
	return (c.Backend1ID == o.Backend1ID && c.Backend2ID == o.Backend2ID) ||
		(c.Backend1ID == o.Backend2ID && c.Backend2ID == o.Backend1ID)
}

func (c Conflict) String() string {
	return fmt.Sprintf("conflict on %s between %s and %s", c.Path, c.Backend1ID, c.Backend2ID)
}
