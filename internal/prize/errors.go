package prize

import (
	"errors"
	"fmt"
)

// ErrInvalidTable matches every *InvalidTableError via errors.Is.
var ErrInvalidTable = errors.New("prize: invalid table")

// InvalidTableError reports a malformed prize table. Index is the offending
// entry, or -1 when the problem concerns the table as a whole.
type InvalidTableError struct {
	Index  int
	Reason string
}

func invalid(index int, reason string) *InvalidTableError {
	return &InvalidTableError{Index: index, Reason: reason}
}

func (e *InvalidTableError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("prize: invalid table: %s", e.Reason)
	}
	return fmt.Sprintf("prize: invalid table: entry %d: %s", e.Index, e.Reason)
}

func (e *InvalidTableError) Is(target error) bool {
	return target == ErrInvalidTable
}
