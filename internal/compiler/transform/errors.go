package transform

import (
	"fmt"
	"strings"
)

// DepthError aborts an expansion whose output kept producing markers past
// the configured depth. Chain lists the macros from the outermost marker in.
type DepthError struct {
	Limit int
	Chain []string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("macro expansion exceeded depth %d: %s", e.Limit, strings.Join(e.Chain, " -> "))
}
