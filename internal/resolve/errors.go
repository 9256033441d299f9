package resolve

import "errors"

// ErrNotFound is returned when no provider, exact or fuzzy, handles the
// input verb. It is surfaced to the user as "no capability found" and is
// never retried automatically.
var ErrNotFound = errors.New("no capability found for verb")
