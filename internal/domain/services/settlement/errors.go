package settlement

import "errors"

// Matching and application outcomes. NoMatch and Ambiguous are not
// request failures: the webhook is still acknowledged so providers stop
// retrying a delivery that can never resolve differently.
var (
	ErrNoMatch        = errors.New("no matching financial record")
	ErrAmbiguousMatch = errors.New("multiple financial records match")
)
