package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores. Services
// translate them into domain errors; they never carry user-facing text.
//
//   - ErrNotFound: no row / key for the lookup
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: a conditional update found the row in another state
//   - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
