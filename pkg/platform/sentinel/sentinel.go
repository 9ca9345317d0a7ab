package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger backends and stores return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: record does not exist on the ledger or in a store
// - ErrConflict: write collided with an existing record (e.g. duplicate certificate id)
// - ErrUnavailable: backend could not be reached or did not answer
// - ErrInvalidState: backend answered with data that breaks an invariant
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
