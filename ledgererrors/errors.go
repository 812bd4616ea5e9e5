// Package ledgererrors holds the error taxonomy shared by the chaincode and
// its off-chain clients. It lives in its own leaf package so that the gateway,
// coordinator, and router can classify ledger failures without linking the
// chaincode stack into their binary.
package ledgererrors

import (
	"errors"
	"fmt"
)

// Every failure returned by a contract function wraps one of these sentinels
// so callers can classify without parsing messages. Unauthorized and
// InvalidState must never be retried as-is: the caller has to re-read current
// state and re-derive intent.
var (
	// ErrUnauthorized: wrong role, or caller is not the current holder.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState: a guard was violated - wrong lifecycle phase,
	// duplicate role request, duplicate archive commit.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound: unknown product id, public code, or address.
	ErrNotFound = errors.New("not found")
)

// ErrAlreadyArchived is the specific InvalidState raised when an archive
// commit targets a product some other run already committed. Callers that
// treat a lost archival race as success must match this sentinel and not
// the broader ErrInvalidState, which also covers unrelated guard failures.
var ErrAlreadyArchived = fmt.Errorf("%w: already archived", ErrInvalidState)
