package contract

import "provtrace/ledgererrors"

// The error taxonomy is defined in ledgererrors, which both the chaincode
// and its off-chain clients import. Aliased here so contract code keeps the
// short names.
var (
	ErrUnauthorized    = ledgererrors.ErrUnauthorized
	ErrInvalidState    = ledgererrors.ErrInvalidState
	ErrNotFound        = ledgererrors.ErrNotFound
	ErrAlreadyArchived = ledgererrors.ErrAlreadyArchived
)
