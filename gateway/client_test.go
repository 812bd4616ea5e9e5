package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"provtrace/ledgererrors"
)

func TestMapLedgerError(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want error
	}{
		{"not found", "chaincode response 500, not found: product 7 does not exist", ledgererrors.ErrNotFound},
		{"does not exist", "evaluate call to endorser returned error: product 7 does not exist", ledgererrors.ErrNotFound},
		{"unauthorized", "unauthorized: caller is not the current holder of product 7", ledgererrors.ErrUnauthorized},
		{"invalid state", "invalid state: product 7 is already in transit", ledgererrors.ErrInvalidState},
		{"already archived", "rpc error: invalid state: already archived: product 7 under 'sha256:abc'", ledgererrors.ErrAlreadyArchived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapLedgerError("GetProduct", errors.New(tc.msg))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// The already-archived mapping keeps its place in the hierarchy: it is
	// still an InvalidState, but a plain InvalidState is not AlreadyArchived.
	err := mapLedgerError("ConfirmArchive", errors.New("invalid state: already archived: product 7"))
	assert.ErrorIs(t, err, ledgererrors.ErrAlreadyArchived)
	assert.ErrorIs(t, err, ledgererrors.ErrInvalidState)
	err = mapLedgerError("ShipProduct", errors.New("invalid state: product 7 is archived"))
	assert.NotErrorIs(t, err, ledgererrors.ErrAlreadyArchived)

	// Unrecognized messages keep the original error in the chain.
	base := errors.New("connection refused")
	err = mapLedgerError("GetProduct", base)
	assert.ErrorIs(t, err, base)
	assert.NotErrorIs(t, err, ledgererrors.ErrNotFound)
}
